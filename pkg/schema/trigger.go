package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TriggerType selects a trigger variant.
type TriggerType string

const (
	TriggerManual            TriggerType = "manual"
	TriggerWebhook           TriggerType = "webhook"
	TriggerCron              TriggerType = "cron"
	TriggerChat              TriggerType = "chat"
	TriggerChatInput         TriggerType = "chat-input"
	TriggerMessagingPlatform TriggerType = "messaging-platform"
	TriggerMailboxPoll       TriggerType = "mailbox-poll"
)

// TriggerTypes returns the known trigger types in declaration order.
func TriggerTypes() []TriggerType {
	return []TriggerType{
		TriggerManual,
		TriggerWebhook,
		TriggerCron,
		TriggerChat,
		TriggerChatInput,
		TriggerMessagingPlatform,
		TriggerMailboxPoll,
	}
}

// Known reports whether t is one of the declared trigger types.
func (t TriggerType) Known() bool {
	for _, k := range TriggerTypes() {
		if k == t {
			return true
		}
	}
	return false
}

// Trigger is the wire form of a workflow trigger: a type tag plus its config block.
type Trigger struct {
	Type   TriggerType    `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// TriggerConfig is the closed set of decoded trigger variants.
type TriggerConfig interface {
	TriggerType() TriggerType
	Describe() string
	isTriggerConfig()
}

// ManualTrigger starts a workflow on explicit request.
type ManualTrigger struct{}

// WebhookTrigger starts a workflow on an inbound HTTP call.
type WebhookTrigger struct {
	Method string `json:"method,omitempty"`
	Path   string `json:"path,omitempty"`
}

// CronTrigger starts a workflow on a schedule.
type CronTrigger struct {
	Schedule string `json:"schedule"`
	Timezone string `json:"timezone,omitempty"`
}

// ChatTrigger starts a workflow from a chat message bound to InputVariable.
type ChatTrigger struct {
	InputVariable string `json:"inputVariable"`
}

// ChatInputTrigger collects a form of fields in chat before starting.
type ChatInputTrigger struct {
	Fields []ChatInputField `json:"fields"`
}

// ChatInputField is one field of a ChatInputTrigger form.
type ChatInputField struct {
	Name     string `json:"name"`
	Label    string `json:"label,omitempty"`
	Type     string `json:"type,omitempty"`
	Required bool   `json:"required,omitempty"`
}

// MessagingPlatformTrigger starts a workflow from a Slack/Discord/Telegram/Teams event.
type MessagingPlatformTrigger struct {
	Platform string   `json:"platform"`
	Channel  string   `json:"channel,omitempty"`
	Events   []string `json:"events,omitempty"`
}

// MailboxPollTrigger polls a mailbox every PollInterval minutes.
type MailboxPollTrigger struct {
	PollInterval int             `json:"pollInterval"`
	Filters      *MailboxFilters `json:"filters,omitempty"`
}

// MailboxFilters narrows which messages start a MailboxPollTrigger.
type MailboxFilters struct {
	From          string `json:"from,omitempty"`
	Subject       string `json:"subject,omitempty"`
	UnreadOnly    bool   `json:"unreadOnly,omitempty"`
	HasAttachment bool   `json:"hasAttachment,omitempty"`
}

// UnknownTrigger preserves a trigger whose type is not declared.
type UnknownTrigger struct {
	Type   TriggerType
	Config map[string]any
}

func (ManualTrigger) TriggerType() TriggerType            { return TriggerManual }
func (WebhookTrigger) TriggerType() TriggerType           { return TriggerWebhook }
func (CronTrigger) TriggerType() TriggerType              { return TriggerCron }
func (ChatTrigger) TriggerType() TriggerType              { return TriggerChat }
func (ChatInputTrigger) TriggerType() TriggerType         { return TriggerChatInput }
func (MessagingPlatformTrigger) TriggerType() TriggerType { return TriggerMessagingPlatform }
func (MailboxPollTrigger) TriggerType() TriggerType       { return TriggerMailboxPoll }
func (u UnknownTrigger) TriggerType() TriggerType         { return u.Type }

func (ManualTrigger) isTriggerConfig()            {}
func (WebhookTrigger) isTriggerConfig()           {}
func (CronTrigger) isTriggerConfig()              {}
func (ChatTrigger) isTriggerConfig()              {}
func (ChatInputTrigger) isTriggerConfig()         {}
func (MessagingPlatformTrigger) isTriggerConfig() {}
func (MailboxPollTrigger) isTriggerConfig()       {}
func (UnknownTrigger) isTriggerConfig()           {}

func (ManualTrigger) Describe() string { return "manual" }

func (w WebhookTrigger) Describe() string {
	method := w.Method
	if method == "" {
		method = "POST"
	}
	if w.Path == "" {
		return "webhook (" + method + ")"
	}
	return fmt.Sprintf("webhook (%s %s)", method, w.Path)
}

func (c CronTrigger) Describe() string {
	if c.Timezone != "" {
		return fmt.Sprintf("cron %q (%s)", c.Schedule, c.Timezone)
	}
	return fmt.Sprintf("cron %q", c.Schedule)
}

func (c ChatTrigger) Describe() string {
	return fmt.Sprintf("chat message -> %s", c.InputVariable)
}

func (c ChatInputTrigger) Describe() string {
	names := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		names = append(names, f.Name)
	}
	return fmt.Sprintf("chat form [%s]", strings.Join(names, ", "))
}

func (m MessagingPlatformTrigger) Describe() string {
	if m.Channel != "" {
		return fmt.Sprintf("%s message in %s", m.Platform, m.Channel)
	}
	return m.Platform + " message"
}

func (m MailboxPollTrigger) Describe() string {
	return fmt.Sprintf("mailbox poll every %dm", m.PollInterval)
}

func (u UnknownTrigger) Describe() string {
	return string(u.Type) + " (unrecognized trigger type)"
}

// Decode converts the wire trigger into its typed variant.
// Unknown types decode to UnknownTrigger without error.
func (t *Trigger) Decode() (TriggerConfig, error) {
	if t == nil {
		return nil, NewError(ErrCodeValidation, "trigger is nil")
	}

	var target TriggerConfig
	switch t.Type {
	case TriggerManual:
		return ManualTrigger{}, nil
	case TriggerWebhook:
		var c WebhookTrigger
		if err := decodeConfig(t.Config, &c); err != nil {
			return nil, triggerDecodeError(t.Type, err)
		}
		target = c
	case TriggerCron:
		var c CronTrigger
		if err := decodeConfig(t.Config, &c); err != nil {
			return nil, triggerDecodeError(t.Type, err)
		}
		target = c
	case TriggerChat:
		var c ChatTrigger
		if err := decodeConfig(t.Config, &c); err != nil {
			return nil, triggerDecodeError(t.Type, err)
		}
		target = c
	case TriggerChatInput:
		var c ChatInputTrigger
		if err := decodeConfig(t.Config, &c); err != nil {
			return nil, triggerDecodeError(t.Type, err)
		}
		target = c
	case TriggerMessagingPlatform:
		var c MessagingPlatformTrigger
		if err := decodeConfig(t.Config, &c); err != nil {
			return nil, triggerDecodeError(t.Type, err)
		}
		target = c
	case TriggerMailboxPoll:
		var c MailboxPollTrigger
		if err := decodeConfig(t.Config, &c); err != nil {
			return nil, triggerDecodeError(t.Type, err)
		}
		target = c
	default:
		return UnknownTrigger{Type: t.Type, Config: t.Config}, nil
	}
	return target, nil
}

func decodeConfig(config map[string]any, v any) error {
	if len(config) == 0 {
		return nil
	}
	b, err := json.Marshal(config)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func triggerDecodeError(t TriggerType, err error) *Error {
	return NewErrorf(ErrCodeValidation, "decode %s trigger config: %v", t, err).WithCause(err)
}
