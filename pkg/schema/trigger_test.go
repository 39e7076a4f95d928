package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrigger_DecodeCron(t *testing.T) {
	tr := &Trigger{Type: TriggerCron, Config: map[string]any{"schedule": "*/5 * * * *"}}

	cfg, err := tr.Decode()
	require.NoError(t, err)

	cron, ok := cfg.(CronTrigger)
	require.True(t, ok)
	assert.Equal(t, "*/5 * * * *", cron.Schedule)
	assert.Equal(t, TriggerCron, cfg.TriggerType())
	assert.Equal(t, `cron "*/5 * * * *"`, cfg.Describe())
}

func TestTrigger_DecodeMailboxPoll(t *testing.T) {
	tr := &Trigger{Type: TriggerMailboxPoll, Config: map[string]any{
		"pollInterval": 15,
		"filters":      map[string]any{"from": "billing@example.com", "unreadOnly": true},
	}}

	cfg, err := tr.Decode()
	require.NoError(t, err)

	mp := cfg.(MailboxPollTrigger)
	assert.Equal(t, 15, mp.PollInterval)
	require.NotNil(t, mp.Filters)
	assert.Equal(t, "billing@example.com", mp.Filters.From)
	assert.True(t, mp.Filters.UnreadOnly)
	assert.Equal(t, "mailbox poll every 15m", mp.Describe())
}

func TestTrigger_DecodeChatInput(t *testing.T) {
	tr := &Trigger{Type: TriggerChatInput, Config: map[string]any{
		"fields": []any{
			map[string]any{"name": "city", "required": true},
			map[string]any{"name": "days"},
		},
	}}

	cfg, err := tr.Decode()
	require.NoError(t, err)
	assert.Equal(t, "chat form [city, days]", cfg.Describe())
}

func TestTrigger_DecodeUnknown(t *testing.T) {
	tr := &Trigger{Type: "carrier-pigeon", Config: map[string]any{"loft": 3}}

	cfg, err := tr.Decode()
	require.NoError(t, err)

	u, ok := cfg.(UnknownTrigger)
	require.True(t, ok)
	assert.Equal(t, TriggerType("carrier-pigeon"), u.TriggerType())
	assert.False(t, u.Type.Known())
}

func TestTrigger_DecodeWrongShape(t *testing.T) {
	tr := &Trigger{Type: TriggerMailboxPoll, Config: map[string]any{"pollInterval": "often"}}

	_, err := tr.Decode()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mailbox-poll")
}

func TestTrigger_DecodeNil(t *testing.T) {
	var tr *Trigger
	_, err := tr.Decode()
	assert.Error(t, err)
}

func TestTriggerTypes_AllKnown(t *testing.T) {
	for _, tt := range TriggerTypes() {
		assert.True(t, tt.Known(), string(tt))
	}
}

func TestStep_Segments(t *testing.T) {
	cat, mod, fn, ok := Step{CapabilityPath: "data.json.query"}.Segments()
	require.True(t, ok)
	assert.Equal(t, "data", cat)
	assert.Equal(t, "json", mod)
	assert.Equal(t, "query", fn)

	_, _, _, ok = Step{CapabilityPath: "data.json"}.Segments()
	assert.False(t, ok)
}

func TestWorkflowDefinition_LastStep(t *testing.T) {
	var nilDef *WorkflowDefinition
	assert.Nil(t, nilDef.LastStep())
	assert.Nil(t, (&WorkflowDefinition{}).LastStep())

	def := &WorkflowDefinition{Steps: []Step{{ID: "a"}, {ID: "b"}}}
	assert.Equal(t, "b", def.LastStep().ID)
}
