package schema

import "strings"

// WorkflowDefinition is the declarative workflow document, decoded from JSON or YAML.
// It is owned by the caller and never mutated during validation.
type WorkflowDefinition struct {
	Version       string         `json:"version"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Trigger       *Trigger       `json:"trigger,omitempty"`
	Steps         []Step         `json:"steps"`
	OutputDisplay *OutputDisplay `json:"outputDisplay,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// LastStep returns the final step, or nil when there are none.
func (d *WorkflowDefinition) LastStep() *Step {
	if d == nil || len(d.Steps) == 0 {
		return nil
	}
	return &d.Steps[len(d.Steps)-1]
}

// Step invokes one catalog capability with templated inputs.
type Step struct {
	ID             string         `json:"id"`
	CapabilityPath string         `json:"capabilityPath"`
	Inputs         map[string]any `json:"inputs,omitempty"`
	OutputAs       string         `json:"outputAs,omitempty"`
}

// Segments splits the capability path into category, module and function.
// ok is false when the path does not have exactly three segments.
func (s Step) Segments() (category, module, function string, ok bool) {
	parts := strings.Split(s.CapabilityPath, ".")
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// DisplayType enumerates the output display renderings.
type DisplayType string

const (
	DisplayText     DisplayType = "text"
	DisplayJSON     DisplayType = "json"
	DisplayTable    DisplayType = "table"
	DisplayList     DisplayType = "list"
	DisplayMarkdown DisplayType = "markdown"
)

// OutputDisplay describes how the workflow's final value is presented.
type OutputDisplay struct {
	Type    DisplayType `json:"type"`
	Columns []Column    `json:"columns,omitempty"`
	Source  string      `json:"source,omitempty"` // template reference, e.g. "{{rows}}"
}

// Column is one table column of an OutputDisplay.
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}
