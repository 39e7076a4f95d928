package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/rendis/flowcheck/pkg/schema"
)

// ParseDocument decodes a workflow document. Input whose first non-space
// byte is '{' is read as JSON, anything else as YAML.
func ParseDocument(data []byte) (any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "document is empty")
	}

	var doc any
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "parse JSON document: %v", err).WithCause(err)
		}
		return doc, nil
	}

	if err := yaml.Unmarshal(trimmed, &doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "parse YAML document: %v", err).WithCause(err)
	}
	return doc, nil
}

// DocumentName returns the workflow name of a parsed document, if any.
func DocumentName(doc any) string {
	m, ok := doc.(map[string]any)
	if !ok {
		return ""
	}
	name, _ := m["name"].(string)
	return name
}
