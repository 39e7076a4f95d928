package report

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateJSONSchema produces the JSON Schema of the Report record using
// invopop/jsonschema.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&Report{})
	s.ID = "https://github.com/rendis/flowcheck/schemas/report-v1.json"
	s.Title = "flowcheck validation report"
	s.Description = "Machine-readable result of validating one workflow definition"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report schema: %w", err)
	}
	return data, nil
}
