package validation

import (
	"embed"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"

	"github.com/rendis/flowcheck/internal/expressions"
	"github.com/rendis/flowcheck/pkg/schema"
)

const (
	schemaBaseURL  = "https://flowcheck.dev/schemas/"
	workflowSchema = "workflow.json"

	// Patterns shared with schemas/workflow.json; a violation of one of these
	// carries a templated suggestion.
	CapabilityPathPattern = `^[a-z][a-z0-9-]*\.[a-z][a-z0-9-]*\.[a-z][a-z0-9-]*$`
	StepIDPattern         = `^[A-Za-z0-9][A-Za-z0-9_-]*$`
	VersionPattern        = `^[0-9]+\.[0-9]+(\.[0-9]+)?$`

	rootLocation = "(root)"
)

//go:embed schemas/*.json schemas/triggers/*.json
var schemaFS embed.FS

var patternSuggestions = map[string]string{
	CapabilityPathPattern:         `Use "category.module.function" with lowercase letters, digits and hyphens, e.g. "data.json.query".`,
	expressions.ReferencePattern:  `Reference a binding as "{{name}}", "{{name.field}}" or "{{name[0]}}".`,
	expressions.IdentifierPattern: `Binding names start with a letter or underscore and contain only letters, digits and underscores, e.g. "results".`,
	StepIDPattern:                 `Step ids contain letters, digits, hyphens and underscores, e.g. "fetch-orders".`,
	VersionPattern:                `Use a dotted numeric version such as "1.0".`,
}

// compiledSchemas holds the workflow schema and one sub-schema per known trigger type.
type compiledSchemas struct {
	workflow *jsonschema.Schema
	triggers map[schema.TriggerType]*jsonschema.Schema
}

var (
	schemasOnce sync.Once
	schemas     *compiledSchemas
	schemasErr  error
)

// loadSchemas compiles the embedded schemas once per process. The result is
// read-only and shared by every validation call.
func loadSchemas() (*compiledSchemas, error) {
	schemasOnce.Do(func() {
		schemas, schemasErr = compileSchemas()
	})
	return schemas, schemasErr
}

func compileSchemas() (*compiledSchemas, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	c.RegisterFormat(&jsonschema.Format{Name: "cron", Validate: validateCronFormat})

	files := []string{workflowSchema}
	for _, t := range schema.TriggerTypes() {
		files = append(files, triggerSchemaFile(t))
	}

	for _, name := range files {
		raw, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("unmarshal schema %s: %w", name, err)
		}
		if err := c.AddResource(schemaBaseURL+name, doc); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", name, err)
		}
	}

	wf, err := c.Compile(schemaBaseURL + workflowSchema)
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}

	out := &compiledSchemas{
		workflow: wf,
		triggers: make(map[schema.TriggerType]*jsonschema.Schema),
	}
	for _, t := range schema.TriggerTypes() {
		sch, err := c.Compile(schemaBaseURL + triggerSchemaFile(t))
		if err != nil {
			return nil, fmt.Errorf("compile %s trigger schema: %w", t, err)
		}
		out.triggers[t] = sch
	}
	return out, nil
}

func triggerSchemaFile(t schema.TriggerType) string {
	return "triggers/" + string(t) + ".json"
}

// WorkflowSchema returns the raw JSON Schema for workflow documents.
func WorkflowSchema() []byte {
	raw, _ := schemaFS.ReadFile("schemas/" + workflowSchema)
	return raw
}

// TriggerSchema returns the raw sub-schema for a known trigger type.
func TriggerSchema(t schema.TriggerType) ([]byte, bool) {
	if !t.Known() {
		return nil, false
	}
	raw, err := schemaFS.ReadFile("schemas/" + triggerSchemaFile(t))
	return raw, err == nil
}

// ValidateStructure checks a parsed document against the workflow schema and,
// for a known trigger type, the trigger's sub-schema. Every violation is
// reported; duplicate step ids are reported as schema violations too.
// It panics only if the embedded schemas fail to compile.
func ValidateStructure(doc any) *schema.Result {
	compiled, err := loadSchemas()
	if err != nil {
		panic(fmt.Sprintf("flowcheck: embedded schemas are invalid: %v", err))
	}

	result := &schema.Result{}

	value, err := toJSONValue(doc)
	if err != nil {
		result.Add(schema.NewDiagnostic(schema.KindSchemaViolation, rootLocation,
			"document cannot be represented as JSON: %v", err).WithRule("not-json"))
		return result
	}

	var violations []violation
	if err := compiled.workflow.Validate(value); err != nil {
		violations = append(violations, collectViolations(err, nil)...)
	}

	if trigger, ok := lookupObject(value, "trigger"); ok {
		t, _ := trigger["type"].(string)
		if sub, known := compiled.triggers[schema.TriggerType(t)]; known {
			if err := sub.Validate(trigger); err != nil {
				violations = append(violations, collectViolations(err, []string{"trigger"})...)
			}
		}
	}

	violations = append(violations, duplicateStepIDs(value)...)

	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].less(violations[j])
	})
	for _, v := range violations {
		result.Add(v.diagnostic())
	}
	return result
}

// violation is one leaf schema failure, before it becomes a Diagnostic.
type violation struct {
	path       []string
	rule       string
	message    string
	suggestion string
}

func (v violation) diagnostic() schema.Diagnostic {
	d := schema.NewDiagnostic(schema.KindSchemaViolation, formatLocation(v.path), "%s", v.message).
		WithRule(v.rule)
	if v.suggestion != "" {
		d = d.WithSuggestion(v.suggestion)
	}
	return d
}

// less orders by instance path (array indices numerically), then rule, then message.
func (v violation) less(o violation) bool {
	for i := 0; i < len(v.path) && i < len(o.path); i++ {
		a, b := v.path[i], o.path[i]
		if a == b {
			continue
		}
		ai, aErr := strconv.Atoi(a)
		bi, bErr := strconv.Atoi(b)
		if aErr == nil && bErr == nil {
			return ai < bi
		}
		return a < b
	}
	if len(v.path) != len(o.path) {
		return len(v.path) < len(o.path)
	}
	if v.rule != o.rule {
		return v.rule < o.rule
	}
	return v.message < o.message
}

// collectViolations walks a ValidationError tree and converts its leaves.
func collectViolations(err error, prefix []string) []violation {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []violation{{path: prefix, rule: "schema", message: err.Error()}}
	}

	var out []violation
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}
		path := append(append([]string{}, prefix...), e.InstanceLocation...)
		out = append(out, describeViolation(path, e)...)
	}
	walk(verr)
	return out
}

// describeViolation maps a leaf error to reader-facing violations, one per
// missing or unexpected property.
func describeViolation(path []string, e *jsonschema.ValidationError) []violation {
	switch k := e.ErrorKind.(type) {
	case *kind.Required:
		out := make([]violation, 0, len(k.Missing))
		for _, m := range k.Missing {
			out = append(out, violation{
				path:    appendPath(path, m),
				rule:    "missing-required",
				message: fmt.Sprintf("missing required field %q", m),
			})
		}
		return out
	case *kind.AdditionalProperties:
		out := make([]violation, 0, len(k.Properties))
		for _, p := range k.Properties {
			out = append(out, violation{
				path:    appendPath(path, p),
				rule:    "additional-property",
				message: fmt.Sprintf("unknown field %q", p),
			})
		}
		return out
	case *kind.Type:
		return []violation{{
			path:    path,
			rule:    "wrong-type",
			message: fmt.Sprintf("expected %s, got %s", strings.Join(k.Want, " or "), k.Got),
		}}
	case *kind.Enum:
		allowed := make([]string, 0, len(k.Want))
		for _, w := range k.Want {
			allowed = append(allowed, fmt.Sprint(w))
		}
		return []violation{{
			path:       path,
			rule:       "not-in-enum",
			message:    fmt.Sprintf("value %s is not allowed", jsonText(k.Got)),
			suggestion: "Allowed values: " + strings.Join(allowed, ", ") + ".",
		}}
	case *kind.Const:
		return []violation{{
			path:    path,
			rule:    "const-mismatch",
			message: fmt.Sprintf("value must be %s, got %s", jsonText(k.Want), jsonText(k.Got)),
		}}
	case *kind.Pattern:
		return []violation{{
			path:       path,
			rule:       "pattern-mismatch",
			message:    fmt.Sprintf("%q does not match pattern %s", k.Got, k.Want),
			suggestion: patternSuggestions[k.Want],
		}}
	case *kind.MinLength:
		return []violation{lengthBound(path, fmt.Sprintf("must be at least %d character(s) long, got %d", k.Want, k.Got))}
	case *kind.MaxLength:
		return []violation{lengthBound(path, fmt.Sprintf("must be at most %d character(s) long, got %d", k.Want, k.Got))}
	case *kind.MinItems:
		return []violation{lengthBound(path, fmt.Sprintf("must contain at least %d item(s), got %d", k.Want, k.Got))}
	case *kind.MaxItems:
		return []violation{lengthBound(path, fmt.Sprintf("must contain at most %d item(s), got %d", k.Want, k.Got))}
	case *kind.Minimum:
		return []violation{lengthBound(path, fmt.Sprintf("must be >= %s, got %s", ratText(k.Want), ratText(k.Got)))}
	case *kind.Maximum:
		return []violation{lengthBound(path, fmt.Sprintf("must be <= %s, got %s", ratText(k.Want), ratText(k.Got)))}
	case *kind.Format:
		v := violation{
			path:    path,
			rule:    "format",
			message: fmt.Sprintf("%s is not a valid %s: %v", jsonText(k.Got), k.Want, k.Err),
		}
		if k.Want == "cron" {
			v.suggestion = cronSuggestion
		}
		return []violation{v}
	default:
		return []violation{{path: path, rule: "schema", message: strings.TrimSpace(e.Error())}}
	}
}

func lengthBound(path []string, msg string) violation {
	return violation{path: path, rule: "length-bound", message: msg}
}

func appendPath(path []string, elem string) []string {
	return append(append(make([]string, 0, len(path)+1), path...), elem)
}

// duplicateStepIDs reports every repeated step id after its first declaration.
func duplicateStepIDs(doc any) []violation {
	root, ok := doc.(map[string]any)
	if !ok {
		return nil
	}
	steps, ok := root["steps"].([]any)
	if !ok {
		return nil
	}

	first := make(map[string]int, len(steps))
	var out []violation
	for i, s := range steps {
		step, ok := s.(map[string]any)
		if !ok {
			continue
		}
		id, ok := step["id"].(string)
		if !ok || id == "" {
			continue
		}
		if j, dup := first[id]; dup {
			out = append(out, violation{
				path:       []string{"steps", strconv.Itoa(i), "id"},
				rule:       "duplicate-step-id",
				message:    fmt.Sprintf("duplicate step id %q (first declared at steps[%d])", id, j),
				suggestion: "Step ids must be unique within a workflow; rename this step.",
			})
			continue
		}
		first[id] = i
	}
	return out
}

// formatLocation renders an instance path as steps[0].capabilityPath.
func formatLocation(path []string) string {
	if len(path) == 0 {
		return rootLocation
	}
	var sb strings.Builder
	for i, seg := range path {
		if _, err := strconv.Atoi(seg); err == nil && i > 0 {
			sb.WriteString("[" + seg + "]")
			continue
		}
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(seg)
	}
	return sb.String()
}

func lookupObject(doc any, key string) (map[string]any, bool) {
	root, ok := doc.(map[string]any)
	if !ok {
		return nil, false
	}
	obj, ok := root[key].(map[string]any)
	return obj, ok
}

func jsonText(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func ratText(r *big.Rat) string {
	if r == nil {
		return "?"
	}
	return r.RatString()
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}
