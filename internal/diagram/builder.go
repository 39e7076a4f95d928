package diagram

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/rendis/flowcheck/internal/expressions"
	"github.com/rendis/flowcheck/internal/validation"
	"github.com/rendis/flowcheck/pkg/schema"
)

// Build constructs a DiagramModel from a WorkflowDefinition. Steps run in
// declaration order; dataflow edges connect the step binding a variable via
// outputAs to every later step that references it. When result is non-nil its
// diagnostics are overlaid on the nodes they are located on.
func Build(def *schema.WorkflowDefinition, result *schema.Result) (*DiagramModel, error) {
	if def == nil {
		return nil, fmt.Errorf("diagram: workflow definition is nil")
	}

	nodes := make([]*Node, 0, len(def.Steps)+2)
	nodes = append(nodes, &Node{ID: triggerNodeID, Label: triggerLabel(def.Trigger), Kind: NodeKindTrigger})
	for _, step := range def.Steps {
		nodes = append(nodes, &Node{
			ID:         step.ID,
			Label:      fmt.Sprintf("%s\n(%s)", step.ID, step.CapabilityPath),
			Capability: step.CapabilityPath,
			Kind:       NodeKindStep,
		})
	}
	nodes = append(nodes, &Node{ID: outputNodeID, Label: outputLabel(def.OutputDisplay), Kind: NodeKindOutput})

	levels := make([][]string, len(nodes))
	for i, n := range nodes {
		levels[i] = []string{n.ID}
	}

	model := &DiagramModel{
		Title:  titleFromDef(def),
		Nodes:  nodes,
		Edges:  buildEdges(def),
		Levels: levels,
	}
	if result != nil {
		overlayFindings(model, def, result.Diagnostics)
	}
	return model, nil
}

func triggerLabel(t *schema.Trigger) string {
	if t == nil {
		return "start"
	}
	tc, err := t.Decode()
	if err != nil {
		return string(t.Type)
	}
	return tc.Describe()
}

func outputLabel(d *schema.OutputDisplay) string {
	if d == nil {
		return "end"
	}
	return "output: " + string(d.Type)
}

// buildEdges chains the nodes in execution order and adds one dataflow edge
// per (producer, consumer, variable). Unbound references get no edge.
func buildEdges(def *schema.WorkflowDefinition) []Edge {
	var edges []Edge

	prev := triggerNodeID
	for _, step := range def.Steps {
		edges = append(edges, Edge{From: prev, To: step.ID, Kind: EdgeSequence})
		prev = step.ID
	}
	edges = append(edges, Edge{From: prev, To: outputNodeID, Kind: EdgeSequence})

	seen := make(map[Edge]bool)
	addFlow := func(from, to, name string) {
		e := Edge{From: from, To: to, Label: name, Kind: EdgeDataflow}
		if !seen[e] {
			seen[e] = true
			edges = append(edges, e)
		}
	}

	producers := make(map[string]string, len(def.Steps))
	for _, step := range def.Steps {
		for _, name := range inputNames(step.Inputs) {
			if slices.Contains(validation.BuiltinBindings, name) {
				addFlow(triggerNodeID, step.ID, name)
			} else if producer, ok := producers[name]; ok {
				addFlow(producer, step.ID, name)
			}
		}
		if step.OutputAs != "" {
			if _, ok := producers[step.OutputAs]; !ok {
				producers[step.OutputAs] = step.ID
			}
		}
	}

	if def.OutputDisplay != nil && def.OutputDisplay.Source != "" {
		for _, name := range expressions.ExtractNames(def.OutputDisplay.Source) {
			if producer, ok := producers[name]; ok {
				addFlow(producer, outputNodeID, name)
			}
		}
	}
	return edges
}

func inputNames(inputs map[string]any) []string {
	if len(inputs) == 0 {
		return nil
	}
	b, err := json.Marshal(inputs)
	if err != nil {
		return nil
	}
	return expressions.ExtractNames(string(b))
}

// overlayFindings attributes each diagnostic to the node its location names.
func overlayFindings(model *DiagramModel, def *schema.WorkflowDefinition, diags []schema.Diagnostic) {
	index := make(map[string]*Node, len(model.Nodes))
	for _, n := range model.Nodes {
		index[n.ID] = n
	}

	for _, d := range diags {
		var target **Findings
		if n, ok := index[nodeForLocation(def, d.Location)]; ok {
			target = &n.Findings
		} else {
			target = &model.Unplaced
		}
		if *target == nil {
			*target = &Findings{}
		}
		record(*target, d)
	}
}

func record(f *Findings, d schema.Diagnostic) {
	if d.Severity == schema.SeverityWarning {
		f.Warnings++
	} else {
		f.Errors++
	}
	kind := d.Kind.String()
	for _, k := range f.Kinds {
		if k == kind {
			return
		}
	}
	f.Kinds = append(f.Kinds, kind)
}

// nodeForLocation maps steps.<id>.*, steps[<n>].*, trigger.* and
// outputDisplay.* locations to node ids. Anything else maps to "".
func nodeForLocation(def *schema.WorkflowDefinition, loc string) string {
	switch {
	case strings.HasPrefix(loc, "steps."):
		id, _, _ := strings.Cut(strings.TrimPrefix(loc, "steps."), ".")
		return id
	case strings.HasPrefix(loc, "steps["):
		end := strings.IndexByte(loc, ']')
		if end < 0 {
			return ""
		}
		i, err := strconv.Atoi(loc[len("steps["):end])
		if err != nil || i < 0 || i >= len(def.Steps) {
			return ""
		}
		return def.Steps[i].ID
	case loc == "trigger" || strings.HasPrefix(loc, "trigger."):
		return triggerNodeID
	case loc == "outputDisplay" || strings.HasPrefix(loc, "outputDisplay."):
		return outputNodeID
	default:
		return ""
	}
}

// titleFromDef generates a diagram title from workflow metadata.
func titleFromDef(def *schema.WorkflowDefinition) string {
	if def.Name != "" {
		return def.Name
	}
	return "Workflow"
}
