package diagram

// NodeKind classifies a diagram node.
type NodeKind string

const (
	NodeKindTrigger NodeKind = "trigger"
	NodeKindStep    NodeKind = "step"
	NodeKindOutput  NodeKind = "output"
)

const (
	triggerNodeID = "__trigger__"
	outputNodeID  = "__output__"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
	// Unplaced counts findings that belong to no node, e.g. a missing name.
	Unplaced *Findings
}

// Node is the trigger, one step, or the output display.
type Node struct {
	ID         string
	Label      string
	Capability string
	Kind       NodeKind
	Findings   *Findings
}

// Findings summarizes the diagnostics located on a node.
type Findings struct {
	Errors   int
	Warnings int
	// Kinds lists the distinct diagnostic kinds, in first-seen order.
	Kinds []string
}

// Status returns "error", "warning" or "ok".
func (f *Findings) Status() string {
	switch {
	case f == nil:
		return "ok"
	case f.Errors > 0:
		return "error"
	case f.Warnings > 0:
		return "warning"
	default:
		return "ok"
	}
}

// EdgeKind distinguishes execution order from variable dataflow.
type EdgeKind string

const (
	EdgeSequence EdgeKind = "sequence"
	EdgeDataflow EdgeKind = "dataflow"
)

// Edge connects two nodes. Dataflow edges are labelled with the variable name.
type Edge struct {
	From  string
	To    string
	Label string
	Kind  EdgeKind
}
