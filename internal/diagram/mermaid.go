package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
// Sequence edges are solid, dataflow edges dotted and labelled with the
// variable they carry.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph TD\n")

	if model.Title != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", model.Title)
	}

	for _, node := range model.Nodes {
		fmt.Fprintf(&b, "    %s\n", mermaidNodeDef(node))
	}

	for _, edge := range model.Edges {
		from, to := mermaidSafeID(edge.From), mermaidSafeID(edge.To)
		switch {
		case edge.Kind == EdgeDataflow && edge.Label != "":
			fmt.Fprintf(&b, "    %s -.->|%s| %s\n", from, edge.Label, to)
		case edge.Kind == EdgeDataflow:
			fmt.Fprintf(&b, "    %s -.-> %s\n", from, to)
		case edge.Label != "":
			fmt.Fprintf(&b, "    %s -->|%s| %s\n", from, edge.Label, to)
		default:
			fmt.Fprintf(&b, "    %s --> %s\n", from, to)
		}
	}

	b.WriteString("\n")
	b.WriteString("    classDef error fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef warning fill:#b7791a,stroke:#8a5c14,color:#fff\n")
	b.WriteString("    classDef ok fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")

	for _, node := range model.Nodes {
		if node.Kind != NodeKindStep && node.Findings == nil {
			continue
		}
		fmt.Fprintf(&b, "    class %s %s\n", mermaidSafeID(node.ID), node.Findings.Status())
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the appropriate shape.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(strings.ReplaceAll(node.Label, "\n", "<br/>"))

	switch node.Kind {
	case NodeKindTrigger:
		return fmt.Sprintf("%s([\"%s\"])", id, label)
	case NodeKindOutput:
		return fmt.Sprintf("%s[/\"%s\"/]", id, label)
	default:
		return fmt.Sprintf("%s[\"%s\"]", id, label)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

// mermaidEscapeLabel escapes characters that terminate a quoted Mermaid label.
func mermaidEscapeLabel(s string) string {
	return strings.ReplaceAll(s, `"`, "#quot;")
}
