package diagram

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// findingsTag returns a short ASCII indicator for a node's findings.
func findingsTag(f *Findings) string {
	switch f.Status() {
	case "error":
		return fmt.Sprintf("[%d ERR]", f.Errors)
	case "warning":
		return fmt.Sprintf("[%d WARN]", f.Warnings)
	default:
		return "[OK]"
	}
}

// RenderASCII renders a DiagramModel as a text-based ASCII diagram: one box per
// level, then the dataflow edges and any findings not tied to a node.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}

	for levelIdx, level := range model.Levels {
		var boxes []asciiBox
		for _, nodeID := range level {
			node := findNode(model.Nodes, nodeID)
			if node == nil {
				continue
			}
			boxes = append(boxes, makeBox(node))
		}

		renderBoxRow(&b, boxes)

		if levelIdx < len(model.Levels)-1 {
			renderConnector(&b, len(boxes))
		}
	}

	var flows []Edge
	for _, e := range model.Edges {
		if e.Kind == EdgeDataflow {
			flows = append(flows, e)
		}
	}
	if len(flows) > 0 {
		b.WriteString("\n--- dataflow ---\n")
		for _, e := range flows {
			fmt.Fprintf(&b, "  %s ─%s→ %s\n", displayID(model, e.From), e.Label, displayID(model, e.To))
		}
	}

	if model.Unplaced != nil {
		fmt.Fprintf(&b, "\n--- document ---\n  %s %s\n", findingsTag(model.Unplaced), strings.Join(model.Unplaced.Kinds, ", "))
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node.
func makeBox(node *Node) asciiBox {
	contentLines := strings.Split(node.Label, "\n")

	if node.Kind == NodeKindStep || node.Findings != nil {
		contentLines = append(contentLines, findingsTag(node.Findings))
		if node.Findings != nil && len(node.Findings.Kinds) > 0 {
			contentLines = append(contentLines, strings.Join(node.Findings.Kinds, ", "))
		}
	}

	maxLen := 0
	for _, line := range contentLines {
		if n := utf8.RuneCountInString(line); n > maxLen {
			maxLen = n
		}
	}
	width := maxLen + 4 // 2 border + 2 padding

	var lines []string
	top := "┌" + strings.Repeat("─", width-2) + "┐"
	bot := "└" + strings.Repeat("─", width-2) + "┘"
	lines = append(lines, top)
	for _, content := range contentLines {
		padded := content + strings.Repeat(" ", maxLen-utf8.RuneCountInString(content))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, bot)

	return asciiBox{lines: lines, width: width}
}

// firstLine returns only the first line of a multi-line label.
func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}

	maxHeight := 0
	for _, box := range boxes {
		if len(box.lines) > maxHeight {
			maxHeight = len(box.lines)
		}
	}

	for row := 0; row < maxHeight; row++ {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

// renderConnector draws a vertical connector between levels.
func renderConnector(b *strings.Builder, boxCount int) {
	if boxCount == 0 {
		return
	}
	b.WriteString("       │\n")
	b.WriteString("       ▼\n")
}

// displayID names a node in the dataflow listing by its first label line.
func displayID(model *DiagramModel, id string) string {
	if n := findNode(model.Nodes, id); n != nil {
		return firstLine(n.Label)
	}
	return id
}

// findNode looks up a node by ID in the model's node list.
func findNode(nodes []*Node, id string) *Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
