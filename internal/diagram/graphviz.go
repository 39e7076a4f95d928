package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// ImageFormat selects the graphviz output format.
type ImageFormat string

const (
	FormatPNG ImageFormat = "png"
	FormatSVG ImageFormat = "svg"
	FormatDOT ImageFormat = "dot"
)

func (f ImageFormat) graphviz() (graphviz.Format, error) {
	switch f {
	case FormatPNG:
		return graphviz.PNG, nil
	case FormatSVG:
		return graphviz.SVG, nil
	case FormatDOT:
		return graphviz.XDOT, nil
	default:
		return "", fmt.Errorf("diagram: unsupported image format %q", f)
	}
}

// RenderImage renders a DiagramModel through graphviz in the given format.
func RenderImage(ctx context.Context, model *DiagramModel, format ImageFormat) ([]byte, error) {
	gvFormat, err := format.graphviz()
	if err != nil {
		return nil, err
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, node := range model.Nodes {
		gvNode, nErr := graph.CreateNodeByName(node.ID)
		if nErr != nil {
			return nil, fmt.Errorf("diagram: create node %s: %w", node.ID, nErr)
		}
		gvNode.SetLabel(node.Label)
		applyNodeStyle(gvNode, node)
		gvNodes[node.ID] = gvNode
	}

	for i, edge := range model.Edges {
		fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
		if fromGV == nil || toGV == nil {
			continue
		}
		e, eErr := graph.CreateEdgeByName(fmt.Sprintf("e%d", i), fromGV, toGV)
		if eErr != nil {
			return nil, fmt.Errorf("diagram: create edge %s->%s: %w", edge.From, edge.To, eErr)
		}
		if edge.Label != "" {
			e.SetLabel(edge.Label)
		}
		if edge.Kind == EdgeDataflow {
			e.SetStyle(cgraph.DashedEdgeStyle)
			e.SetColor("#1a5276")
			e.SetFontColor("#1a5276")
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, gvFormat, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render %s: %w", format, err)
	}

	return buf.Bytes(), nil
}

// applyNodeStyle sets graphviz attributes based on node kind and findings.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	switch node.Kind {
	case NodeKindTrigger:
		gvNode.SetShape(cgraph.EllipseShape)
	case NodeKindOutput:
		gvNode.SetShape(cgraph.NoteShape)
	default:
		gvNode.SetShape(cgraph.BoxShape)
	}

	if node.Kind == NodeKindStep || node.Findings != nil {
		applyFindingsColor(gvNode, node.Findings.Status())
	}
}

// applyFindingsColor sets fill color and style based on findings status.
func applyFindingsColor(gvNode *cgraph.Node, status string) {
	gvNode.SetStyle(cgraph.FilledNodeStyle)
	switch status {
	case "error":
		gvNode.SetFillColor("#8b1a1a")
		gvNode.SetFontColor("white")
	case "warning":
		gvNode.SetFillColor("#b7791a")
		gvNode.SetFontColor("white")
	default:
		gvNode.SetFillColor("#2d6a2d")
		gvNode.SetFontColor("white")
	}
}
