package graph

import (
	"fmt"
	"strings"

	"github.com/iancoleman/strcase"
)

// DrawMermaid renders the graph as a mermaid flowchart. Schema nodes are drawn with round
// edges, conditional edges dotted.
func (g *Graph) DrawMermaid() string {
	ids := g.stableIDs()
	mermaidIDs := make(map[string]string, len(g.order))

	var sb strings.Builder
	sb.WriteString("graph TD;\n")
	for _, n := range g.Nodes() {
		id := mermaidID(n, stableString(ids[n.ID]))
		mermaidIDs[n.ID] = id
		label := strings.ReplaceAll(n.Name(), `"`, `'`)
		if n.Type() == NodeTypeSchema {
			fmt.Fprintf(&sb, "\t%s([\"%s\"]);\n", id, label)
		} else {
			fmt.Fprintf(&sb, "\t%s[\"%s\"];\n", id, label)
		}
	}
	for _, e := range g.edges {
		source, target := mermaidIDs[e.Source], mermaidIDs[e.Target]
		switch {
		case e.Conditional && e.Data != "":
			fmt.Fprintf(&sb, "\t%s -. %s .-> %s;\n", source, e.Data, target)
		case e.Conditional:
			fmt.Fprintf(&sb, "\t%s -.-> %s;\n", source, target)
		case e.Data != "":
			fmt.Fprintf(&sb, "\t%s -- %s --> %s;\n", source, e.Data, target)
		default:
			fmt.Fprintf(&sb, "\t%s --> %s;\n", source, target)
		}
	}
	return sb.String()
}

func mermaidID(n *Node, stable string) string {
	base := strcase.ToSnake(n.Name())
	if base == "" {
		base = "node"
	}
	if stable == "" || stable == n.Name() {
		return base
	}
	return base + "_" + strcase.ToSnake(stable)
}
