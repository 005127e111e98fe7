package graph

import (
	"encoding/json"
	"strconv"
)

// JSONNode is the exported form of a node. ID is an int for generated ids and the
// explicit id otherwise.
type JSONNode struct {
	ID   any    `json:"id" yaml:"id"`
	Type string `json:"type" yaml:"type"`
	Data any    `json:"data" yaml:"data"`
}

type JSONEdge struct {
	Source      any    `json:"source" yaml:"source"`
	Target      any    `json:"target" yaml:"target"`
	Data        string `json:"data,omitempty" yaml:"data,omitempty"`
	Conditional bool   `json:"conditional,omitempty" yaml:"conditional,omitempty"`
}

type JSONGraph struct {
	Nodes []JSONNode `json:"nodes" yaml:"nodes"`
	Edges []JSONEdge `json:"edges" yaml:"edges"`
}

// stableIDs maps generated ids to the position of their node in insertion order, so that
// structurally identical graphs export identically.
func (g *Graph) stableIDs() map[string]any {
	ret := make(map[string]any, len(g.order))
	for i, id := range g.order {
		if isUUID(id) {
			ret[id] = i
		} else {
			ret[id] = id
		}
	}
	return ret
}

func (g *Graph) ToJSON() *JSONGraph {
	ids := g.stableIDs()
	ret := &JSONGraph{
		Nodes: make([]JSONNode, 0, len(g.order)),
		Edges: make([]JSONEdge, 0, len(g.edges)),
	}
	for _, n := range g.Nodes() {
		ret.Nodes = append(ret.Nodes, JSONNode{
			ID:   ids[n.ID],
			Type: n.Type(),
			Data: nodeData(n),
		})
	}
	for _, e := range g.edges {
		ret.Edges = append(ret.Edges, JSONEdge{
			Source:      ids[e.Source],
			Target:      ids[e.Target],
			Data:        e.Data,
			Conditional: e.Conditional,
		})
	}
	return ret
}

func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.ToJSON())
}

func nodeData(n *Node) any {
	s, ok := n.Data.(*Schema)
	if !ok {
		return map[string]any{"name": n.Name()}
	}
	ret := map[string]any{}
	if s.Schema != nil {
		b, err := json.Marshal(s.Schema)
		if err == nil {
			_ = json.Unmarshal(b, &ret)
		}
	}
	ret["title"] = s.Name
	return ret
}

func stableString(id any) string {
	switch v := id.(type) {
	case int:
		return strconv.Itoa(v)
	case string:
		return v
	}
	return ""
}
