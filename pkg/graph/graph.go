package graph

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
)

const (
	NodeTypeRunnable = "runnable"
	NodeTypeSchema   = "schema"
)

// Schema is a placeholder node standing for the input or output of a runnable.
type Schema struct {
	Name   string
	Schema *jsonschema.Schema
}

type Node struct {
	ID   string
	Data any
}

type named interface {
	GetName() string
}

// Name is the label of the node: the schema name, or the name of the runnable.
func (n *Node) Name() string {
	switch d := n.Data.(type) {
	case *Schema:
		return d.Name
	case named:
		return d.GetName()
	case nil:
		return n.ID
	}
	return fmt.Sprintf("%T", n.Data)
}

func (n *Node) Type() string {
	if _, ok := n.Data.(*Schema); ok {
		return NodeTypeSchema
	}
	return NodeTypeRunnable
}

type Edge struct {
	Source      string
	Target      string
	Data        string
	Conditional bool
}

// Graph is the structure of a composed runnable. Nodes keep their insertion order.
type Graph struct {
	nodes map[string]*Node
	order []string
	edges []*Edge
}

func New() *Graph {
	return &Graph{nodes: map[string]*Node{}}
}

func (g *Graph) Nodes() []*Node {
	ret := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		ret = append(ret, g.nodes[id])
	}
	return ret
}

func (g *Graph) Edges() []*Edge {
	return append([]*Edge(nil), g.edges...)
}

func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// AddNode adds a node for data. An empty id is replaced by a fresh uuid; an explicit id
// that is already taken is an error.
func (g *Graph) AddNode(data any, id string) (*Node, error) {
	if id == "" {
		id = uuid.NewString()
	} else if _, ok := g.nodes[id]; ok {
		return nil, errors.Errorf("node with id %q already exists", id)
	}
	n := &Node{ID: id, Data: data}
	g.nodes[id] = n
	g.order = append(g.order, id)
	return n, nil
}

// RemoveNode removes a node and all edges touching it.
func (g *Graph) RemoveNode(id string) {
	if _, ok := g.nodes[id]; !ok {
		return
	}
	delete(g.nodes, id)
	for i, o := range g.order {
		if o == id {
			g.order = append(g.order[:i:i], g.order[i+1:]...)
			break
		}
	}
	edges := g.edges[:0:0]
	for _, e := range g.edges {
		if e.Source != id && e.Target != id {
			edges = append(edges, e)
		}
	}
	g.edges = edges
}

// AddEdge connects two existing nodes.
func (g *Graph) AddEdge(source, target, data string, conditional bool) (*Edge, error) {
	if _, ok := g.nodes[source]; !ok {
		return nil, errors.Errorf("source node %q not in graph", source)
	}
	if _, ok := g.nodes[target]; !ok {
		return nil, errors.Errorf("target node %q not in graph", target)
	}
	e := &Edge{Source: source, Target: target, Data: data, Conditional: conditional}
	g.edges = append(g.edges, e)
	return e, nil
}

// FirstNode returns the single node without incoming edges, or nil if there is none or
// more than one.
func (g *Graph) FirstNode() *Node {
	return g.firstNode(nil)
}

// LastNode returns the single node without outgoing edges, or nil if there is none or
// more than one.
func (g *Graph) LastNode() *Node {
	return g.lastNode(nil)
}

func (g *Graph) firstNode(exclude map[string]bool) *Node {
	targets := map[string]bool{}
	for _, e := range g.edges {
		if !exclude[e.Source] {
			targets[e.Target] = true
		}
	}
	return g.single(func(id string) bool { return !targets[id] && !exclude[id] })
}

func (g *Graph) lastNode(exclude map[string]bool) *Node {
	sources := map[string]bool{}
	for _, e := range g.edges {
		if !exclude[e.Target] {
			sources[e.Source] = true
		}
	}
	return g.single(func(id string) bool { return !sources[id] && !exclude[id] })
}

func (g *Graph) single(pred func(id string) bool) *Node {
	var found *Node
	for _, id := range g.order {
		if !pred(id) {
			continue
		}
		if found != nil {
			return nil
		}
		found = g.nodes[id]
	}
	return found
}

// TrimFirstNode removes the first node if, once it is gone, there still is a unique first
// node.
func (g *Graph) TrimFirstNode() {
	first := g.FirstNode()
	if first == nil {
		return
	}
	if g.firstNode(map[string]bool{first.ID: true}) != nil {
		g.RemoveNode(first.ID)
	}
}

// TrimLastNode removes the last node if, once it is gone, there still is a unique last node.
func (g *Graph) TrimLastNode() {
	last := g.LastNode()
	if last == nil {
		return
	}
	if g.lastNode(map[string]bool{last.ID: true}) != nil {
		g.RemoveNode(last.ID)
	}
}

// Extend adds all nodes and edges of other. Explicit ids of other are prefixed with
// prefix when it is not empty; a node whose id already exists overwrites it. It returns
// the first and last nodes of other, as added to g.
func (g *Graph) Extend(other *Graph, prefix string) (*Node, *Node) {
	rename := func(id string) string {
		if prefix == "" || isUUID(id) {
			return id
		}
		return prefix + ":" + id
	}

	for _, id := range other.order {
		n := other.nodes[id]
		newID := rename(id)
		if _, ok := g.nodes[newID]; !ok {
			g.order = append(g.order, newID)
		}
		g.nodes[newID] = &Node{ID: newID, Data: n.Data}
	}
	for _, e := range other.edges {
		g.edges = append(g.edges, &Edge{
			Source:      rename(e.Source),
			Target:      rename(e.Target),
			Data:        e.Data,
			Conditional: e.Conditional,
		})
	}

	var first, last *Node
	if n := other.FirstNode(); n != nil {
		first = g.nodes[rename(n.ID)]
	}
	if n := other.LastNode(); n != nil {
		last = g.nodes[rename(n.ID)]
	}
	return first, last
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
