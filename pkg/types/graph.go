package types

import "strings"

// OutputNamespace is the type-name prefix shared by all output-designated nodes.
const OutputNamespace = "nodetool.output."

// Graph is a workflow graph as produced by the editor and the backend API.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node is a single node in a workflow graph.
type Node struct {
	ID           string         `json:"id"`
	Type         string         `json:"type,omitempty"`
	ParentID     string         `json:"parent_id,omitempty"`
	Data         NodeData       `json:"data,omitempty"`
	UIProperties map[string]any `json:"ui_properties,omitempty"`
	SyncMode     string         `json:"sync_mode,omitempty"`
}

// Edge connects a source handle on one node to a target handle on another.
type Edge struct {
	ID           string         `json:"id,omitempty"`
	Source       string         `json:"source"`
	SourceHandle string         `json:"sourceHandle"`
	Target       string         `json:"target"`
	TargetHandle string         `json:"targetHandle"`
	UIProperties map[string]any `json:"ui_properties,omitempty"`
}

// Key returns the edge id, or a key derived from its endpoints when the id is empty.
func (e *Edge) Key() string {
	if e.ID != "" {
		return e.ID
	}
	return e.Source + ":" + e.SourceHandle + "->" + e.Target + ":" + e.TargetHandle
}

// NodeData is the free-form payload attached to a node.
//
// The payload has no fixed schema. Accessors return the zero value when a key
// is missing or holds a value of a different kind.
type NodeData map[string]any

// String returns the string stored under key, or "".
func (d NodeData) String(key string) string {
	if d == nil {
		return ""
	}
	s, _ := d[key].(string)
	return s
}

// EmbeddedType returns the node type carried inside the payload, if any.
func (d NodeData) EmbeddedType() string {
	return d.String("type")
}

// OutputName returns the user-facing name of an output node.
func (d NodeData) OutputName() string {
	if name := d.String("name"); name != "" {
		return name
	}
	return d.String("label")
}

// Title returns the display title stored in the payload.
func (d NodeData) Title() string {
	if title := d.String("title"); title != "" {
		return title
	}
	return d.String("label")
}

// ResolvedType returns the node type, falling back to the type embedded in its data.
func (n *Node) ResolvedType() string {
	if n.Type != "" {
		return n.Type
	}
	return n.Data.EmbeddedType()
}

// IsOutput reports whether the node exposes a workflow-level output.
func (n *Node) IsOutput() bool {
	return strings.HasPrefix(n.ResolvedType(), OutputNamespace)
}

// Title returns the display title of the node: the data title, the UI title, or "".
func (n *Node) Title() string {
	if t := n.Data.Title(); t != "" {
		return t
	}
	if n.UIProperties != nil {
		if t, ok := n.UIProperties["title"].(string); ok {
			return t
		}
	}
	return ""
}

// FindNode returns the node with the given id.
func (g *Graph) FindNode(id string) (*Node, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// IncomingEdge returns the first edge targeting the given node handle.
func (g *Graph) IncomingEdge(nodeID, handle string) (*Edge, bool) {
	for i := range g.Edges {
		e := &g.Edges[i]
		if e.Target == nodeID && e.TargetHandle == handle {
			return e, true
		}
	}
	return nil, false
}
