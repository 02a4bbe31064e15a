package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/tidwall/gjson"
)

// ============================================================================
// Node types
// ============================================================================

type NodeType string

const (
	NodeTypeMessage      NodeType = "message"
	NodeTypeQuestion     NodeType = "question"
	NodeTypeMedia        NodeType = "media"
	NodeTypeCondition    NodeType = "condition"
	NodeTypeAPI          NodeType = "api"
	NodeTypeUpdateCRM    NodeType = "updateCRM"
	NodeTypeCreateRecord NodeType = "createRecord"
	NodeTypeInterval     NodeType = "interval"
	NodeTypeAIReply      NodeType = "aiReply"
	NodeTypeEnd          NodeType = "end"
)

// nodeTypeAliases maps editor names onto canonical node types.
var nodeTypeAliases = map[string]NodeType{
	"chatgpt": NodeTypeAIReply,
}

// ExecutableNodeTypes lists every node type that needs a registered executor.
// End nodes are terminal and handled by the engine itself.
func ExecutableNodeTypes() []NodeType {
	return []NodeType{
		NodeTypeMessage,
		NodeTypeQuestion,
		NodeTypeMedia,
		NodeTypeCondition,
		NodeTypeAPI,
		NodeTypeUpdateCRM,
		NodeTypeCreateRecord,
		NodeTypeInterval,
		NodeTypeAIReply,
	}
}

func (t NodeType) IsValid() bool {
	if t == NodeTypeEnd {
		return true
	}
	for _, known := range ExecutableNodeTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// ParseNodeType normalises an authored type name. Unknown names are kept
// verbatim so the engine can report them.
func ParseNodeType(s string) NodeType {
	if alias, ok := nodeTypeAliases[s]; ok {
		return alias
	}
	return NodeType(s)
}

// ============================================================================
// Graph
// ============================================================================

// Node is one vertex of a flow. Data is decoded once at load time and never
// mutated afterwards.
type Node struct {
	ID    string
	Type  NodeType
	Start bool
	Data  NodeData

	raw json.RawMessage
}

// Edge connects two nodes. Handle is the branch label for condition and
// question nodes; empty for plain edges.
type Edge struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source"`
	Target string `json:"target"`
	Handle string `json:"sourceHandle,omitempty"`
}

// FlowGraph is the immutable, indexed form of a stored flow document.
type FlowGraph struct {
	ID    kernel.FlowID
	Nodes []Node
	Edges []Edge

	nodeIndex map[string]int
	outgoing  map[string][]Edge
	incoming  map[string]int
}

type rawNode struct {
	ID    json.RawMessage `json:"id"`
	Type  string          `json:"type"`
	Start bool            `json:"start,omitempty"`
	Data  json.RawMessage `json:"data"`
}

type rawEdge struct {
	ID           string          `json:"id"`
	Source       json.RawMessage `json:"source"`
	Target       json.RawMessage `json:"target"`
	SourceHandle *string         `json:"sourceHandle"`
	Handle       *string         `json:"handle"`
}

type rawGraph struct {
	Nodes []rawNode `json:"nodes"`
	Edges []rawEdge `json:"edges"`
}

// ParseFlowGraph decodes a React Flow style document ({nodes, edges}) and
// builds the lookup indexes. Structural problems are reported by Validate.
func ParseFlowGraph(id kernel.FlowID, doc []byte) (*FlowGraph, error) {
	var rg rawGraph
	if err := json.Unmarshal(doc, &rg); err != nil {
		return nil, ErrInvalidFlow().
			WithDetail("reason", "flow document is not valid JSON").
			WithDetail("cause", err.Error())
	}

	g := &FlowGraph{
		ID:    id,
		Nodes: make([]Node, 0, len(rg.Nodes)),
		Edges: make([]Edge, 0, len(rg.Edges)),
	}

	for _, rn := range rg.Nodes {
		nodeType := ParseNodeType(rn.Type)
		data := rn.Data
		if len(data) == 0 {
			data = json.RawMessage("{}")
		}
		g.Nodes = append(g.Nodes, Node{
			ID:    jsonScalar(rn.ID),
			Type:  nodeType,
			Start: rn.Start,
			Data:  DecodeNodeData(nodeType, data),
			raw:   data,
		})
	}

	for _, re := range rg.Edges {
		edge := Edge{ID: re.ID, Source: jsonScalar(re.Source), Target: jsonScalar(re.Target)}
		switch {
		case re.SourceHandle != nil:
			edge.Handle = *re.SourceHandle
		case re.Handle != nil:
			edge.Handle = *re.Handle
		}
		g.Edges = append(g.Edges, edge)
	}

	g.index()
	return g, nil
}

// NewFlowGraph builds a graph from already-typed nodes and edges.
func NewFlowGraph(id kernel.FlowID, nodes []Node, edges []Edge) *FlowGraph {
	g := &FlowGraph{ID: id, Nodes: nodes, Edges: edges}
	g.index()
	return g
}

func (g *FlowGraph) index() {
	g.nodeIndex = make(map[string]int, len(g.Nodes))
	g.outgoing = make(map[string][]Edge)
	g.incoming = make(map[string]int)

	for i, n := range g.Nodes {
		if _, dup := g.nodeIndex[n.ID]; !dup {
			g.nodeIndex[n.ID] = i
		}
	}
	for _, e := range g.Edges {
		g.outgoing[e.Source] = append(g.outgoing[e.Source], e)
		g.incoming[e.Target]++
	}
}

// Validate checks the structural invariants every stored flow must satisfy.
func (g *FlowGraph) Validate() error {
	if len(g.Nodes) == 0 {
		return ErrInvalidFlow().WithDetail("reason", "flow has no nodes")
	}

	seen := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			return ErrInvalidFlow().WithDetail("reason", "node without id")
		}
		if seen[n.ID] {
			return ErrInvalidFlow().
				WithDetail("reason", "duplicate node id").
				WithDetail("node_id", n.ID)
		}
		seen[n.ID] = true
	}

	for _, e := range g.Edges {
		if !seen[e.Source] || !seen[e.Target] {
			return ErrInvalidFlow().
				WithDetail("reason", "edge references an unknown node").
				WithDetail("source", e.Source).
				WithDetail("target", e.Target)
		}
	}

	if _, err := g.EntryPoint(); err != nil {
		return err
	}
	return nil
}

// EntryPoint returns the node marked as start, or else the single node with no
// incoming edges.
func (g *FlowGraph) EntryPoint() (string, error) {
	var marked []string
	for _, n := range g.Nodes {
		if n.Start {
			marked = append(marked, n.ID)
		}
	}
	if len(marked) == 1 {
		return marked[0], nil
	}
	if len(marked) > 1 {
		return "", ErrInvalidFlow().
			WithDetail("reason", "more than one node is marked as start").
			WithDetail("nodes", strings.Join(marked, ","))
	}

	var roots []string
	for _, n := range g.Nodes {
		if g.incoming[n.ID] == 0 {
			roots = append(roots, n.ID)
		}
	}
	switch len(roots) {
	case 1:
		return roots[0], nil
	case 0:
		return "", ErrInvalidFlow().WithDetail("reason", "flow has no entry node")
	default:
		return "", ErrInvalidFlow().
			WithDetail("reason", "flow has several entry nodes, mark one with \"start\": true").
			WithDetail("nodes", strings.Join(roots, ","))
	}
}

func (g *FlowGraph) Node(id string) (*Node, bool) {
	i, ok := g.nodeIndex[id]
	if !ok {
		return nil, false
	}
	return &g.Nodes[i], true
}

func (g *FlowGraph) Outgoing(nodeID string) []Edge {
	return g.outgoing[nodeID]
}

// HasBranches reports whether any outgoing edge of the node carries a handle.
func (g *FlowGraph) HasBranches(nodeID string) bool {
	for _, e := range g.outgoing[nodeID] {
		if e.Handle != "" {
			return true
		}
	}
	return false
}

// Next follows the single outgoing edge of a non-branching node. An unlabelled
// edge wins over labelled ones; otherwise the first edge is taken.
func (g *FlowGraph) Next(nodeID string) string {
	edges := g.outgoing[nodeID]
	if len(edges) == 0 {
		return ""
	}
	for _, e := range edges {
		if e.Handle == "" {
			return e.Target
		}
	}
	return edges[0].Target
}

// NextByHandle returns the target of the edge labelled handle, or "" when the
// branch is not connected.
func (g *FlowGraph) NextByHandle(nodeID, handle string) string {
	for _, e := range g.outgoing[nodeID] {
		if e.Handle == handle {
			return e.Target
		}
	}
	return ""
}

// MarshalJSON writes the node back in document form.
func (n Node) MarshalJSON() ([]byte, error) {
	data := n.raw
	if len(data) == 0 {
		encoded, err := json.Marshal(n.Data)
		if err != nil {
			return nil, err
		}
		data = encoded
	}
	return json.Marshal(struct {
		ID    string          `json:"id"`
		Type  NodeType        `json:"type"`
		Start bool            `json:"start,omitempty"`
		Data  json.RawMessage `json:"data"`
	}{n.ID, n.Type, n.Start, data})
}

// jsonScalar reads ids that editors emit either as strings or numbers.
func jsonScalar(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	r := gjson.ParseBytes(raw)
	if r.Type == gjson.Null {
		return ""
	}
	return r.String()
}

func (t NodeType) String() string { return string(t) }

func (g *FlowGraph) String() string {
	return fmt.Sprintf("flow %s (%d nodes, %d edges)", g.ID, len(g.Nodes), len(g.Edges))
}
