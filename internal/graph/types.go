package graph

import (
	"errors"
	"fmt"
)

// NodeType is the kind of a structural graph node
type NodeType string

const (
	NodeModule   NodeType = "MODULE"
	NodeClass    NodeType = "CLASS"
	NodeFunction NodeType = "FUNCTION"
	NodeMethod   NodeType = "METHOD"
	NodeVariable NodeType = "VARIABLE"
	NodeImport   NodeType = "IMPORT"
)

// NodeTypes lists every valid node kind
var NodeTypes = []NodeType{NodeModule, NodeClass, NodeFunction, NodeMethod, NodeVariable, NodeImport}

// Validate checks that the node kind is one of the known kinds
func (t NodeType) Validate() error {
	switch t {
	case NodeModule, NodeClass, NodeFunction, NodeMethod, NodeVariable, NodeImport:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidNodeType, string(t))
	}
}

// RelationType is the kind of an edge between two nodes.
// Only RelationContains is produced by the indexer; the others are reserved.
type RelationType string

const (
	RelationContains RelationType = "CONTAINS"
	RelationCalls    RelationType = "CALLS"
	RelationInherits RelationType = "INHERITS"
	RelationImports  RelationType = "IMPORTS"
	RelationUses     RelationType = "USES"
)

// Validate checks that the relation kind is one of the known kinds
func (t RelationType) Validate() error {
	switch t {
	case RelationContains, RelationCalls, RelationInherits, RelationImports, RelationUses:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRelationType, string(t))
	}
}

var (
	ErrInvalidNodeType     = errors.New("invalid node type")
	ErrInvalidRelationType = errors.New("invalid relation type")
)

// NodeID is the store-assigned identity of a CodeNode
type NodeID int64

// Position is a source span. Lines are 1-based; columns are 0-based and
// only present when the grammar supplies them.
type Position struct {
	StartLine int  `json:"start_line"`
	EndLine   int  `json:"end_line"`
	StartCol  *int `json:"start_col,omitempty"`
	EndCol    *int `json:"end_col,omitempty"`
}

// Lines returns a position spanning whole lines without column data
func Lines(start, end int) Position {
	return Position{StartLine: start, EndLine: end}
}

// Span returns a position with column offsets
func Span(startLine, startCol, endLine, endCol int) Position {
	return Position{
		StartLine: startLine,
		EndLine:   endLine,
		StartCol:  &startCol,
		EndCol:    &endCol,
	}
}

// Properties holds language-specific metadata attached to a node
type Properties map[string]any

// ASTNode is the language-neutral syntax tree produced by a parser.
// Children are kept in source order.
type ASTNode struct {
	Type       NodeType
	Name       string
	Position   Position
	Children   []*ASTNode
	Properties Properties
}

// Count returns the number of nodes in the tree rooted at n
func (n *ASTNode) Count() int {
	if n == nil {
		return 0
	}
	total := 1
	for _, c := range n.Children {
		total += c.Count()
	}
	return total
}

// CodeNode is a persisted graph node
type CodeNode struct {
	ID         NodeID     `json:"id"`
	RootID     NodeID     `json:"root_id,omitempty"` // Repository root this node belongs to; zero for roots
	Name       string     `json:"name"`
	Type       NodeType   `json:"type"`
	FilePath   string     `json:"file_path"` // Relative to the repository root; absolute for roots
	Position   Position   `json:"position"`
	IsRoot     bool       `json:"is_root,omitempty"`
	Properties Properties `json:"properties,omitempty"`
}

// CodeRelation is a persisted directed edge
type CodeRelation struct {
	ID         int64        `json:"id"`
	SourceID   NodeID       `json:"source_id"`
	TargetID   NodeID       `json:"target_id"`
	Type       RelationType `json:"type"`
	Properties Properties   `json:"properties,omitempty"`
}

// Subgraph is the neighbourhood of a node returned for inspection
type Subgraph struct {
	Nodes     []*CodeNode     `json:"nodes"`
	Relations []*CodeRelation `json:"relations"`
}

// Node returns the first node in the subgraph with the given name and type
func (s *Subgraph) Node(name string, typ NodeType) *CodeNode {
	for _, n := range s.Nodes {
		if n.Name == name && n.Type == typ {
			return n
		}
	}
	return nil
}

// HasRelation reports whether the subgraph holds an edge of the given type
func (s *Subgraph) HasRelation(source, target NodeID, typ RelationType) bool {
	for _, r := range s.Relations {
		if r.SourceID == source && r.TargetID == target && r.Type == typ {
			return true
		}
	}
	return false
}

// Stats summarizes the graph content of one repository
type Stats struct {
	Nodes             int `json:"nodes"`
	Relations         int `json:"relations"`
	Files             int `json:"files"`
	DanglingRelations int `json:"dangling_relations"`
}
