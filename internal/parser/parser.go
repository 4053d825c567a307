package parser

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/dshills/codegraph-mcp/internal/graph"
)

// ErrUnsupportedExtension is returned when no parser is registered for a file
var ErrUnsupportedExtension = errors.New("unsupported extension")

// Parser turns the content of one source file into a language-neutral tree.
// Implementations must be safe for concurrent use.
type Parser interface {
	// Parse returns the MODULE node of the file. A *ParseError is returned
	// when the content is not valid for the language.
	Parse(content []byte, path string) (*graph.ASTNode, error)
	// Language names the grammar, e.g. "python" or "typescript"
	Language() string
}

// ParseError describes a syntax error in one file
type ParseError struct {
	File    string
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("parse error: %s", e.Message)
	}
	return fmt.Sprintf("parse error at line %d, column %d: %s", e.Line, e.Column, e.Message)
}

// Registry maps lowercase file extensions to parsers
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// DefaultRegistry returns a registry covering every supported extension
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewPython(), ".py")
	r.Register(NewECMAScript(JavaScript), ".js", ".jsx", ".mjs", ".cjs")
	r.Register(NewECMAScript(TypeScript), ".ts")
	r.Register(NewECMAScript(TSX), ".tsx")
	return r
}

// Register binds p to each extension, replacing any earlier binding
func (r *Registry) Register(p Parser, exts ...string) {
	for _, ext := range exts {
		r.parsers[normalizeExt(ext)] = p
	}
}

// For returns the parser registered for the extension of filePath
func (r *Registry) For(filePath string) (Parser, error) {
	ext := normalizeExt(path.Ext(filepath.ToSlash(filePath)))
	p, ok := r.parsers[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext)
	}
	return p, nil
}

// Parse dispatches to the parser registered for filePath
func (r *Registry) Parse(content []byte, filePath string) (*graph.ASTNode, error) {
	p, err := r.For(filePath)
	if err != nil {
		return nil, err
	}
	return p.Parse(content, filePath)
}

// Extensions lists the registered extensions in sorted order
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.parsers))
	for ext := range r.parsers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// parseTree runs a fresh tree-sitter parser over content. Parsers are not
// safe for concurrent use, so one is created per call; the language is shared.
func parseTree(lang *tree_sitter.Language, content []byte, filePath string) (*tree_sitter.Tree, error) {
	if !utf8.Valid(content) {
		line, col := invalidUTF8Position(content)
		return nil, &ParseError{File: filePath, Line: line, Column: col, Message: "invalid UTF-8 encoding"}
	}

	p := tree_sitter.NewParser()
	defer p.Close()

	if err := p.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}

	tree := p.Parse(content, nil)
	if tree == nil {
		return nil, &ParseError{File: filePath, Message: "parser returned no tree"}
	}

	root := tree.RootNode()
	if root.HasError() {
		defer tree.Close()
		perr := &ParseError{File: filePath, Line: 1, Message: "syntax error"}
		if bad := firstError(root); bad != nil {
			pos := bad.StartPosition()
			perr.Line = int(pos.Row) + 1
			perr.Column = int(pos.Column)
			if bad.IsMissing() {
				perr.Message = fmt.Sprintf("missing %s", bad.Kind())
			}
		}
		return nil, perr
	}
	return tree, nil
}

// firstError returns the first ERROR or MISSING node in document order
func firstError(n *tree_sitter.Node) *tree_sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		if bad := firstError(n.Child(i)); bad != nil {
			return bad
		}
	}
	return n
}

func invalidUTF8Position(content []byte) (line, col int) {
	line = 1
	for i := 0; i < len(content); {
		r, size := utf8.DecodeRune(content[i:])
		if r == utf8.RuneError && size <= 1 {
			return line, col
		}
		if r == '\n' {
			line++
			col = 0
		} else {
			col += size
		}
		i += size
	}
	return line, col
}

// lineCount counts lines the way a line splitter does: a trailing line
// terminator does not start a new line.
func lineCount(content []byte) int {
	n := 0
	for i := 0; i < len(content); i++ {
		switch content[i] {
		case '\n':
			n++
		case '\r':
			n++
			if i+1 < len(content) && content[i+1] == '\n' {
				i++
			}
		}
	}
	if len(content) > 0 {
		if last := content[len(content)-1]; last != '\n' && last != '\r' {
			n++
		}
	}
	return n
}

// newModule creates the MODULE node spanning the whole file
func newModule(content []byte, filePath, language string) *graph.ASTNode {
	end := lineCount(content)
	if end < 1 {
		end = 1
	}
	return &graph.ASTNode{
		Type:       graph.NodeModule,
		Name:       path.Base(filepath.ToSlash(filePath)),
		Position:   graph.Lines(1, end),
		Properties: graph.Properties{"language": language},
	}
}

func position(n *tree_sitter.Node) graph.Position {
	start, end := n.StartPosition(), n.EndPosition()
	return graph.Span(int(start.Row)+1, int(start.Column), int(end.Row)+1, int(end.Column))
}

func text(n *tree_sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return n.Utf8Text(src)
}

// hasToken reports whether n has a direct anonymous child of the given kind,
// such as "async", "static" or "*".
func hasToken(n *tree_sitter.Node, kind string) bool {
	for i := uint(0); i < n.ChildCount(); i++ {
		c := n.Child(i)
		if !c.IsNamed() && c.Kind() == kind {
			return true
		}
	}
	return false
}

// namedChildren returns the named children of n in source order, skipping comments
func namedChildren(n *tree_sitter.Node) []*tree_sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*tree_sitter.Node, 0, n.NamedChildCount())
	for i := uint(0); i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		if c.Kind() == "comment" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// childrenOfKind returns the direct children of n with the given kind
func childrenOfKind(n *tree_sitter.Node, kind string) []*tree_sitter.Node {
	var out []*tree_sitter.Node
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c.Kind() == kind {
			out = append(out, c)
		}
	}
	return out
}
