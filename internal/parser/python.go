package parser

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"github.com/dshills/codegraph-mcp/internal/graph"
)

// PythonParser builds the structural tree of a Python file. Only module-level
// and class-level statements are visited; function bodies are opaque.
type PythonParser struct {
	lang *tree_sitter.Language
}

// NewPython creates a parser for Python sources
func NewPython() *PythonParser {
	return &PythonParser{lang: tree_sitter.NewLanguage(tree_sitter_python.Language())}
}

func (p *PythonParser) Language() string { return "python" }

func (p *PythonParser) Parse(content []byte, filePath string) (*graph.ASTNode, error) {
	tree, err := parseTree(p.lang, content, filePath)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	module := newModule(content, filePath, p.Language())
	w := &pythonWalker{src: content}
	module.Children = w.statements(tree.RootNode(), false)
	return module, nil
}

type pythonWalker struct {
	src []byte
}

// statements converts the statements of a module or class block
func (w *pythonWalker) statements(block *tree_sitter.Node, inClass bool) []*graph.ASTNode {
	var out []*graph.ASTNode
	for _, stmt := range namedChildren(block) {
		if node := w.statement(stmt, inClass); node != nil {
			out = append(out, node)
		}
	}
	return out
}

func (w *pythonWalker) statement(n *tree_sitter.Node, inClass bool) *graph.ASTNode {
	switch n.Kind() {
	case "class_definition":
		return w.class(n, nil)
	case "function_definition":
		return w.function(n, inClass, nil)
	case "decorated_definition":
		var decorators []string
		for _, d := range childrenOfKind(n, "decorator") {
			decorators = append(decorators, decoratorName(d, w.src))
		}
		def := n.ChildByFieldName("definition")
		if def == nil {
			return nil
		}
		switch def.Kind() {
		case "class_definition":
			return w.class(def, decorators)
		case "function_definition":
			return w.function(def, inClass, decorators)
		}
	case "import_statement":
		return w.importStatement(n)
	case "import_from_statement":
		return w.importFrom(n)
	case "future_import_statement":
		return w.futureImport(n)
	case "expression_statement":
		return w.assignment(n)
	}
	return nil
}

func (w *pythonWalker) class(n *tree_sitter.Node, decorators []string) *graph.ASTNode {
	bases := []string{}
	for _, arg := range namedChildren(n.ChildByFieldName("superclasses")) {
		switch arg.Kind() {
		case "identifier", "attribute":
			bases = append(bases, text(arg, w.src))
		}
	}

	return &graph.ASTNode{
		Type:     graph.NodeClass,
		Name:     text(n.ChildByFieldName("name"), w.src),
		Position: position(n),
		Children: w.statements(n.ChildByFieldName("body"), true),
		Properties: graph.Properties{
			"bases":      bases,
			"decorators": orEmpty(decorators),
		},
	}
}

func (w *pythonWalker) function(n *tree_sitter.Node, inClass bool, decorators []string) *graph.ASTNode {
	typ := graph.NodeFunction
	if inClass {
		typ = graph.NodeMethod
	}

	var returns any
	if rt := n.ChildByFieldName("return_type"); rt != nil {
		returns = text(rt, w.src)
	}

	return &graph.ASTNode{
		Type:     typ,
		Name:     text(n.ChildByFieldName("name"), w.src),
		Position: position(n),
		Properties: graph.Properties{
			"args":       w.params(n.ChildByFieldName("parameters")),
			"decorators": orEmpty(decorators),
			"returns":    returns,
			"is_async":   hasToken(n, "async"),
		},
	}
}

// params lists named parameters; *args, **kwargs and bare separators are left out
func (w *pythonWalker) params(n *tree_sitter.Node) []string {
	args := []string{}
	for _, p := range namedChildren(n) {
		var name *tree_sitter.Node
		switch p.Kind() {
		case "identifier":
			name = p
		case "typed_parameter":
			if first := p.NamedChild(0); first != nil && first.Kind() == "identifier" {
				name = first
			}
		case "default_parameter", "typed_default_parameter":
			name = p.ChildByFieldName("name")
		}
		if name != nil {
			args = append(args, text(name, w.src))
		}
	}
	return args
}

// importStatement renders "import a, b as c" as the IMPORT node "a, b"
func (w *pythonWalker) importStatement(n *tree_sitter.Node) *graph.ASTNode {
	names, aliases := w.importNames(namedChildren(n))
	return &graph.ASTNode{
		Type:     graph.NodeImport,
		Name:     strings.Join(names, ", "),
		Position: position(n),
		Properties: graph.Properties{
			"aliases": aliases,
		},
	}
}

// importFrom renders "from .pkg import a as b" as "from pkg import a"
func (w *pythonWalker) importFrom(n *tree_sitter.Node) *graph.ASTNode {
	moduleNode := n.ChildByFieldName("module_name")

	var module any
	level := 0
	if moduleNode != nil {
		switch moduleNode.Kind() {
		case "relative_import":
			for _, c := range namedChildren(moduleNode) {
				switch c.Kind() {
				case "import_prefix":
					level = strings.Count(text(c, w.src), ".")
				case "dotted_name":
					module = text(c, w.src)
				}
			}
		default:
			module = text(moduleNode, w.src)
		}
	}

	var items []*tree_sitter.Node
	for _, c := range namedChildren(n) {
		if moduleNode != nil && c.StartByte() == moduleNode.StartByte() && c.Kind() == moduleNode.Kind() {
			continue
		}
		items = append(items, c)
	}
	names, aliases := w.importNames(items)

	rendered := "."
	if s, ok := module.(string); ok && s != "" {
		rendered = s
	}

	return &graph.ASTNode{
		Type:     graph.NodeImport,
		Name:     "from " + rendered + " import " + strings.Join(names, ", "),
		Position: position(n),
		Properties: graph.Properties{
			"module":  module,
			"level":   level,
			"aliases": aliases,
		},
	}
}

func (w *pythonWalker) futureImport(n *tree_sitter.Node) *graph.ASTNode {
	names, aliases := w.importNames(namedChildren(n))
	return &graph.ASTNode{
		Type:     graph.NodeImport,
		Name:     "from __future__ import " + strings.Join(names, ", "),
		Position: position(n),
		Properties: graph.Properties{
			"module":  "__future__",
			"level":   0,
			"aliases": aliases,
		},
	}
}

func (w *pythonWalker) importNames(items []*tree_sitter.Node) ([]string, map[string]string) {
	var names []string
	aliases := map[string]string{}
	for _, item := range items {
		switch item.Kind() {
		case "dotted_name":
			names = append(names, text(item, w.src))
		case "aliased_import":
			name := text(item.ChildByFieldName("name"), w.src)
			names = append(names, name)
			if alias := text(item.ChildByFieldName("alias"), w.src); alias != "" {
				aliases[name] = alias
			}
		case "wildcard_import":
			names = append(names, "*")
		}
	}
	return names, aliases
}

// assignment turns "NAME = value" or "NAME: T = value" into a VARIABLE node
func (w *pythonWalker) assignment(n *tree_sitter.Node) *graph.ASTNode {
	assign := n.NamedChild(0)
	if assign == nil || assign.Kind() != "assignment" {
		return nil
	}
	left := assign.ChildByFieldName("left")
	if left == nil || left.Kind() != "identifier" {
		return nil
	}

	props := graph.Properties{}
	if t := assign.ChildByFieldName("type"); t != nil {
		props["annotation"] = text(t, w.src)
	}

	return &graph.ASTNode{
		Type:       graph.NodeVariable,
		Name:       text(left, w.src),
		Position:   position(n),
		Properties: props,
	}
}

// decoratorName renders "@name", "@pkg.name" and "@name(args)" as the callee name
func decoratorName(d *tree_sitter.Node, src []byte) string {
	children := namedChildren(d)
	if len(children) == 0 {
		return strings.TrimPrefix(text(d, src), "@")
	}
	expr := children[0]
	switch expr.Kind() {
	case "call", "call_expression":
		if fn := expr.ChildByFieldName("function"); fn != nil {
			return text(fn, src)
		}
	}
	return text(expr, src)
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
