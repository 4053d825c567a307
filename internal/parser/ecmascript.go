package parser

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/dshills/codegraph-mcp/internal/graph"
)

// Dialect selects the grammar used for an ECMAScript-family file
type Dialect int

const (
	JavaScript Dialect = iota // .js .jsx .mjs .cjs, JSX included
	TypeScript
	TSX
)

func (d Dialect) String() string {
	switch d {
	case TypeScript:
		return "typescript"
	case TSX:
		return "tsx"
	default:
		return "javascript"
	}
}

// ECMAScriptParser builds the structural tree of a JavaScript or TypeScript
// file. All dialects share one walker; type-only constructs such as
// interfaces, type aliases and signatures produce no nodes.
type ECMAScriptParser struct {
	dialect Dialect
	lang    *tree_sitter.Language
}

// NewECMAScript creates a parser for the given dialect
func NewECMAScript(d Dialect) *ECMAScriptParser {
	var lang *tree_sitter.Language
	switch d {
	case TypeScript:
		lang = tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
	case TSX:
		lang = tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTSX())
	default:
		lang = tree_sitter.NewLanguage(tree_sitter_javascript.Language())
	}
	return &ECMAScriptParser{dialect: d, lang: lang}
}

func (p *ECMAScriptParser) Language() string { return p.dialect.String() }

func (p *ECMAScriptParser) Parse(content []byte, filePath string) (*graph.ASTNode, error) {
	tree, err := parseTree(p.lang, content, filePath)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	module := newModule(content, filePath, p.Language())
	w := &ecmaWalker{src: content}
	for _, stmt := range namedChildren(tree.RootNode()) {
		module.Children = append(module.Children, w.statement(stmt, nil)...)
	}
	return module, nil
}

type ecmaWalker struct {
	src []byte
}

// statement converts one top-level statement. A declaration list can yield
// several nodes. decorators carries decorators attached to an export wrapper.
func (w *ecmaWalker) statement(n *tree_sitter.Node, decorators []string) []*graph.ASTNode {
	switch n.Kind() {
	case "import_statement":
		if node := w.importStatement(n); node != nil {
			return []*graph.ASTNode{node}
		}
	case "export_statement":
		return w.export(n)
	case "class_declaration", "abstract_class_declaration":
		if node := w.class(n, decorators); node != nil {
			return []*graph.ASTNode{node}
		}
	case "function_declaration", "generator_function_declaration":
		return []*graph.ASTNode{w.function(n, text(n.ChildByFieldName("name"), w.src), n)}
	case "lexical_declaration", "variable_declaration":
		return w.declarations(n)
	}
	return nil
}

// export unwraps "export <declaration>" and "export default <declaration>".
// Anonymous default classes and functions are named "default".
func (w *ecmaWalker) export(n *tree_sitter.Node) []*graph.ASTNode {
	var decorators []string
	for _, d := range childrenOfKind(n, "decorator") {
		decorators = append(decorators, decoratorName(d, w.src))
	}

	var nodes []*graph.ASTNode
	if decl := n.ChildByFieldName("declaration"); decl != nil {
		nodes = w.statement(decl, decorators)
	} else if value := n.ChildByFieldName("value"); value != nil && hasToken(n, "default") {
		switch value.Kind() {
		case "class":
			nodes = []*graph.ASTNode{w.namedClass(value, "default", decorators)}
		case "function_expression", "function", "generator_function", "arrow_function":
			nodes = []*graph.ASTNode{w.function(n, "default", value)}
		}
	}

	for _, node := range nodes {
		node.Properties["exported"] = true
		if hasToken(n, "default") {
			node.Properties["default"] = true
		}
	}
	return nodes
}

func (w *ecmaWalker) class(n *tree_sitter.Node, decorators []string) *graph.ASTNode {
	name := text(n.ChildByFieldName("name"), w.src)
	if name == "" {
		return nil
	}
	return w.namedClass(n, name, decorators)
}

func (w *ecmaWalker) namedClass(n *tree_sitter.Node, name string, decorators []string) *graph.ASTNode {
	for _, d := range childrenOfKind(n, "decorator") {
		decorators = append(decorators, decoratorName(d, w.src))
	}

	class := &graph.ASTNode{
		Type:     graph.NodeClass,
		Name:     name,
		Position: position(n),
		Properties: graph.Properties{
			"superclass": w.superclass(n),
			"decorators": orEmpty(decorators),
		},
	}
	if n.Kind() == "abstract_class_declaration" {
		class.Properties["abstract"] = true
	}

	for _, member := range namedChildren(n.ChildByFieldName("body")) {
		if member.Kind() == "method_definition" {
			class.Children = append(class.Children, w.method(member))
		}
	}
	return class
}

// superclass returns the extended class expression, or nil
func (w *ecmaWalker) superclass(n *tree_sitter.Node) any {
	for _, heritage := range childrenOfKind(n, "class_heritage") {
		for _, c := range namedChildren(heritage) {
			switch c.Kind() {
			case "extends_clause":
				if v := c.ChildByFieldName("value"); v != nil {
					return text(v, w.src)
				}
				if first := c.NamedChild(0); first != nil {
					return text(first, w.src)
				}
			case "implements_clause":
			default:
				return text(c, w.src)
			}
		}
	}
	return nil
}

func (w *ecmaWalker) method(n *tree_sitter.Node) *graph.ASTNode {
	var decorators []string
	for _, d := range childrenOfKind(n, "decorator") {
		decorators = append(decorators, decoratorName(d, w.src))
	}

	nameNode := n.ChildByFieldName("name")
	name := text(nameNode, w.src)
	computed := nameNode != nil && nameNode.Kind() == "computed_property_name"
	static := hasToken(n, "static")

	kind := "method"
	switch {
	case hasToken(n, "get"):
		kind = "get"
	case hasToken(n, "set"):
		kind = "set"
	case name == "constructor" && !static && !computed:
		kind = "constructor"
	}

	props := graph.Properties{
		"params":       w.params(n.ChildByFieldName("parameters")),
		"kind":         kind,
		"static":       static,
		"computed":     computed,
		"is_async":     hasToken(n, "async"),
		"is_generator": hasToken(n, "*"),
		"decorators":   orEmpty(decorators),
	}
	if acc := childrenOfKind(n, "accessibility_modifier"); len(acc) > 0 {
		props["accessibility"] = text(acc[0], w.src)
	}

	return &graph.ASTNode{
		Type:       graph.NodeMethod,
		Name:       name,
		Position:   position(n),
		Properties: props,
	}
}

// function builds a FUNCTION node. span is the node whose extent is reported,
// fn the node carrying parameters and modifiers.
func (w *ecmaWalker) function(span *tree_sitter.Node, name string, fn *tree_sitter.Node) *graph.ASTNode {
	var params []string
	if ps := fn.ChildByFieldName("parameters"); ps != nil {
		params = w.params(ps)
	} else if single := fn.ChildByFieldName("parameter"); single != nil {
		params = []string{w.paramName(single)}
	}

	generator := hasToken(fn, "*") ||
		fn.Kind() == "generator_function_declaration" ||
		fn.Kind() == "generator_function"

	return &graph.ASTNode{
		Type:     graph.NodeFunction,
		Name:     name,
		Position: position(span),
		Properties: graph.Properties{
			"params":       orEmpty(params),
			"is_async":     hasToken(fn, "async"),
			"is_generator": generator,
		},
	}
}

// declarations converts "const a = 1, f = () => {}" into one node per
// declarator. Destructuring patterns are left out.
func (w *ecmaWalker) declarations(n *tree_sitter.Node) []*graph.ASTNode {
	declKind := "var"
	if first := n.Child(0); first != nil && !first.IsNamed() {
		declKind = first.Kind()
	}

	var out []*graph.ASTNode
	for _, d := range childrenOfKind(n, "variable_declarator") {
		nameNode := d.ChildByFieldName("name")
		if nameNode == nil || nameNode.Kind() != "identifier" {
			continue
		}
		name := text(nameNode, w.src)

		value := d.ChildByFieldName("value")
		if value != nil {
			switch value.Kind() {
			case "arrow_function", "function_expression", "function", "generator_function":
				out = append(out, w.function(d, name, value))
				continue
			}
		}

		out = append(out, &graph.ASTNode{
			Type:       graph.NodeVariable,
			Name:       name,
			Position:   position(d),
			Properties: graph.Properties{"kind": declKind},
		})
	}
	return out
}

func (w *ecmaWalker) params(n *tree_sitter.Node) []string {
	params := []string{}
	for _, p := range namedChildren(n) {
		if p.Kind() == "decorator" {
			continue
		}
		params = append(params, w.paramName(p))
	}
	return params
}

// paramName returns the bound identifier of a parameter. Destructuring
// patterns are rendered verbatim.
func (w *ecmaWalker) paramName(p *tree_sitter.Node) string {
	switch p.Kind() {
	case "identifier":
		return text(p, w.src)
	case "assignment_pattern":
		if left := p.ChildByFieldName("left"); left != nil {
			return w.paramName(left)
		}
	case "rest_pattern":
		if inner := p.NamedChild(0); inner != nil {
			return w.paramName(inner)
		}
	case "required_parameter", "optional_parameter":
		if pattern := p.ChildByFieldName("pattern"); pattern != nil {
			return w.paramName(pattern)
		}
	}
	return text(p, w.src)
}

// importStatement renders an import declaration as
// "from <source> import <specifiers>". Type-only imports produce no node.
func (w *ecmaWalker) importStatement(n *tree_sitter.Node) *graph.ASTNode {
	if hasToken(n, "type") {
		return nil
	}

	source := strings.Trim(text(n.ChildByFieldName("source"), w.src), "\"'`")

	specifiers := []string{}
	for _, clause := range childrenOfKind(n, "import_clause") {
		for _, c := range namedChildren(clause) {
			switch c.Kind() {
			case "identifier":
				specifiers = append(specifiers, "default as "+text(c, w.src))
			case "namespace_import":
				if local := c.NamedChild(0); local != nil {
					specifiers = append(specifiers, "* as "+text(local, w.src))
				}
			case "named_imports":
				for _, spec := range childrenOfKind(c, "import_specifier") {
					if hasToken(spec, "type") {
						continue
					}
					imported := strings.Trim(text(spec.ChildByFieldName("name"), w.src), "\"'")
					local := text(spec.ChildByFieldName("alias"), w.src)
					if local != "" && local != imported {
						specifiers = append(specifiers, imported+" as "+local)
					} else {
						specifiers = append(specifiers, imported)
					}
				}
			}
		}
	}

	return &graph.ASTNode{
		Type:     graph.NodeImport,
		Name:     "from " + source + " import " + strings.Join(specifiers, ", "),
		Position: position(n),
		Properties: graph.Properties{
			"source":     source,
			"specifiers": specifiers,
		},
	}
}
