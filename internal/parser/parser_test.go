package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codegraph-mcp/internal/graph"
)

// child returns the direct child of n with the given type and name
func child(t *testing.T, n *graph.ASTNode, typ graph.NodeType, name string) *graph.ASTNode {
	t.Helper()

	for _, c := range n.Children {
		if c.Type == typ && c.Name == name {
			return c
		}
	}
	require.Failf(t, "child not found", "%s %q under %s %q", typ, name, n.Type, n.Name)
	return nil
}

func summary(n *graph.ASTNode) []string {
	out := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		out = append(out, string(c.Type)+" "+c.Name)
	}
	return out
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()

	assert.Equal(t, []string{".cjs", ".js", ".jsx", ".mjs", ".py", ".ts", ".tsx"}, r.Extensions())

	p, err := r.For("pkg/Module.PY")
	require.NoError(t, err)
	assert.Equal(t, "python", p.Language())

	p, err = r.For("web/app.tsx")
	require.NoError(t, err)
	assert.Equal(t, "tsx", p.Language())

	p, err = r.For("lib/index.mjs")
	require.NoError(t, err)
	assert.Equal(t, "javascript", p.Language())

	_, err = r.For("main.rb")
	assert.ErrorIs(t, err, ErrUnsupportedExtension)

	_, err = r.Parse([]byte("x"), "README")
	assert.ErrorIs(t, err, ErrUnsupportedExtension)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	r.Register(NewPython(), "PYI", ".py")

	assert.Equal(t, []string{".py", ".pyi"}, r.Extensions())

	module, err := r.Parse([]byte("x = 1\n"), "stubs/mod.pyi")
	require.NoError(t, err)
	assert.Equal(t, "mod.pyi", module.Name)
}

func TestLineCount(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"a\n", 1},
		{"a\nb", 2},
		{"a\r\nb\r\n", 2},
		{"a\rb", 2},
		{"\n\n", 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, lineCount([]byte(tt.in)), "%q", tt.in)
	}
}

func TestParseError_InvalidUTF8(t *testing.T) {
	_, err := NewPython().Parse([]byte("x = 1\ny = '\xff'\n"), "bad.py")
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "bad.py", perr.File)
	assert.Equal(t, 2, perr.Line)
	assert.Equal(t, 5, perr.Column)
	assert.Contains(t, perr.Error(), "invalid UTF-8")
}

func TestParseError_Message(t *testing.T) {
	err := &ParseError{File: "a.py", Line: 3, Column: 7, Message: "syntax error"}
	assert.Equal(t, "parse error at line 3, column 7: syntax error", err.Error())

	err = &ParseError{File: "a.py", Message: "parser returned no tree"}
	assert.Equal(t, "parse error: parser returned no tree", err.Error())
}
