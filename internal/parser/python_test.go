package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codegraph-mcp/internal/graph"
)

const pythonSource = `from __future__ import annotations
import os, sys as system
from .models import User as U, Group
from . import utils

VERSION = "1.0"


@dataclass
class Animal(Base, abc.ABC):
    name: str = ""

    def speak(self, loud: bool = False, *args, **kwargs) -> str:
        return self.name

    @staticmethod
    async def create():
        ...

    class Meta:
        ordering = ["name"]


def helper(x, y=1):
    def inner():
        pass
    return x


async def fetch():
    pass
`

func TestPythonParser_Structure(t *testing.T) {
	module, err := NewPython().Parse([]byte(pythonSource), "pkg/animals.py")
	require.NoError(t, err)

	assert.Equal(t, graph.NodeModule, module.Type)
	assert.Equal(t, "animals.py", module.Name)
	assert.Equal(t, 1, module.Position.StartLine)
	assert.Equal(t, 31, module.Position.EndLine)
	assert.Nil(t, module.Position.StartCol)
	assert.Equal(t, "python", module.Properties["language"])

	assert.Equal(t, []string{
		"IMPORT from __future__ import annotations",
		"IMPORT os, sys",
		"IMPORT from models import User, Group",
		"IMPORT from . import utils",
		"VARIABLE VERSION",
		"CLASS Animal",
		"FUNCTION helper",
		"FUNCTION fetch",
	}, summary(module))

	animal := child(t, module, graph.NodeClass, "Animal")
	assert.Equal(t, []string{"VARIABLE name", "METHOD speak", "METHOD create", "CLASS Meta"}, summary(animal))
	assert.Equal(t, []string{"Base", "abc.ABC"}, animal.Properties["bases"])
	assert.Equal(t, []string{"dataclass"}, animal.Properties["decorators"])
	assert.Equal(t, 10, animal.Position.StartLine)
	assert.Equal(t, 21, animal.Position.EndLine)

	meta := child(t, animal, graph.NodeClass, "Meta")
	assert.Equal(t, []string{"VARIABLE ordering"}, summary(meta))
}

func TestPythonParser_Functions(t *testing.T) {
	module, err := NewPython().Parse([]byte(pythonSource), "animals.py")
	require.NoError(t, err)

	animal := child(t, module, graph.NodeClass, "Animal")

	speak := child(t, animal, graph.NodeMethod, "speak")
	assert.Equal(t, []string{"self", "loud"}, speak.Properties["args"])
	assert.Equal(t, "str", speak.Properties["returns"])
	assert.Equal(t, false, speak.Properties["is_async"])
	assert.Equal(t, []string{}, speak.Properties["decorators"])
	require.NotNil(t, speak.Position.StartCol)
	assert.Equal(t, 4, *speak.Position.StartCol)

	create := child(t, animal, graph.NodeMethod, "create")
	assert.Equal(t, true, create.Properties["is_async"])
	assert.Equal(t, []string{"staticmethod"}, create.Properties["decorators"])
	assert.Nil(t, create.Properties["returns"])

	helper := child(t, module, graph.NodeFunction, "helper")
	assert.Equal(t, []string{"x", "y"}, helper.Properties["args"])
	assert.Empty(t, helper.Children, "nested functions are not visited")
	assert.Equal(t, 24, helper.Position.StartLine)
	require.NotNil(t, helper.Position.StartCol)
	assert.Equal(t, 0, *helper.Position.StartCol)

	fetch := child(t, module, graph.NodeFunction, "fetch")
	assert.Equal(t, true, fetch.Properties["is_async"])
}

func TestPythonParser_Imports(t *testing.T) {
	module, err := NewPython().Parse([]byte(pythonSource), "animals.py")
	require.NoError(t, err)

	plain := child(t, module, graph.NodeImport, "os, sys")
	assert.Equal(t, map[string]string{"sys": "system"}, plain.Properties["aliases"])

	rel := child(t, module, graph.NodeImport, "from models import User, Group")
	assert.Equal(t, "models", rel.Properties["module"])
	assert.Equal(t, 1, rel.Properties["level"])
	assert.Equal(t, map[string]string{"User": "U"}, rel.Properties["aliases"])

	bare := child(t, module, graph.NodeImport, "from . import utils")
	assert.Nil(t, bare.Properties["module"])
	assert.Equal(t, 1, bare.Properties["level"])

	future := child(t, module, graph.NodeImport, "from __future__ import annotations")
	assert.Equal(t, "__future__", future.Properties["module"])
}

func TestPythonParser_SingleFunction(t *testing.T) {
	module, err := NewPython().Parse([]byte("def f():\n    pass\n"), "a.py")
	require.NoError(t, err)

	assert.Equal(t, 2, module.Count())
	assert.Equal(t, 2, module.Position.EndLine)

	f := child(t, module, graph.NodeFunction, "f")
	assert.Equal(t, 1, f.Position.StartLine)
	assert.Equal(t, 2, f.Position.EndLine)
}

func TestPythonParser_EmptyFile(t *testing.T) {
	module, err := NewPython().Parse(nil, "empty.py")
	require.NoError(t, err)

	assert.Empty(t, module.Children)
	assert.Equal(t, 1, module.Position.StartLine)
	assert.Equal(t, 1, module.Position.EndLine)
}

func TestPythonParser_SyntaxError(t *testing.T) {
	_, err := NewPython().Parse([]byte("x = 1\ndef broken(:\n    pass\n"), "broken.py")
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "broken.py", perr.File)
	assert.Positive(t, perr.Line)
}

func TestPythonParser_Deterministic(t *testing.T) {
	p := NewPython()
	first, err := p.Parse([]byte(pythonSource), "animals.py")
	require.NoError(t, err)
	second, err := p.Parse([]byte(pythonSource), "animals.py")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
