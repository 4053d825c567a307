// Package parser turns source files into the language-neutral ASTNode trees
// consumed by the projector.
//
// Parsing is done with tree-sitter grammars. Each call creates its own
// tree-sitter parser, so a Parser value can be shared across goroutines.
//
// # Basic Usage
//
//	reg := parser.DefaultRegistry()
//	module, err := reg.Parse(content, "pkg/models.py")
//	if err != nil {
//	    var perr *parser.ParseError
//	    if errors.As(err, &perr) {
//	        fmt.Printf("line %d: %s\n", perr.Line, perr.Message)
//	    }
//	}
//
// # Languages
//
// The registry binds extensions to two parser families:
//   - .py to the Python parser
//   - .js .jsx .mjs .cjs .ts .tsx to the ECMAScript parser, which selects the
//     javascript, typescript or tsx grammar from the extension
//
// # Tree Shape
//
// The root of every tree is a MODULE node named after the file, spanning line
// 1 to the last line. Only declarations that give a file its structure are
// kept:
//
//	MODULE models.py
//	  IMPORT from typing import List
//	  CLASS User
//	    METHOD save
//	  FUNCTION load
//
// Function bodies are not visited. Children appear in source order. Lines are
// 1-based and columns are 0-based byte offsets.
//
// # Errors
//
// A file whose syntax tree contains an error node fails with a *ParseError
// carrying the first error position. Partial trees are never returned.
package parser
