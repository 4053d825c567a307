//go:build purego || !sqlite_cgo
// +build purego !sqlite_cgo

package storage

// This file is compiled unless the sqlite_cgo tag is set, or with the purego tag.
// It uses a pure Go SQLite implementation.
//
// Build command:
//   go build -tags "purego" ./...
//
// The pure Go driver keeps SQLite itself out of the cgo build; the
// tree-sitter grammars still require cgo.
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
