package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultMaxFileSize, cfg.Index.MaxFileSize)
	assert.Equal(t, DefaultMaxRepositorySize, cfg.Index.MaxRepositorySize)
	assert.Contains(t, cfg.Index.SkipDirectories, "node_modules")
	assert.Contains(t, cfg.Index.IgnorePatterns, "*.pyc")
	assert.ElementsMatch(t, []string{".py", ".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx"}, cfg.Index.SupportedExtensions)
	require.NoError(t, cfg.Validate())
}

func TestLoad_TOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "codegraph.toml")
	content := `
db_path = "/tmp/graph.db"

[index]
skip_directories = ["third_party"]
max_file_size = 2048
supported_extensions = ["py", ".TS"]

[repositories."/src/app"]
include_dirs = ["src"]
exclude_dirs = ["generated"]
ignore_patterns = ["*_pb2.py"]
max_file_size = 512
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/graph.db", cfg.DBPath)
	assert.Equal(t, []string{"third_party"}, cfg.Index.SkipDirectories)
	assert.Equal(t, int64(2048), cfg.Index.MaxFileSize)
	assert.Equal(t, []string{".py", ".ts"}, cfg.Index.SupportedExtensions)
	// Untouched sections keep their defaults
	assert.Contains(t, cfg.Index.IgnorePatterns, "*.min.js")

	rs := cfg.ForRepository("/src/app/")
	require.NotNil(t, rs)
	assert.Equal(t, []string{"src"}, rs.IncludeDirs)
	assert.Equal(t, []string{"generated"}, rs.ExcludeDirs)
	assert.Equal(t, int64(512), cfg.EffectiveMaxFileSize(rs))
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("index = ["), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_NegativeCeiling(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "neg.toml")
	require.NoError(t, os.WriteFile(path, []byte("[index]\nmax_repository_size = -1\n"), 0644))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CODEGRAPH_DB_PATH", "/var/lib/graph.db")
	t.Setenv("CODEGRAPH_MAX_FILE_SIZE", "100")
	t.Setenv("CODEGRAPH_MAX_REPOSITORY_SIZE", "0")
	t.Setenv("CODEGRAPH_SKIP_DIRECTORIES", "a, b ,,c")
	t.Setenv("CODEGRAPH_IGNORE_PATTERNS", "*.gen.ts")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "/var/lib/graph.db", cfg.DBPath)
	assert.Equal(t, int64(100), cfg.Index.MaxFileSize)
	assert.Equal(t, int64(0), cfg.Index.MaxRepositorySize)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Index.SkipDirectories)
	assert.Equal(t, []string{"*.gen.ts"}, cfg.Index.IgnorePatterns)
}

func TestEffectiveMaxFileSize(t *testing.T) {
	cfg := Default()
	cfg.Index.MaxFileSize = 1000

	assert.Equal(t, int64(1000), cfg.EffectiveMaxFileSize(nil))
	assert.Equal(t, int64(1000), cfg.EffectiveMaxFileSize(&RepositorySettings{}))
	assert.Equal(t, int64(10), cfg.EffectiveMaxFileSize(&RepositorySettings{MaxFileSize: 10}))
}

func TestForRepository_Missing(t *testing.T) {
	cfg := Default()
	cfg.SetRepository("/a/b", RepositorySettings{ExcludeDirs: []string{"x"}})

	assert.Nil(t, cfg.ForRepository("/a/c"))
	require.NotNil(t, cfg.ForRepository("/a/b"))
}
