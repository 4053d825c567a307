package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultMaxFileSize is the per-file ceiling (10 MiB)
	DefaultMaxFileSize int64 = 10 << 20
	// DefaultMaxRepositorySize is the whole-repository ceiling (2 GiB)
	DefaultMaxRepositorySize int64 = 2 << 30
	// DefaultDBPath is the default location of the graph database
	DefaultDBPath = "~/.codegraph/graph.db"
)

// Config contains the global indexing settings and per-repository overrides
type Config struct {
	DBPath       string                        `toml:"db_path"`
	Index        Index                         `toml:"index"`
	Repositories map[string]RepositorySettings `toml:"repositories"`
}

// Index holds the global file selection rules
type Index struct {
	SkipDirectories     []string `toml:"skip_directories"`
	IgnorePatterns      []string `toml:"ignore_patterns"`
	SupportedExtensions []string `toml:"supported_extensions"`
	MaxFileSize         int64    `toml:"max_file_size"`       // Bytes
	MaxRepositorySize   int64    `toml:"max_repository_size"` // Bytes, 0 disables the check
}

// RepositorySettings overrides the global rules for one repository.
// A nil IncludeDirs means no allow-list is configured.
type RepositorySettings struct {
	IncludeDirs    []string `toml:"include_dirs"`
	ExcludeDirs    []string `toml:"exclude_dirs"`
	IgnorePatterns []string `toml:"ignore_patterns"`
	MaxFileSize    int64    `toml:"max_file_size"` // Bytes, 0 uses the global ceiling
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DBPath: DefaultDBPath,
		Index: Index{
			SkipDirectories:     append([]string(nil), defaultSkipDirectories...),
			IgnorePatterns:      append([]string(nil), defaultIgnorePatterns...),
			SupportedExtensions: append([]string(nil), defaultExtensions...),
			MaxFileSize:         DefaultMaxFileSize,
			MaxRepositorySize:   DefaultMaxRepositorySize,
		},
		Repositories: make(map[string]RepositorySettings),
	}
}

var defaultExtensions = []string{".py", ".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx"}

var defaultSkipDirectories = []string{
	"node_modules", "venv", "env", ".env", "__pycache__", ".git", ".idea", ".vscode",
	"dist", "build", "target", "out", "output", ".next", ".nuxt", "vendor",
	"bower_components", "jspm_packages", "packages", "tmp", "temp", "coverage",
	".coverage", "htmlcov", ".pytest_cache", ".mypy_cache", ".ruff_cache", ".npm", ".yarn",
	"migrations", "static", "assets", "public/assets", "public/img", "public/images", "public/static",
}

var defaultIgnorePatterns = []string{
	"*.so", "*.dylib", "*.dll", "*.exe", "*.bin", "*.dat",
	"*.pyc", "*.pyo", "*.pyd",
	"*.jpg", "*.jpeg", "*.png", "*.gif", "*.bmp", "*.svg",
	"*.mp3", "*.mp4", "*.wav", "*.avi", "*.mov", "*.webm",
	"*.zip", "*.tar", "*.gz", "*.bz2", "*.rar", "*.7z",
	"*.whl", "*.egg", "*.jar",
	"*.db", "*.sqlite", "*.sqlite3",
	"*.pdf", "*.doc", "*.docx", "*.ppt", "*.pptx", "*.xls", "*.xlsx",
	"*.log", "*.log.*",
	"package-lock.json", "yarn.lock", "poetry.lock", "Pipfile.lock",
	"*.min.js", "*.map", "*.chunk.js", "*.bundle.js",
}

// Load reads a TOML configuration file on top of the defaults.
// Environment overrides are applied after the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode TOML file: %w", err)
		}
	}
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides applies CODEGRAPH_* environment variables
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CODEGRAPH_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("CODEGRAPH_MAX_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Index.MaxFileSize = n
		}
	}
	if v := os.Getenv("CODEGRAPH_MAX_REPOSITORY_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Index.MaxRepositorySize = n
		}
	}
	if v := os.Getenv("CODEGRAPH_SKIP_DIRECTORIES"); v != "" {
		c.Index.SkipDirectories = splitList(v)
	}
	if v := os.Getenv("CODEGRAPH_IGNORE_PATTERNS"); v != "" {
		c.Index.IgnorePatterns = splitList(v)
	}
}

// SetDefaults fills zero values left by a partial config file
func (c *Config) SetDefaults() {
	if c.DBPath == "" {
		c.DBPath = DefaultDBPath
	}
	if c.Index.MaxFileSize == 0 {
		c.Index.MaxFileSize = DefaultMaxFileSize
	}
	if len(c.Index.SupportedExtensions) == 0 {
		c.Index.SupportedExtensions = append([]string(nil), defaultExtensions...)
	}
	for i, ext := range c.Index.SupportedExtensions {
		c.Index.SupportedExtensions[i] = normalizeExtension(ext)
	}
	if c.Repositories == nil {
		c.Repositories = make(map[string]RepositorySettings)
	}
}

// Validate checks that size ceilings are usable
func (c *Config) Validate() error {
	if c.Index.MaxFileSize < 0 {
		return fmt.Errorf("%w: max_file_size must be >= 0, got %d", ErrInvalidConfig, c.Index.MaxFileSize)
	}
	if c.Index.MaxRepositorySize < 0 {
		return fmt.Errorf("%w: max_repository_size must be >= 0, got %d", ErrInvalidConfig, c.Index.MaxRepositorySize)
	}
	for path, rs := range c.Repositories {
		if rs.MaxFileSize < 0 {
			return fmt.Errorf("%w: repositories[%s].max_file_size must be >= 0", ErrInvalidConfig, path)
		}
	}
	return nil
}

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// ForRepository returns the overrides registered for repoPath, if any.
// Keys are compared after cleaning, so trailing separators do not matter.
func (c *Config) ForRepository(repoPath string) *RepositorySettings {
	want := filepath.Clean(repoPath)
	for key, rs := range c.Repositories {
		if filepath.Clean(ExpandHome(key)) == want {
			rs := rs
			return &rs
		}
	}
	return nil
}

// SetRepository registers overrides for repoPath
func (c *Config) SetRepository(repoPath string, rs RepositorySettings) {
	if c.Repositories == nil {
		c.Repositories = make(map[string]RepositorySettings)
	}
	c.Repositories[filepath.Clean(repoPath)] = rs
}

// EffectiveMaxFileSize returns the per-repository ceiling if set, else the global one
func (c *Config) EffectiveMaxFileSize(rs *RepositorySettings) int64 {
	if rs != nil && rs.MaxFileSize > 0 {
		return rs.MaxFileSize
	}
	return c.Index.MaxFileSize
}

// ExpandHome replaces a leading "~" with the user's home directory
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
