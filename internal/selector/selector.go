package selector

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/dshills/codegraph-mcp/internal/config"
)

// Reason explains why a path was or was not selected
type Reason int

const (
	Eligible Reason = iota
	FileSizeExceeded
	GitignoreExcluded
	UnsupportedExtension
	PatternExcluded
)

func (r Reason) String() string {
	switch r {
	case Eligible:
		return "eligible"
	case FileSizeExceeded:
		return "file size exceeded"
	case GitignoreExcluded:
		return "excluded by .gitignore"
	case UnsupportedExtension:
		return "unsupported extension"
	case PatternExcluded:
		return "excluded by ignore pattern"
	default:
		return "unknown"
	}
}

// Candidate is a file visited during a walk
type Candidate struct {
	AbsPath string
	RelPath string // Forward-slash path relative to the repository root
	Size    int64
	Reason  Reason
}

// Selector decides which files of one repository are eligible for indexing.
// It is built once per repository walk.
type Selector struct {
	root        string
	skipDirs    map[string]struct{}
	includeDirs map[string]struct{} // nil when no allow-list is configured
	excludeDirs map[string]struct{}
	patterns    []string
	extensions  map[string]struct{}
	maxFileSize int64
	gitignore   gitignore.Matcher // nil without a root .gitignore
}

// New builds a selector for the repository at root. The root .gitignore,
// if present, is compiled once here; nested .gitignore files are not merged.
func New(cfg *config.Config, root string) (*Selector, error) {
	rs := cfg.ForRepository(root)

	s := &Selector{
		root:        root,
		skipDirs:    toSet(cfg.Index.SkipDirectories),
		excludeDirs: map[string]struct{}{},
		extensions:  toSet(cfg.Index.SupportedExtensions),
		maxFileSize: cfg.EffectiveMaxFileSize(rs),
	}
	s.patterns = append(s.patterns, cfg.Index.IgnorePatterns...)

	if rs != nil {
		if rs.IncludeDirs != nil {
			s.includeDirs = toSet(rs.IncludeDirs)
		}
		s.excludeDirs = toSet(rs.ExcludeDirs)
		s.patterns = append(s.patterns, rs.IgnorePatterns...)
	}

	gi, err := loadGitignore(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil, err
	}
	s.gitignore = gi

	return s, nil
}

// loadGitignore compiles a .gitignore file. A missing file yields a nil matcher.
func loadGitignore(file string) (gitignore.Matcher, error) {
	data, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var patterns []gitignore.Pattern
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return gitignore.NewMatcher(patterns), nil
}

// MaxFileSize returns the effective per-file ceiling
func (s *Selector) MaxFileSize() int64 {
	return s.maxFileSize
}

// SkipDir reports whether a directory must be pruned before descent.
// rel is the forward-slash path of the directory relative to the root.
func (s *Selector) SkipDir(name, rel string) bool {
	if inSet(s.skipDirs, name, rel) {
		return true
	}
	if strings.HasPrefix(name, ".") {
		return true
	}
	if s.includeDirs != nil && !s.included(name, rel) {
		return true
	}
	return inSet(s.excludeDirs, name, rel)
}

// included matches the allow-list by directory name, by relative path,
// or by an ancestor that is itself allowed.
func (s *Selector) included(name, rel string) bool {
	if inSet(s.includeDirs, name, rel) {
		return true
	}
	for dir := path.Dir(rel); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if _, ok := s.includeDirs[dir]; ok {
			return true
		}
	}
	return false
}

// Check evaluates file eligibility. All rules must pass.
func (s *Selector) Check(rel string, size int64) Reason {
	if s.maxFileSize > 0 && size > s.maxFileSize {
		return FileSizeExceeded
	}
	if s.gitignore != nil && s.gitignore.Match(strings.Split(rel, "/"), false) {
		return GitignoreExcluded
	}
	if _, ok := s.extensions[strings.ToLower(path.Ext(rel))]; !ok {
		return UnsupportedExtension
	}
	if s.matchesPattern(rel) {
		return PatternExcluded
	}
	return Eligible
}

// matchesPattern applies ignore globs the way a right-anchored path match
// would: patterns without a slash match the base name, others match any
// trailing run of path components.
func (s *Selector) matchesPattern(rel string) bool {
	base := path.Base(rel)
	for _, pattern := range s.patterns {
		if !strings.Contains(pattern, "/") {
			if ok, err := doublestar.Match(pattern, base); err == nil && ok {
				return true
			}
			continue
		}
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
		if ok, err := doublestar.Match("**/"+strings.TrimPrefix(pattern, "/"), rel); err == nil && ok {
			return true
		}
	}
	return false
}

// Walk visits every regular file below the root that survives directory
// pruning, in lexical order, and reports its eligibility.
func (s *Selector) Walk(fn func(Candidate) error) error {
	return filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == s.root {
				return err
			}
			// Unreadable entries are left out of the candidate set
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if p == s.root {
			return nil
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		rel = NormalizePath(rel)

		if d.IsDir() {
			if s.SkipDir(d.Name(), rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		return fn(Candidate{
			AbsPath: p,
			RelPath: rel,
			Size:    info.Size(),
			Reason:  s.Check(rel, info.Size()),
		})
	})
}

// Eligible walks the repository and returns the eligible files sorted by
// relative path, along with the files that pass every rule except the size
// ceiling.
func (s *Selector) Eligible() (eligible, oversized []Candidate, err error) {
	err = s.Walk(func(c Candidate) error {
		switch {
		case c.Reason == Eligible:
			eligible = append(eligible, c)
		case c.Reason == FileSizeExceeded && s.Check(c.RelPath, 0) == Eligible:
			oversized = append(oversized, c)
		}
		return nil
	})
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].RelPath < eligible[j].RelPath })
	sort.Slice(oversized, func(i, j int) bool { return oversized[i].RelPath < oversized[j].RelPath })
	return eligible, oversized, err
}

// NormalizePath converts a relative OS path to the forward-slash form used as
// a graph key. Case is preserved.
func NormalizePath(rel string) string {
	rel = filepath.ToSlash(filepath.Clean(rel))
	return strings.TrimPrefix(rel, "./")
}

// Exists reports whether root is an existing directory
func Exists(root string) bool {
	info, err := os.Stat(root)
	return err == nil && info.IsDir()
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.Trim(filepath.ToSlash(strings.TrimSpace(v)), "/")
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func inSet(set map[string]struct{}, name, rel string) bool {
	if _, ok := set[name]; ok {
		return true
	}
	_, ok := set[rel]
	return ok
}
