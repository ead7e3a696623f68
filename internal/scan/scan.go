// Package scan enumerates repository files through one ignore predicate shared
// by hash caching, sweeps, regeneration and the watcher.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// DefaultIgnore is always applied on top of the repository's own rules.
var DefaultIgnore = []string{
	".git/",
	"__pycache__/",
	"*.pyc",
	".venv/",
	"venv/",
	".tox/",
	".mypy_cache/",
	".pytest_cache/",
	"node_modules/",
	"*.egg-info/",
	"build/",
	"dist/",
}

// Scanner lists files under a root, skipping anything the matcher ignores.
type Scanner struct {
	root    string
	matcher gitignore.Matcher
	filter  func(rel string) bool
	tracked bool
	logger  *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithFilter keeps only files for which keep returns true.
func WithFilter(keep func(rel string) bool) Option { return func(s *Scanner) { s.filter = keep } }

// WithTrackedOnly lists the files in the git index instead of walking the
// tree. Roots that are not a git work tree fall back to walking.
func WithTrackedOnly() Option { return func(s *Scanner) { s.tracked = true } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Scanner) { s.logger = l } }

// New reads every .gitignore under root and combines those rules with
// DefaultIgnore and extra, gitignore-style patterns relative to root.
func New(root string, extra []string, opts ...Option) (*Scanner, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	var patterns []gitignore.Pattern
	for _, p := range DefaultIgnore {
		patterns = append(patterns, gitignore.ParsePattern(p, nil))
	}
	repoPatterns, err := gitignore.ReadPatterns(osfs.New(abs), nil)
	if err != nil {
		return nil, fmt.Errorf("read ignore files: %w", err)
	}
	patterns = append(patterns, repoPatterns...)
	for _, p := range extra {
		if p = strings.TrimSpace(p); p != "" && !strings.HasPrefix(p, "#") {
			patterns = append(patterns, gitignore.ParsePattern(p, nil))
		}
	}

	s := &Scanner{
		root:    abs,
		matcher: gitignore.NewMatcher(patterns),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the absolute root directory.
func (s *Scanner) Root() string { return s.root }

// Ignored reports whether the slash-separated relative path is excluded.
func (s *Scanner) Ignored(rel string, isDir bool) bool {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" || rel == "." {
		return false
	}
	return s.matcher.Match(strings.Split(rel, "/"), isDir)
}

// Accept reports whether a file at rel would be listed by Files.
func (s *Scanner) Accept(rel string) bool {
	if s.Ignored(rel, false) {
		return false
	}
	// a file under an ignored directory is ignored too
	parts := strings.Split(strings.Trim(filepath.ToSlash(rel), "/"), "/")
	for i := 1; i < len(parts); i++ {
		if s.matcher.Match(parts[:i], true) {
			return false
		}
	}
	return s.filter == nil || s.filter(filepath.ToSlash(rel))
}

// Files returns the sorted, slash-separated relative paths of every accepted file.
func (s *Scanner) Files(ctx context.Context) ([]string, error) {
	if s.tracked {
		files, err := s.trackedFiles()
		if err == nil {
			return files, nil
		}
		if !errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, err
		}
		s.logger.Debug("not a git work tree, walking instead", "root", s.root)
	}
	return s.walk(ctx)
}

func (s *Scanner) walk(ctx context.Context) ([]string, error) {
	var out []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("scan: skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if s.Ignored(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || s.Ignored(rel, false) {
			return nil
		}
		if s.filter == nil || s.filter(rel) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (s *Scanner) trackedFiles() ([]string, error) {
	repo, err := git.PlainOpen(s.root)
	if err != nil {
		return nil, err
	}
	idx, err := repo.Storer.Index()
	if err != nil {
		return nil, fmt.Errorf("read git index: %w", err)
	}
	seen := make(map[string]bool, len(idx.Entries))
	out := make([]string, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		rel := filepath.ToSlash(e.Name)
		if seen[rel] || !s.Accept(rel) {
			continue
		}
		seen[rel] = true
		out = append(out, rel)
	}
	sort.Strings(out)
	return out, nil
}
