// Package hashstore persists per-file content digests used for change detection.
package hashstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Store maps repository-relative paths to SHA-256 content digests.
// The on-disk format is a flat JSON object: {"path": "digest", ...}.
type Store struct {
	mu     sync.Mutex
	root   string
	file   string
	hashes map[string]string
	dirty  bool
}

// Open loads the hash cache at file. A missing file yields an empty store.
// Paths passed to the store are relative to root.
func Open(root, file string) (*Store, error) {
	s := &Store{root: root, file: file, hashes: make(map[string]string)}

	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read hash cache: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.hashes); err != nil {
		return nil, fmt.Errorf("decode hash cache %s: %w", file, err)
	}
	if s.hashes == nil {
		s.hashes = make(map[string]string)
	}
	return s, nil
}

// Digest streams the file at path through SHA-256.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *Store) abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// IsChanged reports whether rel has no cached digest or its content differs.
// Unreadable files count as changed.
func (s *Store) IsChanged(rel string) bool {
	rel = filepath.ToSlash(rel)
	digest, err := Digest(s.abs(rel))
	if err != nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.hashes[rel]
	return !ok || prev != digest
}

// Changed returns the subset of rels for which IsChanged is true, sorted.
func (s *Store) Changed(rels []string) []string {
	var out []string
	for _, rel := range rels {
		if s.IsChanged(rel) {
			out = append(out, filepath.ToSlash(rel))
		}
	}
	sort.Strings(out)
	return out
}

// Record recomputes and stores the digest of rel.
func (s *Store) Record(rel string) error {
	rel = filepath.ToSlash(rel)
	digest, err := Digest(s.abs(rel))
	if err != nil {
		return fmt.Errorf("hash %s: %w", rel, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hashes[rel] != digest {
		s.hashes[rel] = digest
		s.dirty = true
	}
	return nil
}

// Put stores a digest computed elsewhere, e.g. before a file was analyzed.
func (s *Store) Put(rel, digest string) {
	rel = filepath.ToSlash(rel)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hashes[rel] != digest {
		s.hashes[rel] = digest
		s.dirty = true
	}
}

// Lookup returns the cached digest of rel.
func (s *Store) Lookup(rel string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.hashes[filepath.ToSlash(rel)]
	return d, ok
}

// Root is the directory relative paths resolve against.
func (s *Store) Root() string { return s.root }

// Forget drops the entry for rel.
func (s *Store) Forget(rel string) {
	rel = filepath.ToSlash(rel)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hashes[rel]; ok {
		delete(s.hashes, rel)
		s.dirty = true
	}
}

// Has reports whether rel has a cached digest.
func (s *Store) Has(rel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.hashes[filepath.ToSlash(rel)]
	return ok
}

// Prune removes entries whose file no longer exists and returns the removed paths.
func (s *Store) Prune() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned []string
	for rel := range s.hashes {
		if _, err := os.Stat(s.abs(rel)); os.IsNotExist(err) {
			delete(s.hashes, rel)
			pruned = append(pruned, rel)
		}
	}
	if len(pruned) > 0 {
		s.dirty = true
	}
	sort.Strings(pruned)
	return pruned
}

// Reset clears every entry.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.hashes) > 0 {
		s.dirty = true
	}
	s.hashes = make(map[string]string)
}

// Paths returns all cached paths, sorted.
func (s *Store) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.hashes))
	for rel := range s.hashes {
		out = append(out, rel)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hashes)
}

// Save writes the cache if it changed since the last save.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	data, err := json.MarshalIndent(s.hashes, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.file), 0o755); err != nil {
		return fmt.Errorf("create hash cache dir: %w", err)
	}
	tmp := s.file + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write hash cache: %w", err)
	}
	if err := os.Rename(tmp, s.file); err != nil {
		return fmt.Errorf("replace hash cache: %w", err)
	}
	s.dirty = false
	return nil
}
