package hashstore

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestStore_FirstRunEverythingChanged(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pkg/a.py", "x = 1\n")

	s, err := Open(root, filepath.Join(root, ".cache", "hashes.json"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !s.IsChanged("pkg/a.py") {
		t.Error("file without cached digest should be changed")
	}
}

func TestStore_RecordThenUnchanged(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pkg/a.py", "x = 1\n")
	s, _ := Open(root, filepath.Join(root, "hashes.json"))

	if err := s.Record("pkg/a.py"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if s.IsChanged("pkg/a.py") {
		t.Error("recorded file should be unchanged")
	}

	writeFile(t, root, "pkg/a.py", "x = 2\n")
	if !s.IsChanged("pkg/a.py") {
		t.Error("modified file should be changed")
	}
}

func TestStore_UnreadableIsChanged(t *testing.T) {
	root := t.TempDir()
	s, _ := Open(root, filepath.Join(root, "hashes.json"))
	if !s.IsChanged("does/not/exist.py") {
		t.Error("unreadable file should be treated as changed")
	}
	if err := s.Record("does/not/exist.py"); err == nil {
		t.Error("recording a missing file should fail")
	}
}

func TestStore_SaveAndReload(t *testing.T) {
	root := t.TempDir()
	cache := filepath.Join(root, ".cache", "hashes.json")
	writeFile(t, root, "a.py", "a")
	writeFile(t, root, "b.py", "b")

	s, _ := Open(root, cache)
	_ = s.Record("a.py")
	_ = s.Record("b.py")
	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded, err := Open(root, cache)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if reloaded.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", reloaded.Len())
	}
	if reloaded.IsChanged("a.py") {
		t.Error("a.py should be unchanged after reload")
	}
}

func TestStore_Prune(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.py", "k")
	writeFile(t, root, "gone.py", "g")
	s, _ := Open(root, filepath.Join(root, "hashes.json"))
	_ = s.Record("keep.py")
	_ = s.Record("gone.py")

	if err := os.Remove(filepath.Join(root, "gone.py")); err != nil {
		t.Fatal(err)
	}

	pruned := s.Prune()
	if len(pruned) != 1 || pruned[0] != "gone.py" {
		t.Errorf("expected [gone.py] pruned, got %v", pruned)
	}
	if s.Has("gone.py") {
		t.Error("gone.py should be removed")
	}
	if !s.Has("keep.py") {
		t.Error("keep.py should remain")
	}
}

func TestStore_Changed(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "a")
	writeFile(t, root, "b.py", "b")
	s, _ := Open(root, filepath.Join(root, "hashes.json"))
	_ = s.Record("a.py")

	got := s.Changed([]string{"b.py", "a.py"})
	if len(got) != 1 || got[0] != "b.py" {
		t.Errorf("expected [b.py], got %v", got)
	}
}

func TestOpen_CorruptCache(t *testing.T) {
	root := t.TempDir()
	cache := filepath.Join(root, "hashes.json")
	if err := os.WriteFile(cache, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(root, cache); err == nil {
		t.Error("expected decode error for corrupt cache")
	}
}

func TestDigest_Stable(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "hello")
	d1, err := Digest(filepath.Join(root, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	// sha256("hello")
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if d1 != want {
		t.Errorf("digest = %s, want %s", d1, want)
	}
}

func TestStore_PutAndLookup(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pkg/a.py", "hello")
	s, _ := Open(root, filepath.Join(root, "hashes.json"))

	digest, err := Digest(filepath.Join(root, "pkg", "a.py"))
	if err != nil {
		t.Fatal(err)
	}
	s.Put("pkg/a.py", digest)
	if got, ok := s.Lookup("pkg/a.py"); !ok || got != digest {
		t.Errorf("Lookup = %q, %v", got, ok)
	}
	if s.IsChanged("pkg/a.py") {
		t.Error("file should be unchanged after Put of its digest")
	}
	if _, ok := s.Lookup("missing.py"); ok {
		t.Error("expected no entry for missing file")
	}
}
