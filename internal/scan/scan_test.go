package scan

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func sampleTree(t *testing.T) string {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore":                 "*.log\ngenerated/\n",
		"pkg/__init__.py":            "",
		"pkg/core.py":                "",
		"pkg/__pycache__/core.pyc":   "",
		"pkg/generated/out.py":       "",
		"pkg/tests/.gitignore":       "fixtures/\n",
		"pkg/tests/test_core.py":     "",
		"pkg/tests/fixtures/big.py":  "",
		"debug.log":                  "",
		".venv/lib/site.py":          "",
		".codegraph/project.json":    "{}",
		"docs/index.md":              "# Docs",
		".github/workflows/test.yml": "name: test",
	})
	return root
}

func TestFiles_Walk(t *testing.T) {
	root := sampleTree(t)
	s, err := New(root, []string{".codegraph/", "# comment", ""})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	files, err := s.Files(context.Background())
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	want := []string{
		".github/workflows/test.yml",
		".gitignore",
		"docs/index.md",
		"pkg/__init__.py",
		"pkg/core.py",
		"pkg/tests/.gitignore",
		"pkg/tests/test_core.py",
	}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("Files =\n%v\nwant\n%v", files, want)
	}
}

func TestFiles_Filter(t *testing.T) {
	root := sampleTree(t)
	s, err := New(root, nil, WithFilter(func(rel string) bool { return strings.HasSuffix(rel, ".py") }))
	if err != nil {
		t.Fatal(err)
	}
	files, err := s.Files(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"pkg/__init__.py", "pkg/core.py", "pkg/tests/test_core.py"}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("Files = %v, want %v", files, want)
	}
}

func TestAccept(t *testing.T) {
	root := sampleTree(t)
	s, err := New(root, []string{".codegraph/"})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		rel  string
		want bool
	}{
		{"pkg/core.py", true},
		{"debug.log", false},
		{"pkg/generated/out.py", false},
		{"pkg/tests/fixtures/big.py", false},
		{".codegraph/project.json", false},
		{".git/HEAD", false},
		{"pkg/__pycache__/core.pyc", false},
		{"new/module.py", true},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			if got := s.Accept(tt.rel); got != tt.want {
				t.Errorf("Accept(%q) = %v, want %v", tt.rel, got, tt.want)
			}
		})
	}
}

func TestFiles_TrackedOnlyFallsBackToWalk(t *testing.T) {
	root := sampleTree(t)
	s, err := New(root, nil, WithTrackedOnly())
	if err != nil {
		t.Fatal(err)
	}
	files, err := s.Files(context.Background())
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) == 0 {
		t.Error("expected walked files outside a git work tree")
	}
}

func TestFiles_TrackedOnly(t *testing.T) {
	root := sampleTree(t)
	repo, err := git.PlainInit(root, false)
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	for _, rel := range []string{"pkg/core.py", "docs/index.md"} {
		if _, err := wt.Add(rel); err != nil {
			t.Fatalf("add %s: %v", rel, err)
		}
	}

	s, err := New(root, nil, WithTrackedOnly())
	if err != nil {
		t.Fatal(err)
	}
	files, err := s.Files(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"docs/index.md", "pkg/core.py"}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("Files = %v, want %v", files, want)
	}
}

func TestFiles_Cancelled(t *testing.T) {
	root := sampleTree(t)
	s, err := New(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Files(ctx); err == nil {
		t.Error("expected an error from a cancelled walk")
	}
}
