package analyzer

import (
	"path"
	"strings"

	"github.com/efebarandurmaz/codegraph/internal/depgraph"
)

// Classify maps a repository-relative path to its node type and category.
// It returns false for files that are not indexed.
func Classify(relPath string) (depgraph.NodeType, depgraph.Category, bool) {
	rel := strings.TrimPrefix(path.Clean(toSlash(relPath)), "./")
	base := path.Base(rel)
	ext := strings.ToLower(path.Ext(base))
	top, _, _ := strings.Cut(rel, "/")

	switch {
	case isWorkflow(rel):
		return depgraph.NodeWorkflow, depgraph.CategoryCI, true
	case ext == ".md" || ext == ".rst":
		return depgraph.NodeDocumentation, depgraph.CategoryDocs, true
	case ext == ".py":
		switch {
		case isTestFile(rel):
			return depgraph.NodeTest, depgraph.CategoryTest, true
		case top == "scripts" || top == "bin":
			return depgraph.NodeScript, depgraph.CategoryOther, true
		}
		cat := depgraph.CategorySource
		if top == "examples" {
			cat = depgraph.CategoryExample
		}
		if base == "__init__.py" {
			return depgraph.NodePackage, cat, true
		}
		return depgraph.NodeModule, cat, true
	case ext == ".toml" || ext == ".cfg" || ext == ".ini" || ext == ".yml" || ext == ".yaml":
		return depgraph.NodeConfig, depgraph.CategoryConfig, true
	}
	return "", "", false
}

// IsPython reports whether relPath is a Python source file.
func IsPython(relPath string) bool {
	return strings.EqualFold(path.Ext(relPath), ".py")
}

// IsPackage reports whether relPath is a package initializer.
func IsPackage(relPath string) bool {
	return path.Base(toSlash(relPath)) == "__init__.py"
}

// ModuleID derives the canonical dotted id of relPath. Python files drop the
// extension and any matching source root ("src/pkg/mod.py" -> "pkg.mod"), and
// package initializers take the id of their directory. Other files keep their
// extension with dots folded to underscores ("docs/guide.md" -> "docs.guide_md").
func ModuleID(relPath string, sourceRoots []string) string {
	rel := strings.TrimPrefix(path.Clean(toSlash(relPath)), "./")
	if !IsPython(rel) {
		segs := strings.Split(rel, "/")
		for i, s := range segs {
			segs[i] = strings.ReplaceAll(s, ".", "_")
		}
		return strings.Join(segs, ".")
	}

	for _, root := range sourceRoots {
		root = strings.Trim(toSlash(root), "/")
		if root == "" || root == "." {
			continue
		}
		if rest, ok := strings.CutPrefix(rel, root+"/"); ok {
			rel = rest
			break
		}
	}
	rel = strings.TrimSuffix(rel, path.Ext(rel))
	rel = strings.TrimSuffix(rel, "/__init__")
	if rel == "__init__" {
		return ""
	}
	return strings.ReplaceAll(rel, "/", ".")
}

// DefaultCriticality is the tier a freshly created node starts with.
func DefaultCriticality(t depgraph.NodeType) depgraph.Criticality {
	switch t {
	case depgraph.NodePackage:
		return depgraph.CriticalityHigh
	case depgraph.NodeTest, depgraph.NodeDocumentation, depgraph.NodeWorkflow:
		return depgraph.CriticalityLow
	default:
		return depgraph.CriticalityMedium
	}
}

func isWorkflow(rel string) bool {
	ext := path.Ext(rel)
	return strings.HasPrefix(rel, ".github/workflows/") && (ext == ".yml" || ext == ".yaml")
}

func isTestFile(rel string) bool {
	base := path.Base(rel)
	if strings.HasPrefix(base, "test_") || strings.HasSuffix(base, "_test.py") || base == "conftest.py" {
		return true
	}
	top, _, _ := strings.Cut(rel, "/")
	return top == "tests" || top == "test"
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
