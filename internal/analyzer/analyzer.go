// Package analyzer extracts per-file metadata used to build graph nodes.
package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/efebarandurmaz/codegraph/internal/depgraph"
	"github.com/efebarandurmaz/codegraph/internal/resolver"
)

// DefaultDescriptionMaxLen bounds descriptions when no limit is configured.
const DefaultDescriptionMaxLen = 120

// ModuleInfo is the metadata extracted from one file.
type ModuleInfo struct {
	Classes     []string          `json:"classes,omitempty"`
	Functions   []string          `json:"functions,omitempty"`
	Imports     []resolver.Import `json:"imports,omitempty"`
	Description string            `json:"description"`
	LinesOfCode int               `json:"lines_of_code"`
	Tags        []string          `json:"tags,omitempty"`
	ParseError  bool              `json:"parse_error,omitempty"`
}

// Analyzer extracts ModuleInfo from source files. It is safe for concurrent use.
type Analyzer struct {
	maxDesc int
	logger  *slog.Logger
}

// New creates an Analyzer. maxDesc <= 0 selects DefaultDescriptionMaxLen.
func New(maxDesc int, logger *slog.Logger) *Analyzer {
	if maxDesc <= 0 {
		maxDesc = DefaultDescriptionMaxLen
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{maxDesc: maxDesc, logger: logger}
}

// AnalyzeFile reads root/relPath and analyzes it. Only read failures are errors.
func (a *Analyzer) AnalyzeFile(ctx context.Context, root, relPath string) (ModuleInfo, error) {
	content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(relPath)))
	if err != nil {
		return ModuleInfo{}, fmt.Errorf("read %s: %w", relPath, err)
	}
	return a.Analyze(ctx, relPath, content), nil
}

// Analyze extracts metadata from content. It never fails: unparseable input
// yields a record with ParseError set, a line count and a synthesized description.
func (a *Analyzer) Analyze(ctx context.Context, relPath string, content []byte) ModuleInfo {
	relPath = toSlash(relPath)
	nodeType, _, _ := Classify(relPath)

	var info ModuleInfo
	switch {
	case IsPython(relPath):
		info = a.analyzePython(ctx, relPath, content)
	case nodeType == depgraph.NodeWorkflow:
		info.Description = workflowDescription(content)
	case path.Base(relPath) == "pyproject.toml":
		info.Description = pyprojectDescription(content)
	case nodeType == depgraph.NodeDocumentation:
		info.Description = markdownHeading(content)
	}
	info.LinesOfCode = CountLines(content)
	info.Description = truncate(firstLine(info.Description), a.maxDesc)
	if info.Description == "" {
		info.Description = truncate(Synthesize(relPath, nodeType), a.maxDesc)
	}
	return info
}

// CountLines counts newline-terminated lines plus a trailing partial line.
func CountLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte{'\n'})
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}

// Synthesize builds a description from a file name when a file carries no
// documentation of its own.
func Synthesize(relPath string, t depgraph.NodeType) string {
	rel := toSlash(relPath)
	base := path.Base(rel)
	if base == "__init__.py" {
		dir := path.Dir(rel)
		if dir == "." {
			return "Package initializer"
		}
		return "Package " + strings.ReplaceAll(dir, "/", ".")
	}
	stem := strings.TrimSuffix(base, path.Ext(base))
	stem = strings.TrimPrefix(stem, "test_")
	stem = strings.TrimSuffix(stem, "_test")
	words := strings.Join(strings.FieldsFunc(stem, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || unicode.IsSpace(r)
	}), " ")
	if words == "" {
		words = base
	}

	switch t {
	case depgraph.NodeTest:
		return "Tests for " + words
	case depgraph.NodeWorkflow:
		return capitalize(words) + " workflow"
	case depgraph.NodeDocumentation:
		return capitalize(words) + " documentation"
	case depgraph.NodeConfig:
		return capitalize(words) + " configuration"
	case depgraph.NodeScript:
		return capitalize(words) + " script"
	default:
		return capitalize(words) + " module"
	}
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return strings.TrimRightFunc(string(r[:n-3]), unicode.IsSpace) + "..."
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
