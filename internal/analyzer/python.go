package analyzer

import (
	"context"
	"log/slog"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/efebarandurmaz/codegraph/internal/resolver"
)

func (a *Analyzer) analyzePython(ctx context.Context, relPath string, content []byte) ModuleInfo {
	// new parser per call; tree-sitter parsers are not safe for concurrent use
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		a.logger.Warn("python parse failed", slog.String("path", relPath), slog.String("error", err.Error()))
		return ModuleInfo{ParseError: true}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.HasError() {
		a.logger.Warn("python syntax error", slog.String("path", relPath))
		return ModuleInfo{ParseError: true}
	}

	var info ModuleInfo
	info.Description = moduleDocstring(root, content)
	info.Imports = collectImports(root, content)

	abstract := false
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		def := child
		if child.Type() == "decorated_definition" {
			def = child.ChildByFieldName("definition")
			if def == nil {
				continue
			}
		}
		switch def.Type() {
		case "class_definition":
			name := text(def.ChildByFieldName("name"), content)
			if name == "" {
				continue
			}
			info.Classes = append(info.Classes, name)
			if isAbstractClass(def, content) {
				abstract = true
			}
		case "function_definition":
			name := text(def.ChildByFieldName("name"), content)
			if name != "" && !strings.HasPrefix(name, "_") {
				info.Functions = append(info.Functions, name)
			}
		}
	}
	if abstract {
		info.Tags = append(info.Tags, "abstract")
	}
	return info
}

// moduleDocstring returns the leading string statement of the module, skipping
// comments. Anything else before it means there is no docstring.
func moduleDocstring(root *sitter.Node, content []byte) string {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "comment":
			continue
		case "expression_statement":
			if child.NamedChildCount() > 0 && child.NamedChild(0).Type() == "string" {
				return stringContent(child.NamedChild(0), content)
			}
		}
		return ""
	}
	return ""
}

// collectImports walks the whole tree so that imports nested in try, if and
// function bodies are recorded too.
func collectImports(root *sitter.Node, content []byte) []resolver.Import {
	var out []resolver.Import
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "import_statement":
			out = append(out, plainImports(n, content)...)
			return
		case "import_from_statement":
			if imp, ok := fromImport(n, content); ok {
				out = append(out, imp)
			}
			return
		case "string", "comment":
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)
	return out
}

// plainImports handles "import a.b, c as d".
func plainImports(n *sitter.Node, content []byte) []resolver.Import {
	var out []resolver.Import
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			out = append(out, resolver.Import{Module: text(child, content)})
		case "aliased_import":
			if name := child.ChildByFieldName("name"); name != nil {
				out = append(out, resolver.Import{Module: text(name, content)})
			}
		}
	}
	return out
}

// fromImport handles "from [.]*module import names".
func fromImport(n *sitter.Node, content []byte) (resolver.Import, bool) {
	var imp resolver.Import
	moduleNode := n.ChildByFieldName("module_name")
	if moduleNode == nil {
		return imp, false
	}

	switch moduleNode.Type() {
	case "relative_import":
		for j := 0; j < int(moduleNode.NamedChildCount()); j++ {
			part := moduleNode.NamedChild(j)
			switch part.Type() {
			case "import_prefix":
				imp.Level = strings.Count(text(part, content), ".")
			case "dotted_name":
				imp.Module = text(part, content)
			}
		}
	default:
		imp.Module = text(moduleNode, content)
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Equal(moduleNode) {
			continue
		}
		switch child.Type() {
		case "wildcard_import":
			imp.Names = append(imp.Names, "*")
		case "dotted_name":
			imp.Names = append(imp.Names, text(child, content))
		case "aliased_import":
			name := text(child.ChildByFieldName("name"), content)
			alias := text(child.ChildByFieldName("alias"), content)
			if alias != "" {
				name += " as " + alias
			}
			if name != "" {
				imp.Names = append(imp.Names, name)
			}
		}
	}
	return imp, imp.Module != "" || imp.Level > 0
}

// isAbstractClass reports whether a class derives from ABC, uses ABCMeta, or
// declares an abstractmethod.
func isAbstractClass(class *sitter.Node, content []byte) bool {
	if supers := class.ChildByFieldName("superclasses"); supers != nil {
		src := text(supers, content)
		if strings.Contains(src, "ABC") {
			return true
		}
	}
	body := class.ChildByFieldName("body")
	if body == nil {
		return false
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		stmt := body.NamedChild(i)
		if stmt.Type() != "decorated_definition" {
			continue
		}
		for j := 0; j < int(stmt.NamedChildCount()); j++ {
			dec := stmt.NamedChild(j)
			if dec.Type() == "decorator" && strings.Contains(text(dec, content), "abstractmethod") {
				return true
			}
		}
	}
	return false
}

func text(n *sitter.Node, content []byte) string {
	if n == nil {
		return ""
	}
	return n.Content(content)
}

// stringContent strips prefixes and quotes from a Python string literal.
func stringContent(n *sitter.Node, content []byte) string {
	raw := strings.TrimLeft(text(n, content), "rRbBuUfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(raw, q) && strings.HasSuffix(raw, q) && len(raw) >= 2*len(q) {
			return raw[len(q) : len(raw)-len(q)]
		}
	}
	return raw
}
