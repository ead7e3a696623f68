// Package resolver turns raw import statements into canonical internal module ids.
package resolver

import (
	"sort"
	"strings"
)

// Import is one raw import statement as written in source.
//
//	import a.b            -> {Module: "a.b"}
//	from a.b import C, d  -> {Module: "a.b", Names: ["C", "d"]}
//	from ..base import X  -> {Module: "base", Names: ["X"], Level: 2}
//	from . import x       -> {Names: ["x"], Level: 1}
type Import struct {
	Module string   `json:"module,omitempty"`
	Names  []string `json:"names,omitempty"`
	Level  int      `json:"level,omitempty"`
}

// Resolver holds the allow-list of internal namespaces.
type Resolver struct {
	namespaces map[string]bool
	// SymbolLevel appends imported names to the module path. Edge resolution walks
	// back up to the module when no symbol-level node exists.
	SymbolLevel bool
}

// New creates a resolver that keeps absolute imports rooted in one of namespaces.
func New(namespaces []string) *Resolver {
	ns := make(map[string]bool, len(namespaces))
	for _, n := range namespaces {
		if n = strings.TrimSpace(n); n != "" {
			ns[n] = true
		}
	}
	return &Resolver{namespaces: ns, SymbolLevel: true}
}

// Internal reports whether a dotted module path belongs to an internal namespace.
func (r *Resolver) Internal(module string) bool {
	top, _, _ := strings.Cut(module, ".")
	return r.namespaces[top]
}

// Resolve returns the canonical ids referenced by imp when imported from importerID.
// importerIsPackage marks importers that are package initializers, whose package path
// is their own id rather than its parent. External imports resolve to nothing.
func (r *Resolver) Resolve(imp Import, importerID string, importerIsPackage bool) []string {
	base, ok := r.baseModule(imp, importerID, importerIsPackage)
	if !ok {
		return nil
	}

	if !r.SymbolLevel || len(imp.Names) == 0 {
		if base == "" {
			return nil
		}
		return []string{base}
	}

	var out []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, name := range imp.Names {
		name = stripAlias(name)
		if name == "" || name == "*" {
			add(base)
			continue
		}
		add(join(base, name))
	}
	return out
}

// ResolveAll resolves every import and returns the sorted, de-duplicated union.
func (r *Resolver) ResolveAll(imps []Import, importerID string, importerIsPackage bool) []string {
	seen := make(map[string]bool)
	var out []string
	for _, imp := range imps {
		for _, id := range r.Resolve(imp, importerID, importerIsPackage) {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	sort.Strings(out)
	return out
}

// baseModule computes the module path an import refers to, before symbol names.
func (r *Resolver) baseModule(imp Import, importerID string, importerIsPackage bool) (string, bool) {
	module := strings.Trim(imp.Module, ".")
	if imp.Level <= 0 {
		if module == "" || !r.Internal(module) {
			return "", false
		}
		return module, true
	}

	pkg := PackageOf(importerID, importerIsPackage)
	segments := splitDotted(pkg)
	strip := imp.Level - 1
	if strip >= len(segments) {
		return "", false
	}
	segments = segments[:len(segments)-strip]
	return join(strings.Join(segments, "."), module), true
}

// PackageOf returns the package path enclosing a module id.
func PackageOf(moduleID string, isPackage bool) string {
	if isPackage {
		return moduleID
	}
	if i := strings.LastIndex(moduleID, "."); i >= 0 {
		return moduleID[:i]
	}
	return ""
}

func stripAlias(name string) string {
	name = strings.TrimSpace(name)
	if before, _, found := strings.Cut(name, " as "); found {
		return strings.TrimSpace(before)
	}
	return name
}

func splitDotted(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ".")
}

func join(prefix, name string) string {
	switch {
	case prefix == "":
		return name
	case name == "":
		return prefix
	default:
		return prefix + "." + name
	}
}
