package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/efebarandurmaz/codegraph/internal/analyzer"
	"github.com/efebarandurmaz/codegraph/internal/depgraph"
	"github.com/efebarandurmaz/codegraph/internal/hashstore"
)

// errIgnored marks files that map to no node type.
var errIgnored = errors.New("file is not indexed")

// change is one analyzed file, or one deleted path, ready to apply to a store.
type change struct {
	rel     string
	deleted bool
	digest  string
	node    depgraph.Node
	imports []string
}

// prepare hashes and analyzes rel. A missing file becomes a deletion. The
// digest is taken before analysis so a concurrent edit is picked up next time.
func (p *Pipeline) prepare(ctx context.Context, rel string) (change, error) {
	nodeType, category, ok := analyzer.Classify(rel)
	if !ok {
		return change{rel: rel}, errIgnored
	}
	id := analyzer.ModuleID(rel, p.cfg.Project.SourceRoots)
	if id == "" {
		return change{rel: rel}, errIgnored
	}

	digest, err := hashstore.Digest(p.abs(rel))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return change{rel: rel, deleted: true}, nil
		}
		return change{rel: rel}, fmt.Errorf("hash %s: %w", rel, err)
	}

	info, err := p.analyzer.AnalyzeFile(ctx, p.root, rel)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return change{rel: rel, deleted: true}, nil
		}
		return change{rel: rel}, err
	}

	p.metrics.FilesAnalyzed.WithLabelValues(string(nodeType)).Inc()
	if info.ParseError {
		p.metrics.ParseFailures.Inc()
	}

	ch := change{
		rel:    rel,
		digest: digest,
		node: depgraph.Node{
			ID:          id,
			Path:        rel,
			Type:        nodeType,
			Category:    category,
			Description: info.Description,
			LinesOfCode: info.LinesOfCode,
			Classes:     info.Classes,
			Functions:   info.Functions,
			Criticality: analyzer.DefaultCriticality(nodeType),
			Tags:        info.Tags,
			ParseError:  info.ParseError,
		},
	}
	if analyzer.IsPython(rel) {
		ch.imports = p.resolver.ResolveAll(info.Imports, id, analyzer.IsPackage(rel))
	}
	return ch, nil
}

// merge carries hand-maintained fields of an existing node over to a freshly
// analyzed one.
func merge(fresh depgraph.Node, existing *depgraph.Node) depgraph.Node {
	if existing == nil {
		return fresh
	}
	if existing.Criticality.Valid() {
		fresh.Criticality = existing.Criticality
	}
	fresh.Tags = unionTags(existing.Tags, fresh.Tags)
	return fresh
}

func unionTags(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, t := range list {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	sort.Strings(out)
	return out
}
