package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/efebarandurmaz/codegraph/internal/config"
	"github.com/efebarandurmaz/codegraph/internal/depgraph"
	"github.com/efebarandurmaz/codegraph/internal/observability"
)

// UpdateOptions controls UpdateForFile.
type UpdateOptions struct {
	// Force re-analyzes the file even when its digest is unchanged.
	Force bool
}

// UpdateResult reports what UpdateForFile did.
type UpdateResult struct {
	Path          string         `json:"path"`
	GraphsUpdated []string       `json:"graphs_updated"`
	Skipped       bool           `json:"skipped,omitempty"`
	Ignored       bool           `json:"ignored,omitempty"`
	Removed       bool           `json:"removed,omitempty"`
	ParseError    bool           `json:"parse_error,omitempty"`
	EdgesAdded    int            `json:"edges_added"`
	EdgesRemoved  int            `json:"edges_removed"`
	Stores        []StoreOutcome `json:"stores,omitempty"`
}

// UpdateForFile brings every store fed by path up to date with the file's
// current content. An unchanged digest short-circuits without touching any
// store. A file that no longer exists is removed from every store holding it.
// The digest is recorded only after all affected stores have committed.
func (p *Pipeline) UpdateForFile(ctx context.Context, path string, opts UpdateOptions) (UpdateResult, error) {
	start := time.Now()
	defer p.metrics.ObserveDuration("update_file", start)
	ctx, span := observability.StartUpdateSpan(ctx, path, opts.Force)
	defer span.End()

	rel, err := p.relPath(path)
	if err != nil {
		observability.RecordError(span, err)
		return UpdateResult{Path: path, GraphsUpdated: []string{}}, err
	}
	res := UpdateResult{Path: rel, GraphsUpdated: []string{}}

	if !opts.Force && p.hashes.Has(rel) && !p.hashes.IsChanged(rel) {
		res.Skipped = true
		p.metrics.FilesSkipped.Inc()
		observability.RecordUpdateResult(span, nil, true, 0, 0)
		p.logger.Debug("file unchanged", "path", rel)
		return res, nil
	}

	ch, err := p.prepare(ctx, rel)
	if errors.Is(err, errIgnored) {
		res.Ignored = true
		return res, nil
	}
	if err != nil {
		observability.RecordError(span, err)
		return res, err
	}

	batches := p.group([]change{ch})
	res.Stores = p.applyAll(ctx, batches, false)

	var errs []error
	for _, o := range res.Stores {
		res.EdgesAdded += o.EdgesAdded
		res.EdgesRemoved += o.EdgesRemoved
		if o.Status == StatusCommitted {
			res.GraphsUpdated = append(res.GraphsUpdated, o.Graph)
		}
		if ch.deleted && o.Removed > 0 {
			res.Removed = true
		}
		if !o.ok() {
			errs = append(errs, fmt.Errorf("store %s: %s", o.Graph, o.Error))
		}
		for _, c := range o.Collisions {
			errs = append(errs, fmt.Errorf("store %s: %s: %w", o.Graph, c.Path, c))
		}
	}
	res.ParseError = ch.node.ParseError

	if len(errs) == 0 {
		p.settleHash(ch)
		if err := p.hashes.Save(); err != nil {
			errs = append(errs, fmt.Errorf("save hash cache: %w", err))
		}
	}
	if ch.deleted {
		p.metrics.FilesRemoved.Inc()
	}

	observability.RecordUpdateResult(span, res.GraphsUpdated, false, res.EdgesAdded, res.EdgesRemoved)
	p.audit.LogFileUpdate(ctx, rel, res.GraphsUpdated, res.EdgesAdded, res.EdgesRemoved, time.Since(start))
	p.logger.Info("file updated",
		"path", rel,
		"graphs", res.GraphsUpdated,
		"edges_added", res.EdgesAdded,
		"edges_removed", res.EdgesRemoved,
		"removed", res.Removed,
	)

	err = errors.Join(errs...)
	if err != nil {
		observability.RecordError(span, err)
	}
	return res, err
}

// SweepResult is the per-item outcome of a sweep.
type SweepResult struct {
	Files    []Outcome      `json:"files"`
	Stores   []StoreOutcome `json:"stores"`
	Analyzed int            `json:"analyzed"`
	Skipped  int            `json:"skipped"`
	Removed  int            `json:"removed"`
	Failed   int            `json:"failed"`
	Aborted  bool           `json:"aborted,omitempty"`
}

// Sweep updates every changed file in files, an already-filtered listing of
// the repository, and removes nodes for files that vanished. Changes are
// grouped per store so each store is loaded and committed once. A bad file or
// store is reported in the result and never fails the batch. Cancelling ctx
// between files aborts before any store is written.
func (p *Pipeline) Sweep(ctx context.Context, files []string) (SweepResult, error) {
	start := time.Now()
	defer p.metrics.ObserveDuration("sweep", start)
	ctx, span := observability.StartSweepSpan(ctx, len(files))
	defer span.End()

	var res SweepResult
	listed := make(map[string]bool, len(files))
	var rels []string
	for _, f := range files {
		rel, err := p.relPath(f)
		if err != nil {
			res.Files = append(res.Files, Outcome{Path: f, Status: StatusFailed, Error: err.Error()})
			continue
		}
		if !listed[rel] {
			listed[rel] = true
			rels = append(rels, rel)
		}
	}
	for _, rel := range p.knownPaths() {
		if !listed[rel] && !p.exists(rel) {
			listed[rel] = true
			rels = append(rels, rel)
		}
	}
	sort.Strings(rels)

	var changes []change
	for _, rel := range rels {
		if err := ctx.Err(); err != nil {
			res.Aborted = true
			observability.RecordError(span, err)
			p.logger.Warn("sweep aborted", "path", rel, "error", err)
			return res, err
		}
		if p.hashes.Has(rel) && !p.hashes.IsChanged(rel) {
			res.Files = append(res.Files, Outcome{Path: rel, Status: StatusSkipped})
			p.metrics.FilesSkipped.Inc()
			continue
		}
		ch, err := p.prepare(ctx, rel)
		switch {
		case errors.Is(err, errIgnored):
			res.Files = append(res.Files, Outcome{Path: rel, Status: StatusIgnored})
		case err != nil:
			res.Files = append(res.Files, Outcome{Path: rel, Status: StatusFailed, Error: err.Error()})
			p.logger.Warn("file analysis failed", "path", rel, "error", err)
		default:
			changes = append(changes, ch)
		}
	}

	batches := p.group(changes)
	res.Stores = p.applyAll(ctx, batches, false)
	res.Files = append(res.Files, p.settle(changes, batches, res.Stores)...)
	sort.SliceStable(res.Files, func(i, j int) bool { return res.Files[i].Path < res.Files[j].Path })

	for _, o := range res.Files {
		switch o.Status {
		case StatusUpdated, StatusParseError:
			res.Analyzed++
		case StatusSkipped:
			res.Skipped++
		case StatusRemoved:
			res.Removed++
			p.metrics.FilesRemoved.Inc()
		case StatusFailed:
			res.Failed++
		}
	}

	err := p.hashes.Save()
	if err != nil {
		err = fmt.Errorf("save hash cache: %w", err)
		observability.RecordError(span, err)
	}
	p.logger.Info("sweep complete",
		"analyzed", res.Analyzed,
		"skipped", res.Skipped,
		"removed", res.Removed,
		"failed", res.Failed,
		"duration", time.Since(start),
	)
	return res, err
}

// batch is the set of changes destined for one store.
type batch struct {
	store   config.StoreConfig
	changes []change
}

// group assigns changes to stores. Deletions go to every store since the
// file's node may sit in any of them.
func (p *Pipeline) group(changes []change) []batch {
	var out []batch
	for _, s := range p.cfg.Stores {
		b := batch{store: s}
		for _, ch := range changes {
			if ch.deleted || s.Matches(ch.rel) {
				b.changes = append(b.changes, ch)
			}
		}
		if len(b.changes) > 0 {
			out = append(out, b)
		}
	}
	return out
}

// applyAll applies batches in parallel. Each batch targets a distinct store,
// so the only shared state is the lock registry.
func (p *Pipeline) applyAll(ctx context.Context, batches []batch, prune bool) []StoreOutcome {
	outs := make([]StoreOutcome, len(batches))
	var eg errgroup.Group
	eg.SetLimit(p.workers)
	for i, b := range batches {
		eg.Go(func() error {
			outs[i] = p.applyStore(ctx, b.store, b.changes, prune)
			return nil
		})
	}
	_ = eg.Wait()
	return outs
}

// settle turns store outcomes into per-file outcomes and records digests for
// files whose every store committed. Files touching a failed store keep their
// old digest and are retried next sweep.
func (p *Pipeline) settle(changes []change, batches []batch, outs []StoreOutcome) []Outcome {
	failed := make(map[string]string)
	for i, b := range batches {
		for _, c := range outs[i].Collisions {
			if _, seen := failed[c.Path]; !seen {
				failed[c.Path] = fmt.Sprintf("store %s: %s", outs[i].Graph, c.Error())
			}
		}
		if outs[i].ok() {
			continue
		}
		for _, ch := range b.changes {
			if _, seen := failed[ch.rel]; !seen {
				failed[ch.rel] = fmt.Sprintf("store %s: %s", outs[i].Graph, outs[i].Error)
			}
		}
	}

	out := make([]Outcome, 0, len(changes))
	for _, ch := range changes {
		if msg, bad := failed[ch.rel]; bad {
			out = append(out, Outcome{Path: ch.rel, Status: StatusFailed, Error: msg})
			continue
		}
		p.settleHash(ch)
		switch {
		case ch.deleted:
			out = append(out, Outcome{Path: ch.rel, Status: StatusRemoved})
		case ch.node.ParseError:
			out = append(out, Outcome{Path: ch.rel, Status: StatusParseError})
		default:
			out = append(out, Outcome{Path: ch.rel, Status: StatusUpdated})
		}
	}
	return out
}

func (p *Pipeline) settleHash(ch change) {
	if ch.deleted {
		p.hashes.Forget(ch.rel)
		return
	}
	p.hashes.Put(ch.rel, ch.digest)
}

// knownPaths lists every path the hash cache or a store currently knows about.
func (p *Pipeline) knownPaths() []string {
	seen := make(map[string]bool)
	for _, rel := range p.hashes.Paths() {
		seen[rel] = true
	}
	for _, s := range p.cfg.Stores {
		g, err := depgraph.Load(p.cfg.StorePath(s))
		if err != nil {
			continue
		}
		for _, n := range g.Nodes {
			if n.Path != "" {
				seen[n.Path] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for rel := range seen {
		out = append(out, rel)
	}
	sort.Strings(out)
	return out
}

func (p *Pipeline) exists(rel string) bool {
	_, err := os.Stat(p.abs(rel))
	return err == nil
}
