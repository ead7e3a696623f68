package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/efebarandurmaz/codegraph/internal/analyzer"
	"github.com/efebarandurmaz/codegraph/internal/config"
	"github.com/efebarandurmaz/codegraph/internal/observability"
	"github.com/efebarandurmaz/codegraph/internal/router"
)

// ErrUnknownStore is returned when a store id is not configured.
var ErrUnknownStore = errors.New("unknown graph store")

// InitResult reports what InitHashCache did.
type InitResult struct {
	Recorded  int       `json:"recorded"`
	Unchanged int       `json:"unchanged"`
	Pruned    []string  `json:"pruned"`
	Files     []Outcome `json:"files,omitempty"`
}

// InitHashCache records digests for files without analyzing them, so a later
// sweep only sees genuine edits. Existing entries are kept unless force is set.
// Entries for files that no longer exist are pruned.
func (p *Pipeline) InitHashCache(ctx context.Context, files []string, force bool) (InitResult, error) {
	var res InitResult
	if force {
		p.hashes.Reset()
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rel, err := p.relPath(f)
		if err != nil {
			res.Files = append(res.Files, Outcome{Path: f, Status: StatusFailed, Error: err.Error()})
			continue
		}
		if _, _, ok := analyzer.Classify(rel); !ok {
			continue
		}
		if p.hashes.Has(rel) {
			res.Unchanged++
			continue
		}
		if err := p.hashes.Record(rel); err != nil {
			res.Files = append(res.Files, Outcome{Path: rel, Status: StatusFailed, Error: err.Error()})
			continue
		}
		res.Recorded++
	}
	res.Pruned = p.hashes.Prune()
	if res.Pruned == nil {
		res.Pruned = []string{}
	}
	p.audit.LogHashCacheInit(ctx, res.Recorded, len(res.Pruned), force)
	p.logger.Info("hash cache initialized", "recorded", res.Recorded, "unchanged", res.Unchanged, "pruned", len(res.Pruned))

	if err := p.hashes.Save(); err != nil {
		return res, fmt.Errorf("save hash cache: %w", err)
	}
	return res, nil
}

// RegenerateResult is the per-item outcome of a full regeneration.
type RegenerateResult struct {
	Files   []Outcome      `json:"files"`
	Stores  []StoreOutcome `json:"stores"`
	Aborted bool           `json:"aborted,omitempty"`
}

// Committed counts stores that ended consistent on disk.
func (r RegenerateResult) Committed() int {
	n := 0
	for _, s := range r.Stores {
		if s.ok() {
			n++
		}
	}
	return n
}

// RegenerateAll rebuilds every configured store from files. Each file is
// analyzed once. Existing nodes keep their edges' ids wherever the import
// still holds; nodes whose file is not listed are removed. Cancelling ctx
// during analysis aborts with no store written.
func (p *Pipeline) RegenerateAll(ctx context.Context, files []string) (RegenerateResult, error) {
	start := time.Now()
	defer p.metrics.ObserveDuration("regenerate_all", start)
	ids := make([]string, len(p.cfg.Stores))
	for i, s := range p.cfg.Stores {
		ids[i] = s.ID
	}
	p.audit.LogRegenerateStart(ctx, ids, len(files))

	var res RegenerateResult
	changes, outcomes, err := p.prepareAll(ctx, files)
	if err != nil {
		res.Aborted = true
		p.logger.Warn("regeneration aborted", "error", err)
		return res, err
	}

	batches := make([]batch, 0, len(p.cfg.Stores))
	for _, s := range p.cfg.Stores {
		batches = append(batches, batch{store: s, changes: matching(s, changes)})
	}
	res.Stores = p.applyAll(ctx, batches, true)
	res.Files = append(outcomes, p.settle(changes, batches, res.Stores)...)
	sort.SliceStable(res.Files, func(i, j int) bool { return res.Files[i].Path < res.Files[j].Path })

	var errs []error
	p.hashes.Prune()
	if err := p.hashes.Save(); err != nil {
		errs = append(errs, fmt.Errorf("save hash cache: %w", err))
	}
	if err := p.refreshRouter(res.Stores); err != nil {
		errs = append(errs, err)
	}

	failed := len(res.Stores) - res.Committed()
	p.audit.LogRegenerateEnd(ctx, res.Committed(), failed, time.Since(start))
	p.logger.Info("regeneration complete",
		"stores", len(res.Stores),
		"committed", res.Committed(),
		"failed", failed,
		"files", len(res.Files),
		"duration", time.Since(start),
	)
	return res, errors.Join(errs...)
}

// RegenerateStore rebuilds the single store id from files.
func (p *Pipeline) RegenerateStore(ctx context.Context, id string, files []string) (StoreOutcome, error) {
	store, ok := p.cfg.Store(id)
	if !ok {
		return StoreOutcome{Graph: id, Status: StatusFailed}, fmt.Errorf("%w: %s", ErrUnknownStore, id)
	}
	ctx, span := observability.StartRegenerateSpan(ctx, id, len(files))
	defer span.End()
	defer p.metrics.ObserveDuration("regenerate_store", time.Now())

	var own []string
	for _, f := range files {
		if rel, err := p.relPath(f); err == nil && store.Matches(rel) {
			own = append(own, rel)
		}
	}
	changes, _, err := p.prepareAll(ctx, own)
	if err != nil {
		observability.RecordError(span, err)
		return StoreOutcome{Graph: id, Status: StatusFailed, Error: err.Error()}, err
	}

	b := batch{store: store, changes: changes}
	out := p.applyStore(ctx, store, changes, true)
	p.settle(changes, []batch{b}, []StoreOutcome{out})

	var errs []error
	if !out.ok() {
		errs = append(errs, fmt.Errorf("store %s: %s", id, out.Error))
	}
	if err := p.hashes.Save(); err != nil {
		errs = append(errs, fmt.Errorf("save hash cache: %w", err))
	}
	if err := p.refreshRouter([]StoreOutcome{out}); err != nil {
		errs = append(errs, err)
	}
	err = errors.Join(errs...)
	if err != nil {
		observability.RecordError(span, err)
	}
	return out, err
}

// prepareAll analyzes files in parallel. Files that vanished, are not indexed,
// or failed to read are reported as outcomes and left out of the changes.
func (p *Pipeline) prepareAll(ctx context.Context, files []string) ([]change, []Outcome, error) {
	seen := make(map[string]bool, len(files))
	var rels []string
	var outcomes []Outcome
	for _, f := range files {
		rel, err := p.relPath(f)
		if err != nil {
			outcomes = append(outcomes, Outcome{Path: f, Status: StatusFailed, Error: err.Error()})
			continue
		}
		if !seen[rel] {
			seen[rel] = true
			rels = append(rels, rel)
		}
	}
	sort.Strings(rels)

	prepared := make([]change, len(rels))
	errs := make([]error, len(rels))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(p.workers)
	for i, rel := range rels {
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			prepared[i], errs[i] = p.prepare(gctx, rel)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var changes []change
	for i, ch := range prepared {
		switch {
		case errors.Is(errs[i], errIgnored):
			outcomes = append(outcomes, Outcome{Path: rels[i], Status: StatusIgnored})
		case errs[i] != nil:
			outcomes = append(outcomes, Outcome{Path: rels[i], Status: StatusFailed, Error: errs[i].Error()})
		case ch.deleted:
			outcomes = append(outcomes, Outcome{Path: rels[i], Status: StatusRemoved})
		default:
			changes = append(changes, ch)
		}
	}
	return changes, outcomes, nil
}

func matching(s config.StoreConfig, changes []change) []change {
	var out []change
	for _, ch := range changes {
		if s.Matches(ch.rel) {
			out = append(out, ch)
		}
	}
	return out
}

// refreshRouter adds a router entry for every committed store. Authored hints
// on existing entries are kept.
func (p *Pipeline) refreshRouter(outs []StoreOutcome) error {
	path := p.cfg.RouterPath()
	unlock := p.locks.Lock(path)
	defer unlock()

	r, err := router.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		r = &router.Router{Metadata: router.Metadata{Version: "1.0", Fallback: p.cfg.Project.FallbackGraph}}
	} else if err != nil {
		return err
	}

	for _, o := range outs {
		if o.Status != StatusCommitted {
			continue
		}
		s, ok := p.cfg.Store(o.Graph)
		if !ok {
			continue
		}
		file := p.cfg.StorePath(s)
		if rel, err := filepath.Rel(filepath.Dir(path), file); err == nil {
			file = filepath.ToSlash(rel)
		}
		r.Upsert(router.Entry{
			Key:         s.ID,
			ID:          s.ID,
			Name:        s.Name,
			File:        file,
			Description: fmt.Sprintf("%s graph (%d nodes)", s.Name, o.Nodes),
		})
	}
	if err := r.Save(path); err != nil {
		return fmt.Errorf("save router: %w", err)
	}
	return nil
}
