package cache

import (
	"context"
	"fmt"

	"github.com/chazu/stackflow/flow"
	"github.com/chazu/stackflow/types"
	"github.com/chazu/stackflow/wire"
)

// Result is the outcome for one unit. Graph is only set when the unit was
// analyzed in this run rather than served from the store.
type Result struct {
	Unit    *wire.Unit
	Key     Key
	Summary *wire.Summary
	Graph   *flow.Graph
	Cached  bool
	Err     error
}

// Analyzer answers units from a Store when it can and analyzes the rest. A
// nil store disables caching.
type Analyzer struct {
	builder  *flow.Builder
	registry *types.Registry
	store    Store
	workers  int
}

// NewAnalyzer returns an Analyzer running at most workers analyses at once.
func NewAnalyzer(b *flow.Builder, reg *types.Registry, store Store, workers int) *Analyzer {
	return &Analyzer{builder: b, registry: reg, store: store, workers: workers}
}

// AnalyzeAll returns one Result per unit, in order. Per-unit failures land
// in Result.Err; the error return reports cancellation or a failing store.
func (a *Analyzer) AnalyzeAll(ctx context.Context, units []*wire.Unit) ([]Result, error) {
	results := make([]Result, len(units))
	var (
		pending []flow.Unit
		slot    []int
	)
	for i, u := range units {
		r := &results[i]
		r.Unit = u
		if r.Key, r.Err = KeyFor(u, a.registry); r.Err != nil {
			continue
		}
		if a.store != nil {
			s, ok, err := a.store.Get(ctx, r.Key)
			if err != nil {
				return nil, fmt.Errorf("cache lookup for %s: %w", u.Name, err)
			}
			if ok {
				log.Debugf("%s: cache hit %s", u.Name, r.Key.Short())
				r.Summary, r.Cached = s, true
				continue
			}
		}
		fu, err := u.Resolve(a.registry)
		if err != nil {
			r.Err = err
			continue
		}
		pending = append(pending, fu)
		slot = append(slot, i)
	}

	outcomes, err := a.builder.AnalyzeAll(ctx, pending, a.workers)
	if err != nil {
		return nil, err
	}
	for j, o := range outcomes {
		r := &results[slot[j]]
		if o.Err != nil {
			r.Err = o.Err
			continue
		}
		r.Graph = o.Graph
		if r.Summary, r.Err = wire.Summarize(o.Graph); r.Err != nil {
			continue
		}
		if a.store != nil {
			if err := a.store.Put(ctx, r.Key, r.Summary); err != nil {
				return nil, fmt.Errorf("cache store for %s: %w", r.Unit.Name, err)
			}
		}
	}

	hits := 0
	for _, r := range results {
		if r.Cached {
			hits++
		}
	}
	log.Infof("%d units, %d from cache, %d analyzed", len(units), hits, len(pending))
	return results, nil
}
