// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package logviewer

import (
	"context"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"

	"github.com/cardinalhq/edgeview/backend"
	"github.com/cardinalhq/edgeview/internal/logctx"
)

// FetchFunc loads the rows of one bucket. Implementations route through the
// optimizer's cache/dedup path; the context carries the per-bucket
// cancellation token.
type FetchFunc func(ctx context.Context, b *Bucket) ([]backend.Row, error)

// Config bounds the viewer's resource usage.
type Config struct {
	// RowBudget caps total materialized rows across all buckets.
	RowBudget int
	// HeadCacheSize bounds the LRU of evicted bucket heads.
	HeadCacheSize int
	// FetchConcurrency is the shared limiter across all bucket fetches.
	FetchConcurrency int
}

// DefaultConfig matches the dashboard's production tuning.
func DefaultConfig() Config {
	return Config{
		RowBudget:        1000,
		HeadCacheSize:    20,
		FetchConcurrency: 4,
	}
}

// Viewer is one view session over a bucketed log listing. Construct it on
// dashboard load and Close it on navigation or filter change; Close cancels
// every outstanding bucket fetch through the shared parent token.
type Viewer struct {
	ID string

	mu      sync.Mutex
	buckets map[string]*Bucket
	order   []string // insertion order, top to bottom

	ctx    context.Context
	cancel context.CancelFunc

	renderer Renderer
	viewport Viewport
	fetch    FetchFunc

	headCache *lru.Cache[string, []backend.Row]
	sem       chan struct{}

	cfg              Config
	materializedRows int

	// wg tracks in-flight fetch goroutines so tests can drain them.
	wg sync.WaitGroup
}

// NewViewer builds a viewer session. The parent context is typically the
// dashboard page context; cancelling it tears the session down.
func NewViewer(parent context.Context, cfg Config, r Renderer, vp Viewport, fetch FetchFunc) (*Viewer, error) {
	if cfg.RowBudget <= 0 {
		cfg = DefaultConfig()
	}
	cache, err := lru.New[string, []backend.Row](cfg.HeadCacheSize)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(parent)
	return &Viewer{
		ID:        uuid.NewString(),
		buckets:   make(map[string]*Bucket),
		ctx:       ctx,
		cancel:    cancel,
		renderer:  r,
		viewport:  vp,
		fetch:     fetch,
		headCache: cache,
		sem:       make(chan struct{}, cfg.FetchConcurrency),
		cfg:       cfg,
	}, nil
}

// Close tears the session down: every outstanding per-bucket fetch token is
// cancelled through the shared parent.
func (v *Viewer) Close() {
	v.cancel()
	v.wg.Wait()
}

// Wait blocks until every in-flight bucket fetch has settled, without
// cancelling anything.
func (v *Viewer) Wait() {
	v.wg.Wait()
}

// AddBucket registers one time slice and renders its placeholder.
func (v *Viewer) AddBucket(b *Bucket) {
	v.mu.Lock()
	defer v.mu.Unlock()
	b.state = StatePlaceholder
	v.buckets[b.Key] = b
	v.order = append(v.order, b.Key)
	v.renderer.InsertPlaceholder(b.Key, b.TotalCount())
}

// Bucket returns the bucket for a key, or nil.
func (v *Viewer) Bucket(key string) *Bucket {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.buckets[key]
}

// MaterializedRows reports the current total of materialized rows.
func (v *Viewer) MaterializedRows() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.materializedRows
}

// OnBucketVisible handles a load-observer intersection: the placeholder for
// key scrolled into the (generously forward-margined) viewport. Only a
// placeholder transitions; duplicate intersection events while loading or
// materialized are ignored, which guarantees at most one in-flight fetch per
// bucket.
func (v *Viewer) OnBucketVisible(key string) {
	v.mu.Lock()
	b, ok := v.buckets[key]
	if !ok || b.state != StatePlaceholder {
		v.mu.Unlock()
		return
	}

	// A recently evicted head restores instantly, no network round-trip.
	if rows, ok := v.headCache.Get(key); ok {
		v.materializeLocked(b, rows)
		v.mu.Unlock()
		return
	}

	b.state = StateLoading
	fetchCtx, cancel := context.WithCancel(v.ctx)
	b.cancel = cancel
	v.renderer.MarkLoading(key)
	v.mu.Unlock()

	v.wg.Add(1)
	go v.load(fetchCtx, b)
}

func (v *Viewer) load(ctx context.Context, b *Bucket) {
	defer v.wg.Done()

	// All bucket fetches share one limiter regardless of how many buckets
	// intersect at once.
	select {
	case v.sem <- struct{}{}:
		defer func() { <-v.sem }()
	case <-ctx.Done():
		v.revertToPlaceholder(b)
		return
	}
	if ctx.Err() != nil {
		v.revertToPlaceholder(b)
		return
	}

	rows, err := v.fetch(ctx, b)
	if err != nil {
		// Degrade to the placeholder; no partial insertion, no crash.
		if ctx.Err() == nil {
			logctx.FromContext(v.ctx).Warn("bucket fetch failed",
				"bucket", b.Key, "error", err.Error())
		}
		v.revertToPlaceholder(b)
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if b.state != StateLoading {
		// Evicted while in flight; its token was cancelled, drop the data.
		return
	}
	b.cancel = nil
	v.materializeLocked(b, rows)
}

func (v *Viewer) revertToPlaceholder(b *Bucket) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if b.state == StateLoading {
		b.state = StatePlaceholder
		b.cancel = nil
		v.renderer.InsertPlaceholder(b.Key, b.TotalCount())
	}
}

// materializeLocked inserts the fetched rows (renderer adds the sentinel
// first), caches the head portion, and enforces the row budget.
func (v *Viewer) materializeLocked(b *Bucket, rows []backend.Row) {
	b.state = StateMaterialized
	b.rows = len(rows)
	v.materializedRows += b.rows
	v.renderer.InsertRows(b.Key, rows)

	if b.HeadCount > 0 && len(rows) > 0 {
		head := rows
		if len(head) > b.HeadCount {
			head = head[:b.HeadCount]
		}
		// Tail portions are never cached.
		v.headCache.Add(b.Key, head)
	}

	v.enforceRowBudgetLocked()
}

// OnSentinelExited handles an eviction-observer event: the bucket's sentinel
// left the (much larger) eviction margin.
func (v *Viewer) OnSentinelExited(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if b, ok := v.buckets[key]; ok {
		v.evictLocked(b)
	}
}

// evictLocked removes a bucket's rows and returns it to placeholder state.
// An in-flight fetch for the bucket is cancelled directly.
func (v *Viewer) evictLocked(b *Bucket) {
	switch b.state {
	case StateLoading:
		if b.cancel != nil {
			b.cancel()
			b.cancel = nil
		}
		b.state = StatePlaceholder
		v.renderer.InsertPlaceholder(b.Key, b.TotalCount())
	case StateMaterialized:
		evicted := b.rows
		v.materializedRows -= evicted
		b.rows = 0
		b.state = StatePlaceholder
		v.renderer.EvictRows(b.Key, evicted)
	}
}

// enforceRowBudgetLocked greedily evicts the materialized bucket whose
// sentinel sits farthest from the vertical viewport center until the total
// is back under the cap.
func (v *Viewer) enforceRowBudgetLocked() {
	for v.materializedRows > v.cfg.RowBudget {
		var victim *Bucket
		worst := -1.0
		for _, key := range v.order {
			b := v.buckets[key]
			if b.state != StateMaterialized {
				continue
			}
			d := math.Abs(v.viewport.DistanceFromCenter(key))
			if d > worst {
				worst = d
				victim = b
			}
		}
		if victim == nil {
			return
		}
		v.evictLocked(victim)
	}
}
