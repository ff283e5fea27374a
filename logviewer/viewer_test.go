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
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/edgeview/backend"
)

type renderCall struct {
	op       string
	key      string
	rowCount int
}

type fakeRenderer struct {
	mu    sync.Mutex
	calls []renderCall
}

func (r *fakeRenderer) record(op, key string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, renderCall{op: op, key: key, rowCount: n})
}

func (r *fakeRenderer) InsertPlaceholder(key string, n int)          { r.record("placeholder", key, n) }
func (r *fakeRenderer) MarkLoading(key string)                       { r.record("loading", key, 0) }
func (r *fakeRenderer) InsertRows(key string, rows []backend.Row)    { r.record("rows", key, len(rows)) }
func (r *fakeRenderer) EvictRows(key string, n int)                  { r.record("evict", key, n) }

func (r *fakeRenderer) ops(op string) []renderCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []renderCall
	for _, c := range r.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

type fakeViewport struct {
	mu        sync.Mutex
	distances map[string]float64
}

func (v *fakeViewport) set(key string, d float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.distances == nil {
		v.distances = map[string]float64{}
	}
	v.distances[key] = d
}

func (v *fakeViewport) DistanceFromCenter(key string) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.distances[key]
}

func makeRows(n int) []backend.Row {
	rows := make([]backend.Row, n)
	for i := range n {
		rows[i] = backend.Row{"i": int64(i)}
	}
	return rows
}

func bucketOf(key string, head, tail int) *Bucket {
	return &Bucket{
		Key:       key,
		Start:     time.Unix(1700000000, 0),
		End:       time.Unix(1700000060, 0),
		HeadCount: head,
		TailCount: tail,
	}
}

func newTestViewer(t *testing.T, cfg Config, fetch FetchFunc) (*Viewer, *fakeRenderer, *fakeViewport) {
	t.Helper()
	r := &fakeRenderer{}
	vp := &fakeViewport{}
	v, err := NewViewer(context.Background(), cfg, r, vp, fetch)
	require.NoError(t, err)
	t.Cleanup(v.Close)
	return v, r, vp
}

func TestViewer_LazyFetchOnVisible(t *testing.T) {
	var fetches atomic.Int64
	v, r, _ := newTestViewer(t, DefaultConfig(), func(ctx context.Context, b *Bucket) ([]backend.Row, error) {
		fetches.Add(1)
		return makeRows(5), nil
	})

	v.AddBucket(bucketOf("b1", 3, 2))
	require.Equal(t, StatePlaceholder, v.Bucket("b1").State())
	assert.Zero(t, fetches.Load(), "no fetch before intersection")

	v.OnBucketVisible("b1")
	v.wg.Wait()

	assert.Equal(t, int64(1), fetches.Load())
	assert.Equal(t, StateMaterialized, v.Bucket("b1").State())
	assert.Equal(t, 5, v.MaterializedRows())
	require.Len(t, r.ops("rows"), 1)
	assert.Equal(t, 5, r.ops("rows")[0].rowCount)
}

func TestViewer_DuplicateIntersectionSingleFetch(t *testing.T) {
	var fetches atomic.Int64
	release := make(chan struct{})
	v, _, _ := newTestViewer(t, DefaultConfig(), func(ctx context.Context, b *Bucket) ([]backend.Row, error) {
		fetches.Add(1)
		<-release
		return makeRows(1), nil
	})

	v.AddBucket(bucketOf("b1", 1, 0))
	v.OnBucketVisible("b1")
	v.OnBucketVisible("b1") // observer fired again while loading
	v.OnBucketVisible("b1")
	close(release)
	v.wg.Wait()

	assert.Equal(t, int64(1), fetches.Load(), "at most one in-flight fetch per bucket")
}

func TestViewer_FailedFetchLeavesPlaceholder(t *testing.T) {
	v, r, _ := newTestViewer(t, DefaultConfig(), func(ctx context.Context, b *Bucket) ([]backend.Row, error) {
		return nil, errors.New("backend sad")
	})

	v.AddBucket(bucketOf("b1", 3, 2))
	v.OnBucketVisible("b1")
	v.wg.Wait()

	assert.Equal(t, StatePlaceholder, v.Bucket("b1").State())
	assert.Zero(t, v.MaterializedRows())
	assert.Empty(t, r.ops("rows"), "no partial insertion")
	// Initial placeholder plus the degraded re-render.
	assert.Len(t, r.ops("placeholder"), 2)
}

func TestViewer_EvictionReturnsToPlaceholderWithCount(t *testing.T) {
	v, r, _ := newTestViewer(t, DefaultConfig(), func(ctx context.Context, b *Bucket) ([]backend.Row, error) {
		return makeRows(7), nil
	})

	v.AddBucket(bucketOf("b1", 5, 2))
	v.OnBucketVisible("b1")
	v.wg.Wait()
	require.Equal(t, 7, v.MaterializedRows())

	v.OnSentinelExited("b1")
	assert.Equal(t, StatePlaceholder, v.Bucket("b1").State())
	assert.Zero(t, v.MaterializedRows())
	evicts := r.ops("evict")
	require.Len(t, evicts, 1)
	assert.Equal(t, 7, evicts[0].rowCount, "collapsed placeholder shows evicted row count")
}

func TestViewer_RowBudgetEvictsFarthestFromCenter(t *testing.T) {
	cfg := Config{RowBudget: 25, HeadCacheSize: 10, FetchConcurrency: 2}
	v, _, vp := newTestViewer(t, cfg, func(ctx context.Context, b *Bucket) ([]backend.Row, error) {
		return makeRows(10), nil
	})

	for i, dist := range []float64{5000, 40, 10} {
		key := fmt.Sprintf("b%d", i)
		v.AddBucket(bucketOf(key, 5, 5))
		vp.set(key, dist)
		v.OnBucketVisible(key)
		v.wg.Wait()
	}

	// 30 rows materialized against a budget of 25: the farthest bucket (b0)
	// must go first; the closest (b2) must survive.
	assert.LessOrEqual(t, v.MaterializedRows(), 25)
	assert.Equal(t, StatePlaceholder, v.Bucket("b0").State())
	assert.Equal(t, StateMaterialized, v.Bucket("b2").State())
}

func TestViewer_HeadCacheRestoresWithoutFetch(t *testing.T) {
	var fetches atomic.Int64
	v, _, _ := newTestViewer(t, DefaultConfig(), func(ctx context.Context, b *Bucket) ([]backend.Row, error) {
		fetches.Add(1)
		return makeRows(8), nil
	})

	v.AddBucket(bucketOf("b1", 5, 3))
	v.OnBucketVisible("b1")
	v.wg.Wait()
	require.Equal(t, int64(1), fetches.Load())

	v.OnSentinelExited("b1")
	v.OnBucketVisible("b1")
	v.wg.Wait()

	assert.Equal(t, int64(1), fetches.Load(), "restored from head cache, no network")
	assert.Equal(t, StateMaterialized, v.Bucket("b1").State())
	// Only the head portion came back.
	assert.Equal(t, 5, v.MaterializedRows())
}

func TestViewer_CloseCancelsOutstandingFetches(t *testing.T) {
	const n = 6
	started := make(chan struct{}, n)
	cancelled := make([]atomic.Bool, n)

	r := &fakeRenderer{}
	vp := &fakeViewport{}
	v, err := NewViewer(context.Background(), Config{RowBudget: 100, HeadCacheSize: 4, FetchConcurrency: n},
		r, vp, func(ctx context.Context, b *Bucket) ([]backend.Row, error) {
			started <- struct{}{}
			<-ctx.Done()
			var idx int
			fmt.Sscanf(b.Key, "b%d", &idx)
			cancelled[idx].Store(true)
			return nil, ctx.Err()
		})
	require.NoError(t, err)

	for i := range n {
		v.AddBucket(bucketOf(fmt.Sprintf("b%d", i), 2, 0))
		v.OnBucketVisible(fmt.Sprintf("b%d", i))
	}
	for range n {
		<-started
	}

	v.Close()
	for i := range n {
		assert.True(t, cancelled[i].Load(), "fetch %d must observe cancellation", i)
	}
}

func TestViewer_EvictWhileLoadingCancelsFetch(t *testing.T) {
	started := make(chan struct{})
	var sawCancel atomic.Bool
	v, _, _ := newTestViewer(t, DefaultConfig(), func(ctx context.Context, b *Bucket) ([]backend.Row, error) {
		close(started)
		<-ctx.Done()
		sawCancel.Store(true)
		return nil, ctx.Err()
	})

	v.AddBucket(bucketOf("b1", 2, 0))
	v.OnBucketVisible("b1")
	<-started

	v.OnSentinelExited("b1")
	v.wg.Wait()

	assert.True(t, sawCancel.Load())
	assert.Equal(t, StatePlaceholder, v.Bucket("b1").State())
	assert.Zero(t, v.MaterializedRows(), "cancelled fetch must not materialize")
}

func TestViewer_SharedConcurrencyLimiter(t *testing.T) {
	var inFlight, maxSeen atomic.Int64
	v, _, _ := newTestViewer(t, Config{RowBudget: 1000, HeadCacheSize: 4, FetchConcurrency: 2},
		func(ctx context.Context, b *Bucket) ([]backend.Row, error) {
			cur := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				max := maxSeen.Load()
				if cur <= max || maxSeen.CompareAndSwap(max, cur) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			return makeRows(1), nil
		})

	for i := range 8 {
		key := fmt.Sprintf("b%d", i)
		v.AddBucket(bucketOf(key, 1, 0))
		v.OnBucketVisible(key)
	}
	v.wg.Wait()

	assert.LessOrEqual(t, maxSeen.Load(), int64(2))
	assert.Equal(t, 8, v.MaterializedRows())
}
