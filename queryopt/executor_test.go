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

package queryopt

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
	"github.com/cardinalhq/edgeview/timewindow"
)

type fakeRunner struct {
	executions atomic.Int64
	inFlight   atomic.Int64
	maxSeen    atomic.Int64
	delay      time.Duration
	failFirst  int64 // fail this many executions, then succeed
	err        error
}

func (f *fakeRunner) Execute(ctx context.Context, query string, opts backend.RawOptions) (*backend.NormalizedResult, error) {
	n := f.executions.Add(1)
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxSeen.Load()
		if cur <= max || f.maxSeen.CompareAndSwap(max, cur) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil && (f.failFirst == 0 || n <= f.failFirst) {
		return nil, f.err
	}
	return &backend.NormalizedResult{Rows: []backend.Row{{"query": query}}}, nil
}

func reqFor(query string) QueryRequest {
	end := time.Unix(1700000000, 0).UTC()
	return QueryRequest{
		Query: query,
		Tier:  timewindow.TierFrequent,
		Start: end.Add(-time.Hour),
		End:   end,
		Limit: 100,
	}
}

func TestCacheKey_Deterministic(t *testing.T) {
	a := CacheKey(reqFor("SELECT 1"))
	b := CacheKey(reqFor("SELECT 1"))
	assert.Equal(t, a, b)
}

func TestCacheKey_DistinguishesEveryField(t *testing.T) {
	base := reqFor("SELECT 1")
	seen := map[string]string{"base": CacheKey(base)}

	mutations := map[string]QueryRequest{
		"query": func() QueryRequest { r := base; r.Query = "SELECT 2"; return r }(),
		"tier":  func() QueryRequest { r := base; r.Tier = timewindow.TierArchive; return r }(),
		"start": func() QueryRequest { r := base; r.Start = r.Start.Add(time.Minute); return r }(),
		"end":   func() QueryRequest { r := base; r.End = r.End.Add(time.Minute); return r }(),
		"limit": func() QueryRequest { r := base; r.Limit = 101; return r }(),
	}
	for name, req := range mutations {
		key := CacheKey(req)
		for prev, pk := range seen {
			assert.NotEqual(t, pk, key, "%s must differ from %s", name, prev)
		}
		seen[name] = key
	}
}

func TestExecute_CachesSuccess(t *testing.T) {
	runner := &fakeRunner{}
	e := NewExecutor(runner)
	defer e.Close()

	req := reqFor("SELECT 1")
	_, err := e.Execute(context.Background(), req)
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int64(1), runner.executions.Load())
}

func TestExecute_Dedup(t *testing.T) {
	runner := &fakeRunner{delay: 50 * time.Millisecond}
	e := NewExecutor(runner)
	defer e.Close()

	const n = 10
	var wg sync.WaitGroup
	results := make([][]backend.Row, n)
	errs := make([]error, n)

	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = e.Execute(context.Background(), reqFor("SELECT dedup"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), runner.executions.Load(), "exactly one underlying execution")
	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
}

func TestExecute_CacheCapacityOption(t *testing.T) {
	runner := &fakeRunner{}
	e := NewExecutor(runner, WithCacheCapacity(1))
	defer e.Close()

	a := reqFor("SELECT a")
	b := reqFor("SELECT b")

	_, err := e.Execute(context.Background(), a)
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), b) // evicts a
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), a)
	require.NoError(t, err)

	assert.Equal(t, int64(3), runner.executions.Load())
}

func TestExecute_FailureNotCachedAndRetriable(t *testing.T) {
	runner := &fakeRunner{err: errors.New("transient wobble"), failFirst: 1}
	e := NewExecutor(runner)
	defer e.Close()

	req := reqFor("SELECT flaky")
	_, err := e.Execute(context.Background(), req)
	require.Error(t, err)

	// The pending entry must have been released and the error not cached:
	// the next caller re-executes and succeeds.
	rows, err := e.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, rows)
	assert.Equal(t, int64(2), runner.executions.Load())
}

func TestExecuteBatch_OrderAndConcurrencyLimit(t *testing.T) {
	runner := &fakeRunner{delay: 20 * time.Millisecond}
	e := NewExecutor(runner)
	defer e.Close()

	const m, k = 12, 3
	reqs := make([]QueryRequest, m)
	for i := range m {
		reqs[i] = reqFor(fmt.Sprintf("SELECT %d", i))
	}

	results, err := e.ExecuteBatch(context.Background(), reqs, k)
	require.NoError(t, err)
	require.Len(t, results, m)

	assert.LessOrEqual(t, runner.maxSeen.Load(), int64(k), "max simultaneous in-flight")
	for i, r := range results {
		require.NoError(t, r.Err)
		require.Len(t, r.Rows, 1)
		assert.Equal(t, fmt.Sprintf("SELECT %d", i), r.Rows[0]["query"], "output order must match input order")
	}
}

func TestExecuteBatch_FailureIsolatedToItsSlot(t *testing.T) {
	runner := &fakeRunner{}
	e := NewExecutor(runner)
	defer e.Close()

	// Pre-cache one request, then fail everything else.
	good := reqFor("SELECT good")
	_, err := e.Execute(context.Background(), good)
	require.NoError(t, err)

	runner.err = errors.New("boom")
	bad := reqFor("SELECT bad")

	results, err := e.ExecuteBatch(context.Background(), []QueryRequest{good, bad}, 2)
	require.Error(t, err)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
}

func TestPlanFor(t *testing.T) {
	end := time.Unix(1700000000, 0).UTC()

	p := PlanFor(timewindow.Window{Start: end.Add(-24 * time.Hour), End: end}, 10)
	assert.Equal(t, timewindow.TierFrequent, p.Tier)
	assert.False(t, p.Sample)
	assert.Equal(t, 1.0, p.SampleRate)

	p = PlanFor(timewindow.Window{Start: end.Add(-25 * time.Hour), End: end}, 10)
	assert.Equal(t, timewindow.TierArchive, p.Tier)
	assert.True(t, p.Sample)
	assert.Equal(t, 0.10, p.SampleRate)
}
