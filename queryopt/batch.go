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

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/edgeview/backend"
)

// BatchResult is the outcome of one query in a batch. A failed query carries
// its classified error here; it never fails the whole batch.
type BatchResult struct {
	Rows []backend.Row
	Err  error
}

// ExecuteBatch runs the requests with at most `concurrency` in flight,
// funneling each through the same cache/dedup path as a single query. The
// result slice preserves input order regardless of completion order. The
// returned error aggregates the per-item failures for logging; callers that
// care which query failed should inspect the results.
func (e *Executor) ExecuteBatch(ctx context.Context, reqs []QueryRequest, concurrency int) ([]BatchResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]BatchResult, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, req := range reqs {
		g.Go(func() error {
			rows, err := e.Execute(gctx, req)
			results[i] = BatchResult{Rows: rows, Err: err}
			// Individual failures are reported per slot, not by aborting
			// the group (that would cancel unrelated queries).
			return nil
		})
	}
	_ = g.Wait()

	var merr *multierror.Error
	for _, r := range results {
		if r.Err != nil {
			merr = multierror.Append(merr, r.Err)
		}
	}
	return results, merr.ErrorOrNil()
}
