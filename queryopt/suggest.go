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
	"time"

	"github.com/cardinalhq/edgeview/edgeql"
	"github.com/cardinalhq/edgeview/internal/kvstate"
	"github.com/cardinalhq/edgeview/timewindow"
)

// suggestVersion is embedded in persisted suggestion blobs; bump on any
// change to the stored shape.
const suggestVersion = 1

// suggestTTL bounds how long persisted suggestions stay usable.
const suggestTTL = 10 * time.Minute

const suggestLimit = 25

// Suggest returns autocomplete values for a facet, optionally constrained to
// a prefix. It reuses the single-breakdown shape plus a startsWith filter,
// runs through the normal cache/dedup path, and additionally persists the
// value list in the collaborator store so a reopened picker paints without
// a round-trip.
func (e *Executor) Suggest(ctx context.Context, b edgeql.Builder, spec edgeql.QuerySpec, facet, prefix string, store kvstate.Store) ([]string, error) {
	if prefix != "" {
		// Set via FilterColumn: the breakdown builder drops filters whose
		// display column equals the facet being broken down, and the prefix
		// constraint must survive that rule.
		spec.Filters = append(spec.Filters, edgeql.Filter{
			FilterColumn: facet,
			FilterValue:  prefix,
			Operator:     "startsWith",
		})
	}

	query, err := b.Breakdown(spec, facet, suggestLimit, edgeql.Order{})
	if err != nil {
		return nil, err
	}

	req := QueryRequest{
		Query: query,
		Tier:  timewindow.TierFor(timewindow.Window{Start: spec.Start, End: spec.End}),
		Start: spec.Start,
		End:   spec.End,
		Limit: suggestLimit,
	}

	storeKey := "suggest:" + CacheKey(req)
	if store != nil {
		if vals, ok := kvstate.Load[[]string](store, storeKey, suggestVersion, suggestTTL, time.Now()); ok {
			return vals, nil
		}
	}

	rows, err := e.Execute(ctx, req)
	if err != nil {
		return nil, err
	}

	values := make([]string, 0, len(rows))
	for _, row := range rows {
		if dim, ok := row["dim"].(string); ok && dim != "" {
			values = append(values, dim)
		}
	}

	if store != nil {
		_ = kvstate.Save(store, storeKey, suggestVersion, values, time.Now())
	}
	return values, nil
}
