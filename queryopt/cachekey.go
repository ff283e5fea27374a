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

// Package queryopt owns the query execution path between the builders and
// the backend adapter: tier and sampling decisions, the TTL response cache,
// in-flight request deduplication, and bounded-concurrency batch execution.
package queryopt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/cardinalhq/edgeview/timewindow"
)

// QueryRequest identifies one logical query for caching and deduplication.
type QueryRequest struct {
	Query string
	Tier  timewindow.Tier
	Start time.Time
	End   time.Time
	Limit int
}

// keyEnvelope is the serialized identity of a request. Field order is fixed
// by the struct definition, so encoding/json renders equal inputs to equal
// bytes with no map-ordering hazard. A format version is embedded so stale
// persisted entries from older builds never collide.
type keyEnvelope struct {
	V     int    `json:"v"`
	Query string `json:"query"`
	Tier  string `json:"tier"`
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Limit int    `json:"limit"`
}

const keyFormatVersion = 2

// CacheKey deterministically serializes the request identity and hashes it.
// Equal inputs always produce identical keys.
func CacheKey(req QueryRequest) string {
	env := keyEnvelope{
		V:     keyFormatVersion,
		Query: req.Query,
		Tier:  string(req.Tier),
		Start: req.Start.UnixMilli(),
		End:   req.End.UnixMilli(),
		Limit: req.Limit,
	}
	buf, err := json.Marshal(env)
	if err != nil {
		// Marshalling a flat struct of scalars cannot fail; keep the
		// fallback deterministic anyway.
		buf = []byte(fmt.Sprintf("%d|%s|%s|%d|%d|%d",
			env.V, env.Query, env.Tier, env.Start, env.End, env.Limit))
	}
	return fmt.Sprintf("q%d-%016x", keyFormatVersion, xxhash.Sum64(buf))
}
