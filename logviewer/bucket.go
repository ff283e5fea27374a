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

// Package logviewer drives the virtualized, incrementally-loaded log table:
// per-time-bucket lazy fetches on viewport intersection, a hard budget on
// materialized rows, and eviction of off-screen buckets. Decisions live
// here; DOM mutation is behind the Renderer interface so the state machine
// runs headless in tests.
package logviewer

import (
	"context"
	"time"
)

// BucketState is the lifecycle of one time-sliced group of log rows.
type BucketState int

const (
	// StatePlaceholder: a collapsed row standing in for unfetched data.
	StatePlaceholder BucketState = iota
	// StateLoading: the placeholder intersected the viewport and a fetch is
	// in flight. A bucket leaves Placeholder before its fetch is issued, so
	// there is never more than one in-flight fetch per bucket.
	StateLoading
	// StateMaterialized: data rows (and the sentinel) are in the container.
	StateMaterialized
)

func (s BucketState) String() string {
	switch s {
	case StatePlaceholder:
		return "placeholder"
	case StateLoading:
		return "loading"
	case StateMaterialized:
		return "materialized"
	default:
		return "unknown"
	}
}

// Bucket is one contiguous time slice of log rows rendered as a lazy unit.
type Bucket struct {
	Key   string // timestamp key, also the sentinel id
	Start time.Time
	End   time.Time

	// HeadCount/TailCount describe the split the viewer caches: only the
	// head portion is ever kept in the LRU after eviction.
	HeadCount int
	TailCount int

	state BucketState
	rows  int // materialized row count

	// cancel aborts this bucket's in-flight fetch; nil outside Loading.
	cancel context.CancelFunc
}

func (b *Bucket) State() BucketState { return b.state }

// RowCount returns the currently materialized row count (0 unless
// materialized).
func (b *Bucket) RowCount() int { return b.rows }

// TotalCount is the full row count of the bucket's slice.
func (b *Bucket) TotalCount() int { return b.HeadCount + b.TailCount }
