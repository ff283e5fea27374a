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

import "github.com/cardinalhq/edgeview/backend"

// Renderer is the DOM-mutation half of the viewer. The state machine tells
// it what to do; it owns element creation/removal and observer registration.
type Renderer interface {
	// InsertPlaceholder shows a collapsed placeholder for an unloaded
	// bucket, sized to stand in for rowCount rows, and subscribes it to the
	// load observer.
	InsertPlaceholder(key string, rowCount int)

	// MarkLoading flips the placeholder into its loading presentation.
	MarkLoading(key string)

	// InsertRows replaces the placeholder with a zero-height sentinel
	// (id = key) followed by the data rows, and subscribes the sentinel to
	// the eviction observer.
	InsertRows(key string, rows []backend.Row)

	// EvictRows removes the bucket's data rows and sentinel and reinserts a
	// collapsed placeholder occupying the same height (so the scroll
	// position does not jump), showing the evicted row count, re-subscribed
	// to the load observer.
	EvictRows(key string, rowCount int)
}

// Viewport supplies the geometry the eviction policy needs. Distances are
// measured from the bucket's sentinel to the vertical viewport center, in
// pixels; sign does not matter to the policy.
type Viewport interface {
	DistanceFromCenter(key string) float64
}
