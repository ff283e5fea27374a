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

// Package timewindow maps dashboard time selections to backend storage
// tiers, sampling rates, bucket granularities and cache lifetimes.
package timewindow

import "time"

// Tier is the backend storage/latency class a query runs against.
type Tier string

const (
	// TierFrequent is the low-latency tier holding recent data.
	TierFrequent Tier = "frequent"
	// TierArchive is the cold tier for anything older than a day.
	TierArchive Tier = "archive"
)

// frequentSearchMax is the longest span the low-latency tier serves.
const frequentSearchMax = 24 * time.Hour

// minCustomSpan is the smallest custom window the dashboard accepts.
const minCustomSpan = 3 * time.Minute

// Window is a resolved query time window.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Span() time.Duration { return w.End.Sub(w.Start) }

// Range describes one named relative range and its fixed presentation and
// caching parameters.
type Range struct {
	Name         string
	Span         time.Duration
	Bucket       time.Duration // time-series bucket granularity
	FillInterval time.Duration // zero-fill step for sparse series
	TTL          time.Duration // response cache lifetime
}

// ranges is the fixed ordered set of relative ranges the UI offers.
var ranges = []Range{
	{Name: "15m", Span: 15 * time.Minute, Bucket: 10 * time.Second, FillInterval: 10 * time.Second, TTL: time.Minute},
	{Name: "1h", Span: time.Hour, Bucket: time.Minute, FillInterval: time.Minute, TTL: time.Minute},
	{Name: "12h", Span: 12 * time.Hour, Bucket: 5 * time.Minute, FillInterval: 5 * time.Minute, TTL: 5 * time.Minute},
	{Name: "24h", Span: 24 * time.Hour, Bucket: 10 * time.Minute, FillInterval: 10 * time.Minute, TTL: 15 * time.Minute},
	{Name: "7d", Span: 7 * 24 * time.Hour, Bucket: time.Hour, FillInterval: time.Hour, TTL: time.Hour},
	{Name: "30d", Span: 30 * 24 * time.Hour, Bucket: 4 * time.Hour, FillInterval: 4 * time.Hour, TTL: time.Hour},
}

// Ranges returns the relative-range catalog in UI order.
func Ranges() []Range {
	out := make([]Range, len(ranges))
	copy(out, ranges)
	return out
}

// Named resolves a named relative range against now.
func Named(name string, now time.Time) (Window, Range, bool) {
	for _, r := range ranges {
		if r.Name == name {
			return Window{Start: now.Add(-r.Span), End: now}, r, true
		}
	}
	return Window{}, Range{}, false
}

// Custom builds a window from explicit bounds, clamped to the minimum span
// and rounded to whole minutes.
func Custom(start, end time.Time) Window {
	start = start.Truncate(time.Minute)
	end = end.Truncate(time.Minute)
	if end.Sub(start) < minCustomSpan {
		end = start.Add(minCustomSpan)
	}
	return Window{Start: start, End: end}
}

// TierFor selects the storage tier: windows up to and including 24h stay on
// the frequent-search tier, anything longer goes to the archive.
func TierFor(w Window) Tier {
	if w.Span() <= frequentSearchMax {
		return TierFrequent
	}
	return TierArchive
}

// SampleRate is a monotonically non-increasing step function of window
// length. 1.0 means no sampling.
func SampleRate(w Window) float64 {
	span := w.Span()
	switch {
	case span <= frequentSearchMax:
		return 1.0
	case span <= 7*24*time.Hour:
		return 0.10
	case span <= 30*24*time.Hour:
		return 0.05
	default:
		return 0.01
	}
}

// ShouldSample reports whether sampling is enabled: windows over 24h always
// sample, shorter windows sample only when the estimated result cardinality
// is large.
func ShouldSample(w Window, estimatedCardinality int) bool {
	return w.Span() > frequentSearchMax || estimatedCardinality > 1000
}

// CacheTTL returns the response-cache lifetime for a window. Short windows
// reflect "now" and expire quickly.
func CacheTTL(w Window) time.Duration {
	span := w.Span()
	switch {
	case span <= time.Hour:
		return time.Minute
	case span <= 12*time.Hour:
		return 5 * time.Minute
	case span <= 24*time.Hour:
		return 15 * time.Minute
	default:
		return time.Hour
	}
}

// BucketFor returns the time-series bucket granularity for a window,
// matching the named-range catalog when the span lines up and scaling
// stepwise otherwise.
func BucketFor(w Window) time.Duration {
	span := w.Span()
	for _, r := range ranges {
		if span <= r.Span {
			return r.Bucket
		}
	}
	return ranges[len(ranges)-1].Bucket
}
