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

package edgeql

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpec() QuerySpec {
	return QuerySpec{
		Source: "requests",
		Start:  time.Unix(1700000000, 0).UTC(),
		End:    time.Unix(1700003600, 0).UTC(),
		Host:   "example.com",
		Filters: []Filter{
			{Column: "`request.method`", Value: "GET"},
		},
	}
}

func TestTimeSeries_ClickSQL(t *testing.T) {
	b := NewBuilder(ClickSQL())
	q, err := b.TimeSeries(testSpec(), time.Minute)
	require.NoError(t, err)

	assert.Contains(t, q, "toStartOfInterval(`timestamp`, INTERVAL 60 SECOND) AS t")
	assert.Contains(t, q, "`timestamp` >= toDateTime(1700000000) AND `timestamp` <= toDateTime(1700003600)")
	assert.Contains(t, q, "(`request.host` = 'example.com') AND (`request.method` = 'GET')")
	assert.Contains(t, q, "count() AS count")
	assert.Contains(t, q, "countIf(concat(toString(intDiv(`status`, 100)), 'xx') = '4xx') AS `4xx`")
	assert.True(t, strings.HasSuffix(q, "GROUP BY t ORDER BY t ASC"))
}

func TestTimeSeries_ScanQL(t *testing.T) {
	b := NewBuilder(ScanQL())
	q, err := b.TimeSeries(testSpec(), time.Minute)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(q, "dataset('requests')"))
	assert.Contains(t, q, "where($m.timestamp >= 1700000000000 AND $m.timestamp <= 1700003600000)")
	assert.Contains(t, q, "where(($l.request.host == 'example.com') AND ($d.request.method == 'GET'))")
	assert.Contains(t, q, "timeslice(60s)")
	assert.Contains(t, q, "by _timeslice")
}

func TestBreakdown_FacetSelfExclusion(t *testing.T) {
	spec := testSpec()
	spec.Filters = append(spec.Filters, Filter{Column: "`geo.country`", Value: "NL"})

	b := NewBuilder(ClickSQL())
	q, err := b.Breakdown(spec, "`geo.country`", 10, Order{})
	require.NoError(t, err)

	// The facet's own selection must not constrain its breakdown...
	assert.NotContains(t, q, "`geo.country` = 'NL'")
	// ...but the other filters still apply.
	assert.Contains(t, q, "(`request.method` = 'GET')")
	assert.Contains(t, q, "GROUP BY dim ORDER BY count DESC LIMIT 10")
}

func TestBreakdown_OrderOverride(t *testing.T) {
	b := NewBuilder(ClickSQL())
	q, err := b.Breakdown(testSpec(), "`request.host`", 5, Order{Field: "5xx", Asc: true})
	require.NoError(t, err)
	assert.Contains(t, q, "ORDER BY `5xx` ASC LIMIT 5")

	sb := NewBuilder(ScanQL())
	q, err = sb.Breakdown(testSpec(), "`geo.country`", 5, Order{Field: "ok"})
	require.NoError(t, err)
	assert.Contains(t, q, "sort(ok desc)")
	assert.Contains(t, q, "limit(5)")
}

func TestBreakdown_DerivedColumn(t *testing.T) {
	b := NewBuilder(ScanQL())
	q, err := b.Breakdown(testSpec(), "concat(toString(intDiv(`status`, 100)), 'xx')", 10, Order{})
	require.NoError(t, err)
	assert.Contains(t, q, "groupby(concat(tostring(floor($d.status / 100)), 'xx') as dim)")
}

func TestMultiBreakdown_TagsEachFacet(t *testing.T) {
	facets := []FacetDef{
		{ID: "host", Column: "`request.host`"},
		{ID: "country", Column: "`geo.country`"},
	}

	b := NewBuilder(ClickSQL())
	q, err := b.MultiBreakdown(testSpec(), facets, 10)
	require.NoError(t, err)
	assert.Contains(t, q, "SELECT 'host' AS facet")
	assert.Contains(t, q, "SELECT 'country' AS facet")
	assert.Contains(t, q, " UNION ALL ")

	sb := NewBuilder(ScanQL())
	q, err = sb.MultiBreakdown(testSpec(), facets, 10)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(q, "facets(host: "))
	assert.Contains(t, q, "; country: ")
}

func TestMultiBreakdown_PerFacetSelfExclusion(t *testing.T) {
	spec := testSpec()
	spec.Filters = []Filter{{Column: "`geo.country`", Value: "NL"}}

	b := NewBuilder(ClickSQL())
	q, err := b.MultiBreakdown(spec, []FacetDef{
		{ID: "country", Column: "`geo.country`"},
		{ID: "method", Column: "`request.method`"},
	}, 10)
	require.NoError(t, err)

	subs := strings.Split(q, " UNION ALL ")
	require.Len(t, subs, 2)
	assert.NotContains(t, subs[0], "`geo.country` = 'NL'")
	assert.Contains(t, subs[1], "`geo.country` = 'NL'")
}

func TestRawLogs(t *testing.T) {
	b := NewBuilder(ClickSQL())
	q, err := b.RawLogs(testSpec(), 200, 100)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(q, "ORDER BY `timestamp` DESC LIMIT 100 OFFSET 200"))

	sb := NewBuilder(ScanQL())
	q, err = sb.RawLogs(testSpec(), 200, 100)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(q, "sort($m.timestamp desc) | offset(200) | limit(100)"))
}

func TestSingleFilterClauseHasNoOuterParens(t *testing.T) {
	spec := testSpec()
	spec.Filters = nil // only the host filter remains

	sb := NewBuilder(ScanQL())
	q, err := sb.RawLogs(spec, 0, 100)
	require.NoError(t, err)
	assert.Contains(t, q, "| where($l.request.host == 'example.com')")

	b := NewBuilder(ClickSQL())
	q, err = b.RawLogs(spec, 0, 100)
	require.NoError(t, err)
	assert.Contains(t, q, "AND `request.host` = 'example.com' ORDER BY")
}

func TestRawLogs_ExtraRawClauseOrder(t *testing.T) {
	spec := testSpec()
	spec.ExtraRaw = "`response.bytes` > 0"

	b := NewBuilder(ClickSQL())
	q, err := b.RawLogs(spec, 0, 50)
	require.NoError(t, err)

	hostIdx := strings.Index(q, "request.host")
	extraIdx := strings.Index(q, "response.bytes")
	require.GreaterOrEqual(t, hostIdx, 0)
	require.GreaterOrEqual(t, extraIdx, 0)
	assert.Less(t, hostIdx, extraIdx, "host filter must precede the extra raw clause")
}
