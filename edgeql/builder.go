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
	"fmt"
	"strings"
	"time"
)

// Order is an ordering override for breakdown queries. The zero value means
// the default: total count, descending.
type Order struct {
	Field string
	Asc   bool
}

func (o Order) field() string {
	if o.Field == "" {
		return "count"
	}
	return o.Field
}

func (o Order) dir() string {
	if o.Asc {
		return "ASC"
	}
	return "DESC"
}

// FacetDef names one facet of a multi-facet breakdown. ID tags the facet's
// result set so the caller can demultiplex the combined response.
type FacetDef struct {
	ID     string
	Column string
}

// QuerySpec carries everything shared by the four query shapes: the source
// table/dataset, the time bounds, and the filter state in its fixed order
// (host filter first, then facet filters, then any extra raw clause).
type QuerySpec struct {
	Source     string
	Start, End time.Time

	Host     string   // host filter value; empty means unfiltered
	Filters  []Filter // facet filter selections
	ExtraRaw string   // pre-rendered extra filter clause, appended verbatim
}

// Builder renders the four dashboard query shapes for one dialect. Both
// implementations compose the same Translate/BuildFilterClause primitives,
// so field references cannot drift between the filter and grouping paths.
type Builder interface {
	Dialect() Dialect
	TimeSeries(spec QuerySpec, bucket time.Duration) (string, error)
	Breakdown(spec QuerySpec, facet string, limit int, order Order) (string, error)
	MultiBreakdown(spec QuerySpec, facets []FacetDef, perFacetLimit int) (string, error)
	RawLogs(spec QuerySpec, offset, limit int) (string, error)
}

// NewBuilder returns the query builder for the given dialect.
func NewBuilder(d Dialect) Builder {
	switch d.Name() {
	case "scanql":
		return &scanBuilder{d: d}
	default:
		return &sqlBuilder{d: d}
	}
}

// filtersExcludingFacet drops filters whose display column equals the facet
// being broken down, so a facet's counts are never constrained by its own
// current selection.
func filtersExcludingFacet(filters []Filter, facet string) []Filter {
	out := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if stripBackticks(f.Column) == stripBackticks(facet) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// specFilters assembles the ordered filter list for a spec: host filter,
// then facet filters.
func specFilters(spec QuerySpec, excludeFacet string) []Filter {
	var fs []Filter
	if spec.Host != "" {
		fs = append(fs, Filter{Column: "`request.host`", Value: spec.Host})
	}
	facetFilters := spec.Filters
	if excludeFacet != "" {
		facetFilters = filtersExcludingFacet(facetFilters, excludeFacet)
	}
	return append(fs, facetFilters...)
}

// ----------------------------------------------------------------------
// ClickSQL shapes
// ----------------------------------------------------------------------

type sqlBuilder struct {
	d Dialect
}

func (b *sqlBuilder) Dialect() Dialect { return b.d }

func (b *sqlBuilder) whereClause(spec QuerySpec, excludeFacet string) (string, error) {
	conds := []string{fmt.Sprintf("`timestamp` >= toDateTime(%d) AND `timestamp` <= toDateTime(%d)",
		spec.Start.Unix(), spec.End.Unix())}

	clause, err := BuildFilterClause(specFilters(spec, excludeFacet), b.d)
	if err != nil {
		return "", err
	}
	if clause != "" {
		conds = append(conds, clause)
	}
	if spec.ExtraRaw != "" {
		conds = append(conds, "("+spec.ExtraRaw+")")
	}
	return " WHERE " + strings.Join(conds, " AND "), nil
}

// statusAggs renders the per-status-class count aggregates shared by the
// time-series and breakdown shapes.
func (b *sqlBuilder) statusAggs() string {
	cls := Translate(Expr{Kind: KindStatusClass}, b.d)
	return fmt.Sprintf("count() AS count, countIf(%s = '2xx') AS ok, countIf(%s = '4xx') AS `4xx`, countIf(%s = '5xx') AS `5xx`",
		cls, cls, cls)
}

func (b *sqlBuilder) TimeSeries(spec QuerySpec, bucket time.Duration) (string, error) {
	where, err := b.whereClause(spec, "")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT toStartOfInterval(`timestamp`, INTERVAL %d SECOND) AS t, %s FROM %s%s GROUP BY t ORDER BY t ASC",
		int(bucket.Seconds()), b.statusAggs(), spec.Source, where), nil
}

func (b *sqlBuilder) Breakdown(spec QuerySpec, facet string, limit int, order Order) (string, error) {
	dim, err := TranslateRaw(facet, b.d)
	if err != nil {
		return "", err
	}
	where, err := b.whereClause(spec, facet)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT %s AS dim, %s FROM %s%s GROUP BY dim ORDER BY %s %s LIMIT %d",
		dim, b.statusAggs(), spec.Source, where, quoteAggField(order.field()), order.dir(), limit), nil
}

func (b *sqlBuilder) MultiBreakdown(spec QuerySpec, facets []FacetDef, perFacetLimit int) (string, error) {
	subs := make([]string, 0, len(facets))
	for _, fd := range facets {
		dim, err := TranslateRaw(fd.Column, b.d)
		if err != nil {
			return "", err
		}
		where, err := b.whereClause(spec, fd.Column)
		if err != nil {
			return "", err
		}
		subs = append(subs, fmt.Sprintf("(SELECT %s AS facet, %s AS dim, count() AS count FROM %s%s GROUP BY dim ORDER BY count DESC LIMIT %d)",
			b.d.Quote(fd.ID), dim, spec.Source, where, perFacetLimit))
	}
	return strings.Join(subs, " UNION ALL "), nil
}

func (b *sqlBuilder) RawLogs(spec QuerySpec, offset, limit int) (string, error) {
	where, err := b.whereClause(spec, "")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT * FROM %s%s ORDER BY `timestamp` DESC LIMIT %d OFFSET %d",
		spec.Source, where, limit, offset), nil
}

// quoteAggField backtick-quotes aggregate aliases that are not plain
// identifiers (the 4xx/5xx aliases start with a digit).
func quoteAggField(name string) string {
	if name == "" {
		return "count"
	}
	if name[0] >= '0' && name[0] <= '9' {
		return "`" + name + "`"
	}
	return name
}

// ----------------------------------------------------------------------
// ScanQL shapes
// ----------------------------------------------------------------------

type scanBuilder struct {
	d Dialect
}

func (b *scanBuilder) Dialect() Dialect { return b.d }

func (b *scanBuilder) head(spec QuerySpec, excludeFacet string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "dataset(%s)", b.d.Quote(spec.Source))
	fmt.Fprintf(&sb, " | where($m.timestamp >= %d AND $m.timestamp <= %d)",
		spec.Start.UnixMilli(), spec.End.UnixMilli())

	clause, err := BuildFilterClause(specFilters(spec, excludeFacet), b.d)
	if err != nil {
		return "", err
	}
	if clause != "" {
		fmt.Fprintf(&sb, " | where(%s)", clause)
	}
	if spec.ExtraRaw != "" {
		fmt.Fprintf(&sb, " | where(%s)", spec.ExtraRaw)
	}
	return sb.String(), nil
}

func (b *scanBuilder) statusAggs() string {
	cls := Translate(Expr{Kind: KindStatusClass}, b.d)
	return fmt.Sprintf("count() as count, countif(%s == '2xx') as ok, countif(%s == '4xx') as 4xx, countif(%s == '5xx') as 5xx",
		cls, cls, cls)
}

func (b *scanBuilder) TimeSeries(spec QuerySpec, bucket time.Duration) (string, error) {
	head, err := b.head(spec, "")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s | timeslice(%ds) | stats(%s) by _timeslice",
		head, int(bucket.Seconds()), b.statusAggs()), nil
}

func (b *scanBuilder) Breakdown(spec QuerySpec, facet string, limit int, order Order) (string, error) {
	dim, err := TranslateRaw(facet, b.d)
	if err != nil {
		return "", err
	}
	head, err := b.head(spec, facet)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s | groupby(%s as dim) | stats(%s) | sort(%s %s) | limit(%d)",
		head, dim, b.statusAggs(), order.field(), strings.ToLower(order.dir()), limit), nil
}

func (b *scanBuilder) MultiBreakdown(spec QuerySpec, facets []FacetDef, perFacetLimit int) (string, error) {
	subs := make([]string, 0, len(facets))
	for _, fd := range facets {
		dim, err := TranslateRaw(fd.Column, b.d)
		if err != nil {
			return "", err
		}
		head, err := b.head(spec, fd.Column)
		if err != nil {
			return "", err
		}
		subs = append(subs, fmt.Sprintf("%s: %s | groupby(%s as dim) | stats(count() as count) | sort(count desc) | limit(%d)",
			fd.ID, head, dim, perFacetLimit))
	}
	return "facets(" + strings.Join(subs, "; ") + ")", nil
}

func (b *scanBuilder) RawLogs(spec QuerySpec, offset, limit int) (string, error) {
	head, err := b.head(spec, "")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s | sort($m.timestamp desc) | offset(%d) | limit(%d)", head, offset, limit), nil
}
