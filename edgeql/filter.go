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
	"regexp"
	"strings"
)

// Filter is one abstract filter condition as the dashboard state holds it.
// Column/Value are what the UI displays; FilterColumn/FilterValue, when set,
// override them for the actual predicate (derived columns filter on their
// underlying field while displaying the derived label).
type Filter struct {
	Column   string
	Value    any
	Exclude  bool
	Operator string // "", "=", "LIKE", "contains", "startsWith", ">", "<", ">=", "<=", "in"

	FilterColumn string
	FilterValue  any

	// Values carries the list for the "in" operator.
	Values []string
}

// columnGrammar is the allow-listed identifier shape: an optionally
// backtick-quoted dotted path, or one of the expression wrappers the parser
// understands. Anything else is dropped before it can reach a query string.
var columnGrammar = regexp.MustCompile("^`?[A-Za-z_][A-Za-z0-9_.]*`?$")

var knownWrappers = []string{"toString(", "upper(", "REGEXP_REPLACE(", "if(", "multiIf(", "concat("}

// ValidFilter reports whether the filter's predicate column passes the
// identifier grammar. Invalid filters never reach a query builder.
func ValidFilter(f Filter) bool {
	col := f.Column
	if f.FilterColumn != "" {
		col = f.FilterColumn
	}
	if columnGrammar.MatchString(col) {
		return true
	}
	for _, w := range knownWrappers {
		if strings.HasPrefix(col, w) {
			return true
		}
	}
	return false
}

// BuildFilterClause renders an ordered filter list as one boolean expression
// in the target dialect. Empty input yields the empty string. A single
// filter renders as its bare term; only when multiple terms are AND-joined
// is each parenthesized, so operator precedence in either dialect cannot
// regroup them.
func BuildFilterClause(filters []Filter, d Dialect) (string, error) {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		if !ValidFilter(f) {
			continue
		}
		term, err := buildFilterTerm(f, d)
		if err != nil {
			return "", err
		}
		if term == "" {
			continue
		}
		parts = append(parts, term)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	for i, p := range parts {
		parts[i] = "(" + p + ")"
	}
	return strings.Join(parts, " AND "), nil
}

func buildFilterTerm(f Filter, d Dialect) (string, error) {
	col := f.Column
	if f.FilterColumn != "" {
		col = f.FilterColumn
	}
	val := f.Value
	if f.FilterValue != nil {
		val = f.FilterValue
	}

	path, err := TranslateRaw(col, d)
	if err != nil {
		return "", err
	}

	op := f.Operator
	if op == "" {
		op = "="
	}

	switch op {
	case "in":
		return buildMembership(path, f, d)

	case "LIKE":
		// LIKE only ever arrives with % wildcards around a literal; strip
		// them and use the dialect's substring predicate.
		needle := strings.Trim(asString(val), "%")
		return d.Contains(path, needle, f.Exclude), nil

	case "contains":
		return d.Contains(path, asString(val), f.Exclude), nil

	case "startsWith":
		expr := d.StartsWith(path, asString(val))
		if f.Exclude {
			return d.Negate(expr), nil
		}
		return expr, nil

	case ">", "<", ">=", "<=":
		return d.Compare(path, op, d.Quote(val)), nil

	case "=":
		s, isStr := val.(string)
		if isStr && s == "" {
			// An empty display value means "no value": compare against null
			// so the predicate stays correct after expression rewrites that
			// would never produce a literal empty string.
			return d.NullCompare(path, f.Exclude), nil
		}
		if f.Exclude {
			return d.Compare(path, "!=", d.Quote(val)), nil
		}
		return d.Compare(path, "=", d.Quote(val)), nil

	default:
		return "", fmt.Errorf("edgeql: unsupported filter operator %q", op)
	}
}

func buildMembership(path string, f Filter, d Dialect) (string, error) {
	values := f.Values
	if len(values) == 0 {
		values = []string{asString(f.Value)}
	}

	// Single-element lists degrade to plain (in)equality.
	if len(values) == 1 {
		if f.Exclude {
			return d.Compare(path, "!=", d.Quote(values[0])), nil
		}
		return d.Compare(path, "=", d.Quote(values[0])), nil
	}

	if !f.Exclude {
		return d.Membership(path, values), nil
	}
	if d.SupportsNegatedMembership() {
		return d.NegatedMembership(path, values), nil
	}

	// Dialect limitation: no safe NOT-IN, so exclusion expands to a
	// conjunction of per-value inequalities. A third dialect should be
	// checked for a native negated-membership operator before inheriting
	// this expansion.
	terms := make([]string, len(values))
	for i, v := range values {
		terms[i] = "(" + d.Compare(path, "!=", d.Quote(v)) + ")"
	}
	return strings.Join(terms, " AND "), nil
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
