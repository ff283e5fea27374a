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
)

// Dialect renders the expression-level primitives of one backend query
// language. Both the filter path and the grouping path go through the same
// Dialect instance, so a field can never translate two different ways
// depending on which code path reached it.
type Dialect interface {
	Name() string

	// FieldPath renders a dotted column name in the dialect's native field
	// syntax (namespace sigil or quoted identifier).
	FieldPath(field string) string

	// Quote renders a literal value.
	Quote(v any) string

	// Compare renders `col op value` with dialect-native operators. op is
	// one of =, !=, <, >, <=, >=.
	Compare(col, op, value string) string

	// NullCompare renders an is-null (or, when exclude, is-not-null) test.
	NullCompare(col string, exclude bool) string

	// Contains renders a substring match (negated when exclude).
	Contains(col, needle string, exclude bool) string

	// Negate wraps an already-rendered boolean expression in the dialect's
	// negation form.
	Negate(expr string) string

	// StartsWith renders a prefix match.
	StartsWith(col, prefix string) string

	// Membership renders value-list inclusion. Callers must check
	// SupportsNegatedMembership before asking for an excluded membership.
	Membership(col string, values []string) string

	// SupportsNegatedMembership reports whether the dialect has a native,
	// safe NOT-IN construct. When false, exclusion is expanded to a
	// conjunction of per-value inequality comparisons by the filter builder.
	SupportsNegatedMembership() bool

	// NegatedMembership renders a native NOT-IN. Only valid when
	// SupportsNegatedMembership is true.
	NegatedMembership(col string, values []string) string

	// CaseExpr renders an ordered multi-branch conditional with a mandatory
	// fallback, preserving branch order and the source comparisons. Branch
	// and fallback values may be quoted literals or column references.
	CaseExpr(branches []CondBranch, fallback CaseValue) string

	// Call renders the fixed single-argument transforms (toString, upper)
	// and REGEXP_REPLACE over an already-rendered column path.
	ToString(col string) string
	Upper(col string) string
	RegexpReplace(col, pattern, replacement string) string

	// Concat renders string concatenation of already-rendered pieces.
	Concat(parts ...string) string

	// StatusClassExpr renders the status-code-class bucketing expression
	// ("2xx"/"4xx"/"5xx") over the status column.
	StatusClassExpr() string
}

// ClickSQL is the direct SQL-like engine dialect: backtick-quoted dotted
// columns, multiIf/intDiv function vocabulary, SQL boolean operators.
func ClickSQL() Dialect { return clickSQL{} }

// ScanQL is the managed log-search dialect: namespace-sigil field paths,
// `==` comparisons, function-call predicates, no safe NOT-IN.
func ScanQL() Dialect { return scanQL{} }

// caseValue renders one result slot of a conditional: column references go
// through the dialect's field syntax, literals through its quoting.
func caseValue(d Dialect, v CaseValue) string {
	if v.Column != "" {
		return d.FieldPath(v.Column)
	}
	return d.Quote(v.Literal)
}

// ----------------------------------------------------------------------
// ClickSQL
// ----------------------------------------------------------------------

type clickSQL struct{}

func (clickSQL) Name() string { return "clicksql" }

func (clickSQL) FieldPath(field string) string {
	return "`" + stripBackticks(field) + "`"
}

func (d clickSQL) Quote(v any) string {
	switch x := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(x, "'", "\\'") + "'"
	case nil:
		return "NULL"
	default:
		return fmt.Sprintf("%v", x)
	}
}

func (clickSQL) Compare(col, op, value string) string {
	if op == "==" {
		op = "="
	}
	return fmt.Sprintf("%s %s %s", col, op, value)
}

func (clickSQL) NullCompare(col string, exclude bool) string {
	if exclude {
		return fmt.Sprintf("isNotNull(%s)", col)
	}
	return fmt.Sprintf("isNull(%s)", col)
}

func (d clickSQL) Contains(col, needle string, exclude bool) string {
	// Inverted comparison rather than NOT(...): position() is never null.
	if exclude {
		return fmt.Sprintf("position(%s, %s) = 0", col, d.Quote(needle))
	}
	return fmt.Sprintf("position(%s, %s) > 0", col, d.Quote(needle))
}

func (clickSQL) Negate(expr string) string {
	return "NOT (" + expr + ")"
}

func (d clickSQL) StartsWith(col, prefix string) string {
	return fmt.Sprintf("startsWith(%s, %s)", col, d.Quote(prefix))
}

func (d clickSQL) Membership(col string, values []string) string {
	return fmt.Sprintf("%s IN (%s)", col, d.quoteList(values))
}

func (clickSQL) SupportsNegatedMembership() bool { return true }

func (d clickSQL) NegatedMembership(col string, values []string) string {
	return fmt.Sprintf("%s NOT IN (%s)", col, d.quoteList(values))
}

func (d clickSQL) quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = d.Quote(v)
	}
	return strings.Join(quoted, ", ")
}

func (d clickSQL) CaseExpr(branches []CondBranch, fallback CaseValue) string {
	args := make([]string, 0, len(branches)*2+1)
	for _, b := range branches {
		op := b.Op
		if op == "==" {
			op = "="
		}
		args = append(args,
			fmt.Sprintf("%s %s %s", d.FieldPath(b.Column), op, b.Threshold),
			caseValue(d, b.Value))
	}
	args = append(args, caseValue(d, fallback))
	return "multiIf(" + strings.Join(args, ", ") + ")"
}

func (clickSQL) ToString(col string) string { return fmt.Sprintf("toString(%s)", col) }
func (clickSQL) Upper(col string) string    { return fmt.Sprintf("upper(%s)", col) }

func (d clickSQL) RegexpReplace(col, pattern, replacement string) string {
	return fmt.Sprintf("REGEXP_REPLACE(%s, %s, %s)", col, d.Quote(pattern), d.Quote(replacement))
}

func (clickSQL) Concat(parts ...string) string {
	return "concat(" + strings.Join(parts, ", ") + ")"
}

func (d clickSQL) StatusClassExpr() string {
	return d.Concat(d.ToString(fmt.Sprintf("intDiv(%s, 100)", d.FieldPath("status"))), d.Quote("xx"))
}

// ----------------------------------------------------------------------
// ScanQL
// ----------------------------------------------------------------------

// scanNamespaces is the fixed field-to-namespace map of the log-search
// backend. Metadata fields live under $m, service labels under $l, and
// everything else defaults to the payload namespace $d.
var scanNamespaces = map[string]string{
	"timestamp":         "$m",
	"server.datacenter": "$m",
	"server.region":     "$m",
	"server.pop":        "$m",
	"request.host":      "$l",
	"service.id":        "$l",
	"service.version":   "$l",
}

type scanQL struct{}

func (scanQL) Name() string { return "scanql" }

func (scanQL) FieldPath(field string) string {
	field = stripBackticks(field)
	ns, ok := scanNamespaces[field]
	if !ok {
		ns = "$d"
	}
	return ns + "." + field
}

func (scanQL) Quote(v any) string {
	switch x := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(x, "'", "\\'") + "'"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", x)
	}
}

func (scanQL) Compare(col, op, value string) string {
	if op == "=" {
		op = "=="
	}
	return fmt.Sprintf("%s %s %s", col, op, value)
}

func (scanQL) NullCompare(col string, exclude bool) string {
	if exclude {
		return col + " != null"
	}
	return col + " == null"
}

func (d scanQL) Contains(col, needle string, exclude bool) string {
	expr := fmt.Sprintf("contains(%s, %s)", col, d.Quote(needle))
	if exclude {
		return "!" + expr
	}
	return expr
}

func (scanQL) Negate(expr string) string {
	return "!(" + expr + ")"
}

func (d scanQL) StartsWith(col, prefix string) string {
	return fmt.Sprintf("starts_with(%s, %s)", col, d.Quote(prefix))
}

func (d scanQL) Membership(col string, values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = d.Quote(v)
	}
	return fmt.Sprintf("in(%s, [%s])", col, strings.Join(quoted, ", "))
}

// The log-search language has no negated in(); its `!` applies only to
// boolean function calls and silently mis-binds around in(). Exclusion is
// expanded to a conjunction upstream.
func (scanQL) SupportsNegatedMembership() bool { return false }

func (scanQL) NegatedMembership(col string, values []string) string {
	panic("edgeql: scanql has no negated membership; expand to inequality conjunction")
}

func (d scanQL) CaseExpr(branches []CondBranch, fallback CaseValue) string {
	args := make([]string, 0, len(branches)*2+1)
	for _, b := range branches {
		op := b.Op
		if op == "=" {
			op = "=="
		}
		args = append(args,
			fmt.Sprintf("%s %s %s", d.FieldPath(b.Column), op, b.Threshold),
			caseValue(d, b.Value))
	}
	args = append(args, caseValue(d, fallback))
	return "case(" + strings.Join(args, ", ") + ")"
}

func (scanQL) ToString(col string) string { return fmt.Sprintf("tostring(%s)", col) }
func (scanQL) Upper(col string) string    { return fmt.Sprintf("upper(%s)", col) }

func (d scanQL) RegexpReplace(col, pattern, replacement string) string {
	return fmt.Sprintf("replace(%s, /%s/, %s)", col, pattern, d.Quote(replacement))
}

func (scanQL) Concat(parts ...string) string {
	return "concat(" + strings.Join(parts, ", ") + ")"
}

func (d scanQL) StatusClassExpr() string {
	return d.Concat(d.ToString(fmt.Sprintf("floor(%s / 100)", d.FieldPath("status"))), d.Quote("xx"))
}
