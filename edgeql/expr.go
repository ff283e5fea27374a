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

import "fmt"

// ------------------------------
// Abstract expression AST
// ------------------------------

// ExprKind discriminates the supported expression forms. The dashboard only
// ever builds a small fixed set of shapes, so the AST is a closed sum rather
// than a general expression tree.
type ExprKind string

const (
	KindColumn        ExprKind = "column"         // bare column reference
	KindToString      ExprKind = "to_string"      // toString(col)
	KindUpper         ExprKind = "upper"          // upper(col)
	KindRegexpReplace ExprKind = "regexp_replace" // REGEXP_REPLACE(col, pat, repl)
	KindIf            ExprKind = "if"             // if(cond, then, else)
	KindMultiIf       ExprKind = "multi_if"       // multiIf(c1, v1, ..., fallback)
	KindStatusClass   ExprKind = "status_class"   // intDiv(status,100) -> "2xx"/"4xx"/"5xx"
	KindASN           ExprKind = "asn"            // synthetic: org name + AS number
)

// Expr is one abstract column expression. Exactly the fields implied by Kind
// are populated; everything else is zero.
type Expr struct {
	Kind ExprKind

	// Column is the underlying field for every kind except MultiIf, where
	// the field reference lives inside the branch conditions.
	Column string

	// RegexpReplace
	Pattern     string
	Replacement string

	// If / MultiIf. Branches are ordered; Fallback is the mandatory default
	// branch (the last argument of the source expression, always).
	Branches []CondBranch
	Fallback CaseValue
}

// CaseValue is one result slot of a conditional: either a quoted string
// literal or a column reference, never both.
type CaseValue struct {
	Literal string
	Column  string
}

// CondBranch is one condition/value pair of an if/multiIf expression. Op is
// the comparison used against Threshold ("<" or "==" in practice).
type CondBranch struct {
	Column    string
	Op        string
	Threshold string
	Value     CaseValue
}

// ParseError is returned when a raw expression cannot be translated, for
// example a multiIf with no recognizable field reference. It fails the one
// query being built, never the process.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("edgeql: cannot parse expression %q: %s", e.Input, e.Reason)
}

// Col returns a bare column expression.
func Col(name string) Expr {
	return Expr{Kind: KindColumn, Column: name}
}

// FieldRef returns the underlying field a translated filter or grouping will
// reference, so callers can check both translation paths hit the same field.
func (e Expr) FieldRef() string {
	if e.Kind == KindMultiIf || e.Kind == KindIf {
		if len(e.Branches) > 0 {
			return e.Branches[0].Column
		}
		return ""
	}
	return e.Column
}
