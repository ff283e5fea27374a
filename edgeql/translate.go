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

// Translate renders an abstract expression in the target dialect. Both the
// filter builder and the grouping builders call this same function, which is
// what keeps a generated predicate and a generated group-by expression
// pointing at the same underlying field.
func Translate(e Expr, d Dialect) string {
	switch e.Kind {
	case KindColumn:
		return d.FieldPath(e.Column)
	case KindToString:
		return d.ToString(d.FieldPath(e.Column))
	case KindUpper:
		return d.Upper(d.FieldPath(e.Column))
	case KindRegexpReplace:
		return d.RegexpReplace(d.FieldPath(e.Column), e.Pattern, e.Replacement)
	case KindIf, KindMultiIf:
		return d.CaseExpr(e.Branches, e.Fallback)
	case KindStatusClass:
		return d.StatusClassExpr()
	case KindASN:
		// The catalog exposes one ASN column; the backends store the org
		// name and AS number separately.
		return d.Concat(
			d.FieldPath("client.as.name"),
			d.Quote(" ("),
			d.ToString(d.FieldPath("client.as.number")),
			d.Quote(")"),
		)
	default:
		return d.FieldPath(e.Column)
	}
}

// TranslateRaw parses a raw catalog expression and renders it for the target
// dialect in one step.
func TranslateRaw(raw string, d Dialect) (string, error) {
	e, err := ParseExpr(raw)
	if err != nil {
		return "", err
	}
	return Translate(e, d), nil
}
