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
	"regexp"
	"strings"
)

// The dashboard's column catalog stores expressions in the SQL dialect's
// surface syntax. ParseExpr lifts those strings into the abstract AST so a
// single translator can emit either dialect.

var (
	toStringRE = regexp.MustCompile("^toString\\(\\s*`?([A-Za-z_][A-Za-z0-9_.]*)`?\\s*\\)$")
	upperRE    = regexp.MustCompile("^upper\\(\\s*`?([A-Za-z_][A-Za-z0-9_.]*)`?\\s*\\)$")
	regexRepRE = regexp.MustCompile("^REGEXP_REPLACE\\(\\s*`?([A-Za-z_][A-Za-z0-9_.]*)`?\\s*,\\s*'((?:[^'\\\\]|\\\\.)*)'\\s*,\\s*'((?:[^'\\\\]|\\\\.)*)'\\s*\\)$")
	statusRE   = regexp.MustCompile("^(?:concat\\(\\s*toString\\(\\s*)?intDiv\\(\\s*`?status`?\\s*,\\s*100\\s*\\)")
	branchRE   = regexp.MustCompile("`?([A-Za-z_][A-Za-z0-9_.]*)`?\\s*(<|==|=)\\s*([0-9]+(?:\\.[0-9]+)?)\\s*,\\s*(?:'((?:[^'\\\\]|\\\\.)*)'|`?([A-Za-z_][A-Za-z0-9_.]*)`?)")
	literalRE  = regexp.MustCompile("'((?:[^'\\\\]|\\\\.)*)'\\s*\\)$")
	tailColRE  = regexp.MustCompile(",\\s*`?([A-Za-z_][A-Za-z0-9_.]*)`?\\s*\\)$")
)

// ParseExpr parses a raw column expression into an Expr. Inputs that do not
// match any known function wrapper are treated as a bare column after
// stripping backtick quoting. The only hard failure is a multiIf/if with no
// parseable field reference, which returns a *ParseError.
func ParseExpr(raw string) (Expr, error) {
	s := strings.TrimSpace(raw)

	switch {
	case strings.HasPrefix(s, "multiIf("):
		return parseConditional(s, KindMultiIf)
	case strings.HasPrefix(s, "if("):
		return parseConditional(s, KindIf)
	case statusRE.MatchString(s):
		return Expr{Kind: KindStatusClass, Column: "status"}, nil
	}

	if m := toStringRE.FindStringSubmatch(s); m != nil {
		return Expr{Kind: KindToString, Column: m[1]}, nil
	}
	if m := upperRE.FindStringSubmatch(s); m != nil {
		return Expr{Kind: KindUpper, Column: m[1]}, nil
	}
	if m := regexRepRE.FindStringSubmatch(s); m != nil {
		return Expr{Kind: KindRegexpReplace, Column: m[1], Pattern: m[2], Replacement: m[3]}, nil
	}

	// Synthetic ASN column: the catalog names it directly.
	if stripBackticks(s) == "client.asn" {
		return Expr{Kind: KindASN, Column: "client.asn"}, nil
	}

	// Fallback: whatever it is, treat it as a bare column.
	return Col(stripBackticks(s)), nil
}

func parseConditional(s string, kind ExprKind) (Expr, error) {
	branches := make([]CondBranch, 0, 4)
	for _, m := range branchRE.FindAllStringSubmatch(s, -1) {
		op := m[2]
		if op == "=" {
			op = "=="
		}
		value := CaseValue{Literal: m[4]}
		if m[5] != "" {
			value = CaseValue{Column: m[5]}
		}
		branches = append(branches, CondBranch{
			Column:    m[1],
			Op:        op,
			Threshold: m[3],
			Value:     value,
		})
	}
	if len(branches) == 0 {
		return Expr{}, &ParseError{Input: s, Reason: "no field reference in conditional"}
	}

	// The final argument before the closing paren is the fallback branch:
	// a quoted literal, or failing that a bare column reference.
	var fallback CaseValue
	if m := literalRE.FindStringSubmatch(s); m != nil {
		fallback = CaseValue{Literal: m[1]}
	} else if m := tailColRE.FindStringSubmatch(s); m != nil {
		fallback = CaseValue{Column: m[1]}
	}

	return Expr{Kind: kind, Branches: branches, Fallback: fallback}, nil
}

func stripBackticks(s string) string {
	return strings.ReplaceAll(s, "`", "")
}
