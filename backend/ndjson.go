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

package backend

import (
	"bytes"
	"fmt"

	"github.com/valyala/fastjson"
)

// decodeBody dispatches on the transport's response format.
func decodeBody(resp *RawResponse) ([]Row, []string, error) {
	switch resp.Format {
	case FormatNDJSON:
		return decodeNDJSON(resp.Body)
	default:
		return decodeJSON(resp.Body)
	}
}

// decodeJSON handles the primary backend: one object with a "rows" array.
func decodeJSON(body []byte) ([]Row, []string, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(body)
	if err != nil {
		return nil, nil, fmt.Errorf("malformed JSON response: %w", err)
	}

	arr := v.GetArray("rows")
	rows := make([]Row, 0, len(arr))
	for _, item := range arr {
		if row, ok := valueToRow(item); ok {
			rows = append(rows, row)
		}
	}

	var errs []string
	if msg := v.GetStringBytes("error"); len(msg) > 0 {
		errs = append(errs, string(msg))
	}
	return rows, errs, nil
}

// decodeNDJSON handles the log-search backend: one JSON envelope per line.
// Malformed lines are skipped rather than failing the whole response, and
// inline error envelopes are collected separately from the data rows.
func decodeNDJSON(body []byte) ([]Row, []string, error) {
	var rows []Row
	var inlineErrs []string
	var p fastjson.Parser

	for _, line := range bytes.Split(body, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		v, err := p.ParseBytes(line)
		if err != nil {
			// Truncated or garbled line; drop it and keep going.
			continue
		}

		switch string(v.GetStringBytes("kind")) {
		case "error":
			if msg := v.GetStringBytes("message"); len(msg) > 0 {
				inlineErrs = append(inlineErrs, string(msg))
			}
		case "match", "row":
			if row, ok := valueToRow(v.Get("row")); ok {
				rows = append(rows, row)
			}
		default:
			// Envelope without a kind: tolerate bare row objects.
			if row, ok := valueToRow(v); ok {
				rows = append(rows, row)
			}
		}
	}
	return rows, inlineErrs, nil
}

// valueToRow flattens a fastjson object into a Row. Non-objects are dropped.
func valueToRow(v *fastjson.Value) (Row, bool) {
	if v == nil {
		return nil, false
	}
	obj, err := v.Object()
	if err != nil {
		return nil, false
	}
	row := make(Row, obj.Len())
	obj.Visit(func(key []byte, val *fastjson.Value) {
		row[string(key)] = valueToAny(val)
	})
	return row, true
}

func valueToAny(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber:
		f := v.GetFloat64()
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	case fastjson.TypeNull:
		return nil
	default:
		return v.String()
	}
}
