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

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/edgeview/edgeql"
	"github.com/cardinalhq/edgeview/timewindow"
)

var (
	translateHost    string
	translateFacet   string
	translateRange   string
	translateFilters []string
	translateRaw     bool
	translateLimit   int
)

// translateCmd renders the same query in both backend dialects, which makes
// divergence between the two translation paths easy to spot by hand.
var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Render a query in both backend dialects",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, _, ok := timewindow.Named(translateRange, time.Now())
		if !ok {
			return fmt.Errorf("unknown time range %q", translateRange)
		}

		filters, err := parseFilterFlags(translateFilters)
		if err != nil {
			return err
		}

		spec := edgeql.QuerySpec{
			Source:  "requests",
			Start:   w.Start,
			End:     w.End,
			Host:    translateHost,
			Filters: filters,
		}

		for _, d := range []edgeql.Dialect{edgeql.ClickSQL(), edgeql.ScanQL()} {
			b := edgeql.NewBuilder(d)
			var q string
			var err error
			if translateRaw {
				q, err = b.RawLogs(spec, 0, translateLimit)
			} else {
				q, err = b.Breakdown(spec, translateFacet, translateLimit, edgeql.Order{})
			}
			if err != nil {
				return fmt.Errorf("%s: %w", d.Name(), err)
			}
			fmt.Printf("-- %s\n%s\n\n", d.Name(), q)
		}
		return nil
	},
}

func init() {
	translateCmd.Flags().StringVar(&translateHost, "host", "", "request host the query is scoped to")
	translateCmd.Flags().StringVar(&translateFacet, "facet", "`status`", "facet column for the breakdown shape")
	translateCmd.Flags().StringVar(&translateRange, "range", "24h", "named time range (15m, 1h, 12h, 24h, 7d, 30d)")
	translateCmd.Flags().StringArrayVar(&translateFilters, "filter", nil, "filter as col=value, prefix value with ! to exclude")
	translateCmd.Flags().BoolVar(&translateRaw, "raw", false, "render the raw log shape instead of a breakdown")
	translateCmd.Flags().IntVar(&translateLimit, "limit", 10, "result limit")
}

func parseFilterFlags(raw []string) ([]edgeql.Filter, error) {
	filters := make([]edgeql.Filter, 0, len(raw))
	for _, r := range raw {
		col, val, ok := strings.Cut(r, "=")
		if !ok {
			return nil, fmt.Errorf("filter %q is not of the form col=value", r)
		}
		f := edgeql.Filter{Column: col, Value: strings.TrimPrefix(val, "!"), Exclude: strings.HasPrefix(val, "!")}
		filters = append(filters, f)
	}
	return filters, nil
}

// rangesCmd prints the time range catalog with the serving tier and cache
// TTL each range resolves to.
var rangesCmd = &cobra.Command{
	Use:   "ranges",
	Short: "Show the time range catalog",
	Run: func(cmd *cobra.Command, args []string) {
		now := time.Now()
		fmt.Printf("%-6s %-10s %-10s %-10s %-10s\n", "name", "tier", "bucket", "fill", "cache ttl")
		for _, r := range timewindow.Ranges() {
			w := timewindow.Window{Start: now.Add(-r.Span), End: now}
			fmt.Printf("%-6s %-10s %-10s %-10s %-10s\n",
				r.Name, timewindow.TierFor(w), r.Bucket, r.FillInterval, timewindow.CacheTTL(w))
		}
	},
}
