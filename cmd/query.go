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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cardinalhq/edgeview/backend"
	"github.com/cardinalhq/edgeview/config"
	"github.com/cardinalhq/edgeview/edgeql"
	"github.com/cardinalhq/edgeview/internal/logctx"
	"github.com/cardinalhq/edgeview/queryopt"
	"github.com/cardinalhq/edgeview/timewindow"
)

var (
	queryHost    string
	queryFacets  []string
	queryRange   string
	queryFilters []string
	queryLimit   int
)

// queryCmd runs one breakdown query per facet against the configured
// backends through the full optimizer path (batched when more than one
// facet is given) and prints the normalized rows as JSON.
var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Execute breakdown queries against the configured backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.Backends.PrimaryURL == "" {
			return fmt.Errorf("backends.primary_url is not configured")
		}

		ctx, shutdown, err := setupTelemetry("edgeview-query")
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(); err != nil {
				slog.Warn("telemetry shutdown failed", "error", err)
			}
		}()

		w, _, ok := timewindow.Named(queryRange, time.Now())
		if !ok {
			return fmt.Errorf("unknown time range %q", queryRange)
		}

		filters, err := parseFilterFlags(queryFilters)
		if err != nil {
			return err
		}

		adapter := newAdapter(cfg)
		exec := queryopt.NewExecutor(adapter,
			queryopt.WithCacheCapacity(cfg.Query.CacheCapacity))
		defer exec.Close()

		dialect := dialectFor(cfg)
		ctx = logctx.WithSession(ctx, uuid.NewString(), dialect.Name())

		b := edgeql.NewBuilder(dialect)
		spec := edgeql.QuerySpec{
			Source:  "requests",
			Start:   w.Start,
			End:     w.End,
			Host:    queryHost,
			Filters: filters,
		}

		reqs := make([]queryopt.QueryRequest, 0, len(queryFacets))
		for _, facet := range queryFacets {
			q, err := b.Breakdown(spec, facet, queryLimit, edgeql.Order{})
			if err != nil {
				return err
			}
			reqs = append(reqs, queryopt.QueryRequest{
				Query: q,
				Tier:  timewindow.TierFor(w),
				Start: w.Start,
				End:   w.End,
				Limit: queryLimit,
			})
		}

		results, batchErr := exec.ExecuteBatch(ctx, reqs, cfg.Query.BatchConcurrency)

		enc := json.NewEncoder(os.Stdout)
		for i, res := range results {
			if res.Err != nil {
				slog.Error("facet query failed", "facet", queryFacets[i], "error", res.Err)
				continue
			}
			for _, row := range res.Rows {
				row["facet"] = queryFacets[i]
				if err := enc.Encode(row); err != nil {
					return err
				}
			}
		}
		return batchErr
	},
}

// newAdapter wires the two HTTP transports from configuration.
func newAdapter(cfg *config.Config) *backend.Adapter {
	primary := backend.NewHTTPTransport(cfg.Backends.PrimaryURL, "", backend.FormatJSON)
	scan := backend.NewHTTPTransport(cfg.Backends.ScanURL, cfg.Backends.ScanToken, backend.FormatNDJSON)
	return backend.NewAdapter(primary, scan, func() backend.Capabilities {
		return backend.Capabilities{
			ScanConfigured:    cfg.Backends.ScanConfigured(),
			ScanAuthenticated: cfg.Backends.ScanToken != "",
		}
	})
}

// dialectFor mirrors the adapter's capability rule so the generated query
// matches the transport it will run on.
func dialectFor(cfg *config.Config) edgeql.Dialect {
	if cfg.Backends.ScanConfigured() && cfg.Backends.ScanToken != "" {
		return edgeql.ScanQL()
	}
	return edgeql.ClickSQL()
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVar(&queryHost, "host", "", "request host the query is scoped to")
	queryCmd.Flags().StringArrayVar(&queryFacets, "facet", []string{"`status`"}, "facet column(s) to break down by, repeatable")
	queryCmd.Flags().StringVar(&queryRange, "range", "24h", "named time range (15m, 1h, 12h, 24h, 7d, 30d)")
	queryCmd.Flags().StringArrayVar(&queryFilters, "filter", nil, "filter as col=value, prefix value with ! to exclude")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 10, "result limit per facet")
}
