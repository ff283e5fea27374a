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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/edgeview/backend"
	"github.com/cardinalhq/edgeview/config"
	"github.com/cardinalhq/edgeview/edgeql"
	"github.com/cardinalhq/edgeview/logviewer"
	"github.com/cardinalhq/edgeview/queryopt"
	"github.com/cardinalhq/edgeview/timewindow"
)

var (
	logsHost    string
	logsRange   string
	logsFilters []string
	logsPerSlot int
)

// logsCmd streams raw logs for a window through the bucketed viewer: one
// bucket per time slice, fetched through the optimizer path under the
// viewer's shared concurrency limiter, printed as NDJSON.
var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Fetch raw logs for a time range",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.Backends.PrimaryURL == "" {
			return fmt.Errorf("backends.primary_url is not configured")
		}

		ctx, shutdown, err := setupTelemetry("edgeview-logs")
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(); err != nil {
				slog.Warn("telemetry shutdown failed", "error", err)
			}
		}()

		w, _, ok := timewindow.Named(logsRange, time.Now())
		if !ok {
			return fmt.Errorf("unknown time range %q", logsRange)
		}

		filters, err := parseFilterFlags(logsFilters)
		if err != nil {
			return err
		}

		exec := queryopt.NewExecutor(newAdapter(cfg),
			queryopt.WithCacheCapacity(cfg.Query.CacheCapacity))
		defer exec.Close()

		dialect := dialectFor(cfg)
		b := edgeql.NewBuilder(dialect)

		fetch := func(fctx context.Context, bk *logviewer.Bucket) ([]backend.Row, error) {
			spec := edgeql.QuerySpec{
				Source:  "requests",
				Start:   bk.Start,
				End:     bk.End,
				Host:    logsHost,
				Filters: filters,
			}
			q, err := b.RawLogs(spec, 0, logsPerSlot)
			if err != nil {
				return nil, err
			}
			return exec.Execute(fctx, queryopt.QueryRequest{
				Query: q,
				Tier:  timewindow.TierFor(w),
				Start: bk.Start,
				End:   bk.End,
				Limit: logsPerSlot,
			})
		}

		v, err := logviewer.NewViewer(ctx, logviewer.Config{
			RowBudget:        cfg.Viewer.RowBudget,
			HeadCacheSize:    cfg.Viewer.HeadCacheSize,
			FetchConcurrency: cfg.Viewer.FetchConcurrency,
		}, &ndjsonRenderer{enc: json.NewEncoder(os.Stdout)}, flatViewport{}, fetch)
		if err != nil {
			return err
		}
		defer v.Close()

		// One bucket per catalog slice of the window, newest last.
		slice := timewindow.BucketFor(w)
		for start := w.Start; start.Before(w.End); start = start.Add(slice) {
			end := start.Add(slice)
			if end.After(w.End) {
				end = w.End
			}
			key := strconv.FormatInt(start.UnixMilli(), 10)
			v.AddBucket(&logviewer.Bucket{Key: key, Start: start, End: end, HeadCount: logsPerSlot})
			v.OnBucketVisible(key)
		}
		v.Wait()
		return nil
	},
}

// ndjsonRenderer prints materialized rows; placeholder and eviction events
// have no terminal representation.
type ndjsonRenderer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (r *ndjsonRenderer) InsertPlaceholder(key string, rowCount int) {}
func (r *ndjsonRenderer) MarkLoading(key string)                     {}
func (r *ndjsonRenderer) EvictRows(key string, rowCount int)         {}

func (r *ndjsonRenderer) InsertRows(key string, rows []backend.Row) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		_ = r.enc.Encode(row)
	}
}

// flatViewport treats every bucket as equally distant; the row budget then
// evicts in insertion order.
type flatViewport struct{}

func (flatViewport) DistanceFromCenter(string) float64 { return 0 }

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().StringVar(&logsHost, "host", "", "request host the query is scoped to")
	logsCmd.Flags().StringVar(&logsRange, "range", "1h", "named time range (15m, 1h, 12h, 24h, 7d, 30d)")
	logsCmd.Flags().StringArrayVar(&logsFilters, "filter", nil, "filter as col=value, prefix value with ! to exclude")
	logsCmd.Flags().IntVar(&logsPerSlot, "limit", 100, "max rows fetched per time slice")
}
