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

// Package backend selects between the two query transports at runtime and
// normalizes their structurally different responses into one row shape.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/cardinalhq/edgeview/internal/logctx"
	"github.com/cardinalhq/edgeview/timewindow"
)

// Row is one normalized result record. Breakdown rows carry dim/count/ok/
// 4xx/5xx keys; raw log rows carry an arbitrary flat field set.
type Row map[string]any

// RawOptions parameterizes a single transport call.
type RawOptions struct {
	Tier  timewindow.Tier
	Start time.Time
	End   time.Time
	Limit int
}

// Format tells the adapter how to decode a transport response body.
type Format int

const (
	// FormatJSON is one JSON object with a top-level "rows" array.
	FormatJSON Format = iota
	// FormatNDJSON is newline-delimited JSON envelopes, one per line.
	FormatNDJSON
)

// RawResponse is what a transport hands back before normalization.
type RawResponse struct {
	StatusCode int
	Format     Format
	Body       []byte
}

// Transport executes one query against a concrete backend. Implementations
// live outside this package (HTTP clients, test fakes).
type Transport interface {
	ExecuteRaw(ctx context.Context, query string, opts RawOptions) (*RawResponse, error)
}

// Capabilities reports whether the alternate (log-search) backend can serve
// this caller right now.
type Capabilities struct {
	ScanConfigured    bool
	ScanAuthenticated bool
}

// NormalizedResult is the adapter's output: decoded rows, wall time spent on
// the network, and any inline error envelopes the backend interleaved with
// data (NDJSON responses may carry both).
type NormalizedResult struct {
	Rows        []Row
	NetworkTime time.Duration
	Errors      []string
}

// Adapter routes queries to the right transport and normalizes responses.
type Adapter struct {
	primary   Transport
	alternate Transport
	caps      func() Capabilities

	retry retryPolicy
}

// NewAdapter builds an adapter over the two collaborator transports. caps is
// consulted per call so a credential refresh flips routing without rebuild.
func NewAdapter(primary, alternate Transport, caps func() Capabilities) *Adapter {
	return &Adapter{
		primary:   primary,
		alternate: alternate,
		caps:      caps,
		retry:     defaultRetryPolicy,
	}
}

// pick chooses the transport: the alternate backend is used only when it is
// both configured and the caller is authenticated against it.
func (a *Adapter) pick() Transport {
	c := a.caps()
	if c.ScanConfigured && c.ScanAuthenticated && a.alternate != nil {
		return a.alternate
	}
	return a.primary
}

// Execute runs one query through the selected transport with the retry
// policy and returns the normalized result. Errors come back classified.
func (a *Adapter) Execute(ctx context.Context, query string, opts RawOptions) (*NormalizedResult, error) {
	tr := a.pick()
	log := logctx.FromContext(ctx)

	started := time.Now()
	resp, err := a.retry.do(ctx, func(ctx context.Context) (*RawResponse, error) {
		return tr.ExecuteRaw(ctx, query, opts)
	})
	elapsed := time.Since(started)

	if err != nil {
		cerr := Classify(err)
		if cerr.Category != CategoryCancelled {
			log.Error("backend execution failed",
				"category", string(cerr.Category),
				"error", cerr.Message)
		}
		return nil, cerr
	}

	rows, inlineErrs, err := decodeBody(resp)
	if err != nil {
		return nil, Classify(fmt.Errorf("decode response: %w", err))
	}
	if len(inlineErrs) > 0 {
		log.Warn("backend returned inline errors", "count", len(inlineErrs))
	}

	return &NormalizedResult{
		Rows:        rows,
		NetworkTime: elapsed,
		Errors:      inlineErrs,
	}, nil
}
