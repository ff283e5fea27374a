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
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// HTTPTransport executes queries against one backend over HTTP. The primary
// backend speaks a single JSON document, the log-search backend streams
// NDJSON; format selects the decoder applied to the response body.
type HTTPTransport struct {
	url    string
	token  string
	format Format
	client *http.Client
}

// NewHTTPTransport builds a transport for the given query endpoint. token may
// be empty for backends authenticated elsewhere.
func NewHTTPTransport(url, token string, format Format) *HTTPTransport {
	return &HTTPTransport{
		url:    url,
		token:  token,
		format: format,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

type queryEnvelope struct {
	Query   string `json:"query"`
	Tier    string `json:"tier"`
	StartMs int64  `json:"startMs"`
	EndMs   int64  `json:"endMs"`
	Limit   int    `json:"limit,omitempty"`
}

// ExecuteRaw posts the query and returns the undecoded response. Non-2xx
// statuses are not treated as errors here; the adapter's retry and
// classification layers own that decision.
func (t *HTTPTransport) ExecuteRaw(ctx context.Context, query string, opts RawOptions) (*RawResponse, error) {
	body, err := json.Marshal(queryEnvelope{
		Query:   query,
		Tier:    string(opts.Tier),
		StartMs: opts.Start.UnixMilli(),
		EndMs:   opts.End.UnixMilli(),
		Limit:   opts.Limit,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.format == FormatNDJSON {
		req.Header.Set("Accept", "application/x-ndjson")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &RawResponse{
		StatusCode: resp.StatusCode,
		Format:     t.format,
		Body:       data,
	}, nil
}
