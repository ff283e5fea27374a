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
	"context"
	"errors"
	"time"
)

// retryPolicy retries idempotent read queries on transient failures with a
// linearly increasing backoff. Auth failures and caller cancellation are
// never retried.
type retryPolicy struct {
	maxAttempts int
	baseBackoff time.Duration
}

var defaultRetryPolicy = retryPolicy{
	maxAttempts: 3,
	baseBackoff: 250 * time.Millisecond,
}

// transientStatuses are the HTTP statuses worth a retry: request timeout,
// rate limited, and server-side failures.
func transientStatus(status int) bool {
	return status == 408 || status == 429 || status >= 500
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var serr *StatusError
	if errors.As(err, &serr) {
		return transientStatus(serr.StatusCode)
	}
	// Transport-level (connection) errors are worth retrying; anything we
	// cannot identify is not.
	cat := Classify(err).Category
	return cat == CategoryNetwork || cat == CategoryTimeout
}

func (p retryPolicy) do(ctx context.Context, fn func(context.Context) (*RawResponse, error)) (*RawResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := fn(ctx)
		if err == nil {
			if resp.StatusCode >= 400 {
				err = &StatusError{StatusCode: resp.StatusCode, Message: string(resp.Body)}
			} else {
				return resp, nil
			}
		}

		lastErr = err
		if !retryable(err) || attempt == p.maxAttempts {
			return nil, err
		}

		select {
		case <-time.After(time.Duration(attempt) * p.baseBackoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
