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
	"fmt"
	"strings"
	"unicode/utf8"
)

// Category is the fixed error taxonomy surfaced to the dashboard.
type Category string

const (
	CategoryPermissions Category = "permissions"
	CategoryTimeout     Category = "timeout"
	CategorySyntax      Category = "syntax"
	CategoryResource    Category = "resource"
	CategoryNetwork     Category = "network"
	CategoryCancelled   Category = "cancelled"
	CategoryUnknown     Category = "unknown"
)

// maxMessageLen bounds the classified message kept for display.
const maxMessageLen = 300

// StatusError is the shape transports use to report a non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend status %d: %s", e.StatusCode, e.Message)
}

// ClassifiedError attaches a taxonomy category to an underlying failure.
type ClassifiedError struct {
	Category Category
	Status   int
	Message  string
	Err      error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Classify maps an execution failure into the category set. Status-code
// rules run first, then keyword matching on the lower-cased message.
func Classify(err error) *ClassifiedError {
	var cerr *ClassifiedError
	if errors.As(err, &cerr) {
		return cerr
	}

	msg := truncate(err.Error())

	if errors.Is(err, context.Canceled) {
		return &ClassifiedError{Category: CategoryCancelled, Message: msg, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ClassifiedError{Category: CategoryTimeout, Message: msg, Err: err}
	}

	var serr *StatusError
	if errors.As(err, &serr) {
		return &ClassifiedError{
			Category: categoryForStatus(serr.StatusCode, serr.Message),
			Status:   serr.StatusCode,
			Message:  truncate(serr.Message),
			Err:      err,
		}
	}

	return &ClassifiedError{Category: categoryForMessage(msg), Message: msg, Err: err}
}

func categoryForStatus(status int, msg string) Category {
	switch {
	case status == 401 || status == 403:
		return CategoryPermissions
	case status == 408 || status == 504:
		return CategoryTimeout
	case status == 429:
		return CategoryResource
	case status == 400 || status == 422:
		// Bad request usually means the generated query is malformed, which
		// is an internal bug; confirm with the message before deciding.
		if cat := categoryForMessage(strings.ToLower(msg)); cat != CategoryUnknown {
			return cat
		}
		return CategorySyntax
	case status >= 500:
		return CategoryNetwork
	default:
		return categoryForMessage(strings.ToLower(msg))
	}
}

func categoryForMessage(msg string) Category {
	msg = strings.ToLower(msg)
	switch {
	case containsAny(msg, "unauthorized", "forbidden", "expired token", "invalid credentials", "permission"):
		return CategoryPermissions
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return CategoryTimeout
	case containsAny(msg, "syntax", "parse error", "unexpected token"):
		return CategorySyntax
	case containsAny(msg, "rate limit", "too many requests", "quota"):
		return CategoryResource
	case containsAny(msg, "connection refused", "connection reset", "no such host", "network"):
		return CategoryNetwork
	case containsAny(msg, "canceled", "cancelled", "aborted"):
		return CategoryCancelled
	default:
		return CategoryUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	// Back up to a rune boundary so the cut never leaves a partial
	// multi-byte sequence in a user-visible message.
	cut := maxMessageLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
