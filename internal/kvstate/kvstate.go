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

// Package kvstate wraps an external key-value string store with versioned,
// timestamped JSON envelopes. The store itself is a collaborator (browser
// localStorage, redis, a file); this package only defines the blob format
// and its staleness rules.
package kvstate

import (
	"encoding/json"
	"time"
)

// Store is the collaborator interface: a flat string-to-string store.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// envelope is the persisted blob shape. Version mismatches and parse
// failures are both treated as "absent", never as errors: stale state from
// an older build must not break the dashboard.
type envelope struct {
	Version   int             `json:"v"`
	SavedAtMs int64           `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
}

// Save writes value under key with the given format version.
func Save[T any](s Store, key string, version int, value T, now time.Time) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	blob, err := json.Marshal(envelope{
		Version:   version,
		SavedAtMs: now.UnixMilli(),
		Payload:   payload,
	})
	if err != nil {
		return err
	}
	s.Set(key, string(blob))
	return nil
}

// Load reads key and decodes its payload. It reports false — never an
// error — when the key is missing, the blob fails JSON parsing, the format
// version does not match, or the entry is older than maxAge (maxAge 0
// disables the staleness check).
func Load[T any](s Store, key string, version int, maxAge time.Duration, now time.Time) (T, bool) {
	var zero T

	blob, ok := s.Get(key)
	if !ok {
		return zero, false
	}

	var env envelope
	if err := json.Unmarshal([]byte(blob), &env); err != nil {
		return zero, false
	}
	if env.Version != version {
		return zero, false
	}
	if maxAge > 0 && now.UnixMilli()-env.SavedAtMs > maxAge.Milliseconds() {
		return zero, false
	}

	var value T
	if err := json.Unmarshal(env.Payload, &value); err != nil {
		return zero, false
	}
	return value, true
}

// FacetPrefs is the persisted per-user facet/column selection.
type FacetPrefs struct {
	Facets  []string `json:"facets"`
	Columns []string `json:"columns"`
}

// PrefsVersion is bumped whenever FacetPrefs changes shape.
const PrefsVersion = 3

// LoadPrefs reads the user's facet/column preferences.
func LoadPrefs(s Store, key string) (FacetPrefs, bool) {
	return Load[FacetPrefs](s, key, PrefsVersion, 0, time.Now())
}

// SavePrefs stores the user's facet/column preferences.
func SavePrefs(s Store, key string, p FacetPrefs) error {
	return Save(s, key, PrefsVersion, p, time.Now())
}
