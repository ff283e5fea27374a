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

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Query.BatchConcurrency)
	assert.Equal(t, 10_000, cfg.Query.CacheCapacity)
	assert.Equal(t, 1000, cfg.Viewer.RowBudget)
	assert.Equal(t, 20, cfg.Viewer.HeadCacheSize)
	assert.Equal(t, 4, cfg.Viewer.FetchConcurrency)
	assert.False(t, cfg.Backends.ScanConfigured())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("EDGEVIEW_BACKENDS_SCAN_URL", "https://scan.example.com")
	t.Setenv("EDGEVIEW_BACKENDS_SCAN_TOKEN", "tok-123")
	t.Setenv("EDGEVIEW_QUERY_BATCH_CONCURRENCY", "8")
	t.Setenv("EDGEVIEW_VIEWER_ROW_BUDGET", "500")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://scan.example.com", cfg.Backends.ScanURL)
	assert.Equal(t, "tok-123", cfg.Backends.ScanToken)
	assert.Equal(t, 8, cfg.Query.BatchConcurrency)
	assert.Equal(t, 500, cfg.Viewer.RowBudget)
	assert.True(t, cfg.Backends.ScanConfigured())
}
