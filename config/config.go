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
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

// Config aggregates configuration for the application.
type Config struct {
	Backends BackendsConfig `mapstructure:"backends"`
	Query    QueryConfig    `mapstructure:"query"`
	Viewer   ViewerConfig   `mapstructure:"viewer"`
}

// BackendsConfig selects and authenticates the two query transports.
type BackendsConfig struct {
	PrimaryURL string `mapstructure:"primary_url"`
	ScanURL    string `mapstructure:"scan_url"`
	ScanToken  string `mapstructure:"scan_token"`
}

// ScanConfigured reports whether the alternate log-search backend has
// enough configuration to be selectable at all.
func (b BackendsConfig) ScanConfigured() bool {
	return b.ScanURL != ""
}

// QueryConfig tunes the optimizer.
type QueryConfig struct {
	BatchConcurrency int `mapstructure:"batch_concurrency"`
	CacheCapacity    int `mapstructure:"cache_capacity"`
}

// ViewerConfig tunes the bucketed log viewer.
type ViewerConfig struct {
	RowBudget        int `mapstructure:"row_budget"`
	HeadCacheSize    int `mapstructure:"head_cache_size"`
	FetchConcurrency int `mapstructure:"fetch_concurrency"`
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "EDGEVIEW" and the dot character in
// keys is replaced by an underscore. For example, "backends.scan_url"
// becomes "EDGEVIEW_BACKENDS_SCAN_URL".
func Load() (*Config, error) {
	cfg := &Config{
		Query: QueryConfig{
			BatchConcurrency: 4,
			CacheCapacity:    10_000,
		},
		Viewer: ViewerConfig{
			RowBudget:        1000,
			HeadCacheSize:    20,
			FetchConcurrency: 4,
		},
	}

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("EDGEVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
