// Package config loads run settings from YAML and environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const envPrefix = "tql"

// Load reads the config file at path, overlays TQL_* environment variables
// and validates the result. An empty path uses defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil, fmt.Errorf("config file %q not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("analysis.symbols", []string{})
	v.SetDefault("analysis.trade_definition", "flat.to.flat")
	v.SetDefault("analysis.include_open_trade", true)
	v.SetDefault("analysis.scales", []string{"cash", "percent", "tick"})
	v.SetDefault("analysis.probs", []float64{0.05, 0.25, 0.5, 0.75, 0.95})
	v.SetDefault("analysis.workers", 0)
	v.SetDefault("analysis.symbol_workers", 4)

	v.SetDefault("input.source", SourceFixtures)
	v.SetDefault("input.csv_path", "")

	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.clickhouse_dsn", "")
	v.SetDefault("storage.run_migrations", true)
	v.SetDefault("storage.max_conns", 10)
	v.SetDefault("storage.query_timeout", "30s")

	v.SetDefault("output.dir", "reports")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("metrics.namespace", "trade_quality_lab")
	v.SetDefault("metrics.textfile_path", "")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
