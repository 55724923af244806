// Package config loads the daemon's runtime configuration: worker pool
// sizing, watchdog timing, transpile bounds, and link-bus/timer tuning
// (SPEC_FULL.md §1 Ambient Stack). Grounded on the teacher corpus's cobra +
// viper pairing (cmd/main.go, cmd/config.go in the dagu-org-dagu example):
// a --config flag on the root command names a YAML file, and that file and
// GLITCHSCRIPTD_-prefixed environment variables resolve through viper in
// one precedence order. No other command-line flag is bound into viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is every tunable the manager/worker/timers/linkbus layers accept
// as an Option (spec §4.6 slot cap/watchdog, §4.7 timer resolution, §4.8
// link-queue bound, §4.5 sandbox loop/recursion bounds).
type Config struct {
	// Worker pool (spec §4.6)
	SlotCount      int           `mapstructure:"slot_count"`
	SlotCap        int           `mapstructure:"slot_cap"`
	WatchdogPeriod time.Duration `mapstructure:"watchdog_period"`

	// Sandbox transform (spec §4.5)
	LoopBound      int `mapstructure:"loop_bound"`
	RecursionBound int `mapstructure:"recursion_bound"`

	// Timer manager (spec §4.7)
	TimerResolution time.Duration `mapstructure:"timer_resolution"`

	// Link bus (spec §4.8)
	LinkQueueBound int `mapstructure:"link_queue_bound"`

	// Persistence (internal/manager/store)
	DatabasePath string `mapstructure:"database_path"`
}

// Defaults is what a bare `glitchscriptd serve` with no config file gets.
// The worker and linkbus values match those packages' own fallbacks when
// an Option is omitted; TimerResolution (100ms) is coarser than the timers
// package's own 50ms fallback.
func Defaults() Config {
	return Config{
		SlotCount:       4,
		SlotCap:         50,
		WatchdogPeriod:  5 * time.Second,
		LoopBound:       1_000_000,
		RecursionBound:  256,
		TimerResolution: 100 * time.Millisecond,
		LinkQueueBound:  64,
		DatabasePath:    "glitchscript.db",
	}
}

// EnvPrefix is the environment variable prefix viper binds config keys
// under, e.g. GLITCHSCRIPTD_SLOT_COUNT overrides slot_count.
const EnvPrefix = "GLITCHSCRIPTD"

// Load reads defaults, then a config file (if one was located via
// v.AddConfigPath/SetConfigName/SetConfigFile by the caller), then
// environment variables, in increasing precedence order, and decodes the
// result into a Config. v is the fresh per-command viper.Viper that
// cmd/glitchscriptd's newViper builds; no flags are bound into it
// (spec: dagu-org-dagu's cmd/main.go
// `initialize` does the equivalent AddConfigPath/SetConfigType/
// SetConfigName dance before calling its own config.Load).
func Load(v *viper.Viper) (Config, error) {
	d := Defaults()
	v.SetDefault("slot_count", d.SlotCount)
	v.SetDefault("slot_cap", d.SlotCap)
	v.SetDefault("watchdog_period", d.WatchdogPeriod)
	v.SetDefault("loop_bound", d.LoopBound)
	v.SetDefault("recursion_bound", d.RecursionBound)
	v.SetDefault("timer_resolution", d.TimerResolution)
	v.SetDefault("link_queue_bound", d.LinkQueueBound)
	v.SetDefault("database_path", d.DatabasePath)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
