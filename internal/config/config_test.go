package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadReturnsDefaultsWithNoFileOrEnv(t *testing.T) {
	v := viper.New()
	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, Defaults(), cfg)
}

func TestLoadAppliesEnvironmentOverride(t *testing.T) {
	t.Setenv("GLITCHSCRIPTD_SLOT_COUNT", "8")
	v := viper.New()
	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.SlotCount)
	require.Equal(t, Defaults().SlotCap, cfg.SlotCap)
}

func TestLoadAppliesConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/glitchscriptd.yaml"
	require.NoError(t, os.WriteFile(path, []byte("slot_cap: 10\nlink_queue_bound: 128\n"), 0o644))

	v := viper.New()
	v.SetConfigFile(path)
	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, 10, cfg.SlotCap)
	require.Equal(t, 128, cfg.LinkQueueBound)
	require.Equal(t, Defaults().SlotCount, cfg.SlotCount)
}

func TestLoadParsesDurationFields(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/glitchscriptd.yaml"
	require.NoError(t, os.WriteFile(path, []byte("watchdog_period: 2s\ntimer_resolution: 250ms\n"), 0o644))

	v := viper.New()
	v.SetConfigFile(path)
	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, cfg.WatchdogPeriod)
	require.Equal(t, 250*time.Millisecond, cfg.TimerResolution)
}
