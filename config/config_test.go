package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoConfigFile(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load(flags)
	require.NoError(t, err)
	require.Equal(t, Defaults().ListenAddress, cfg.ListenAddress)
	require.Equal(t, Defaults().ExecutorWorkers, cfg.ExecutorWorkers)
}

func TestLoadFlagOverridesDefault(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)
	require.NoError(t, flags.Parse([]string{"--executor-workers=16", "--listen-address=:9999"}))

	cfg, err := Load(flags)
	require.NoError(t, err)
	require.Equal(t, 16, cfg.ExecutorWorkers)
	require.Equal(t, ":9999", cfg.ListenAddress)
}

func TestApplyLoggingRejectsInvalidLevel(t *testing.T) {
	err := ApplyLogging(Config{LogLevel: "not-a-level"})
	require.Error(t, err)
}

func TestApplyLoggingAcceptsValidLevel(t *testing.T) {
	err := ApplyLogging(Config{LogLevel: "debug"})
	require.NoError(t, err)
}
