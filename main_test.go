// main_test.go - CLI flag to config key bindings

// Copyright (C) 2026 Wilfred Bos
// Licensed under the GNU GPL v3 license. See the LICENSE file for the terms and conditions.

package main

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestRegisterFlagsBindsEveryKey(t *testing.T) {
	v := viper.New()
	flags := pflag.NewFlagSet("sid-device", pflag.ContinueOnError)
	require.NoError(t, registerFlags(v, flags))

	require.NoError(t, flags.Parse([]string{
		"--port=7581",
		"--allow-external",
		"--max-sids=4",
		"--sample-rate=44100",
		"--digiboost",
		"--filter-bias=0.5",
		"--record=/tmp/capture.wav",
	}))

	cfg, err := LoadConfig(v)
	require.NoError(t, err)
	require.Equal(t, 7581, cfg.Port)
	require.True(t, cfg.AllowExternal)
	require.Equal(t, 4, cfg.MaxSids)
	require.Equal(t, 44100, cfg.SampleRate)
	require.True(t, cfg.DigiBoost)
	require.InDelta(t, 0.5, cfg.FilterBias, 1e-9)
	require.Equal(t, "/tmp/capture.wav", cfg.RecordPath)
}

func TestRegisterFlagsDefaultsPassThrough(t *testing.T) {
	v := viper.New()
	flags := pflag.NewFlagSet("sid-device", pflag.ContinueOnError)
	require.NoError(t, registerFlags(v, flags))
	require.NoError(t, flags.Parse(nil))

	cfg, err := LoadConfig(v)
	require.NoError(t, err)
	require.Equal(t, NETWORK_PORT, cfg.Port)
	require.Equal(t, DEFAULT_MAX_SIDS, cfg.MaxSids)
	require.Equal(t, DEFAULT_SAMPLE_RATE, cfg.SampleRate)
}
