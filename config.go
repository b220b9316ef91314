// config.go - Startup configuration

// Copyright (C) 2026 Wilfred Bos
// Licensed under the GNU GPL v3 license. See the LICENSE file for the terms and conditions.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	DEFAULT_SAMPLE_RATE = 48000
	DEFAULT_MAX_SIDS    = 8
	DEFAULT_FILTER_BIAS = 0.24 // 6581 filter bias, matching the classic default of 24/100
)

// Config is the resolved, immutable startup configuration. Values come from
// defaults, an optional config.json and SID_DEVICE_* environment variables,
// in that order of precedence (flags override on top, in main).
type Config struct {
	Port          int
	AllowExternal bool
	MaxSids       int
	SampleRate    int
	DigiBoost     bool
	FilterBias    float64
	RecordPath    string
}

// LoadConfig resolves the configuration from the given viper instance.
// Passing nil uses a fresh one; tests inject their own with Set calls.
func LoadConfig(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	v.SetDefault("port", NETWORK_PORT)
	v.SetDefault("allow_external", false)
	v.SetDefault("max_sids", DEFAULT_MAX_SIDS)
	v.SetDefault("sample_rate", DEFAULT_SAMPLE_RATE)
	v.SetDefault("digiboost", false)
	v.SetDefault("filter_bias", DEFAULT_FILTER_BIAS)
	v.SetDefault("record_path", "")

	v.SetEnvPrefix("SID_DEVICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if dir, err := os.UserConfigDir(); err == nil {
		v.SetConfigName("config")
		v.SetConfigType("json")
		v.AddConfigPath(filepath.Join(dir, "sid-device"))
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := Config{
		Port:          v.GetInt("port"),
		AllowExternal: v.GetBool("allow_external"),
		MaxSids:       v.GetInt("max_sids"),
		SampleRate:    v.GetInt("sample_rate"),
		DigiBoost:     v.GetBool("digiboost"),
		FilterBias:    v.GetFloat64("filter_bias"),
		RecordPath:    v.GetString("record_path"),
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.MaxSids < 1 || c.MaxSids > 32 {
		return fmt.Errorf("max sids %d out of range 1..32", c.MaxSids)
	}
	if c.SampleRate < 8000 || c.SampleRate > 192000 {
		return fmt.Errorf("sample rate %d out of range", c.SampleRate)
	}
	if c.FilterBias < 0 || c.FilterBias > 1 {
		return fmt.Errorf("filter bias %.2f out of range 0..1", c.FilterBias)
	}
	return nil
}
