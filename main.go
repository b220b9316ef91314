// main.go - Entry point, CLI and process lifecycle

// Copyright (C) 2026 Wilfred Bos
// Licensed under the GNU GPL v3 license. See the LICENSE file for the terms and conditions.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

type styles struct {
	banner lipgloss.Style
	ready  lipgloss.Style
	info   lipgloss.Style
	err    lipgloss.Style
}

func newStyles() styles {
	return styles{
		banner: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.ANSIColor(6)),
		ready:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.ANSIColor(2)),
		info:   lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(8)),
		err:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.ANSIColor(1)),
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "sid-device",
		Short:         "Network SID Device: emulated SID sound chips over TCP",
		Long:          "sid-device exposes emulated SID sound chips as a network peripheral.\nSID players connect over TCP, stream cycle-stamped register writes, and\nthe device renders them to the local audio output in real time.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(v)
			if err != nil {
				return err
			}
			return runDevice(cmd.Context(), cfg)
		},
	}

	if err := registerFlags(v, rootCmd.Flags()); err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
	}
	return rootCmd
}

// registerFlags declares the CLI flags and binds them to their config keys.
// A failed binding means a key/flag mismatch and must fail loudly.
func registerFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	flags.Int("port", NETWORK_PORT, "TCP/UDP port to serve on")
	flags.Bool("allow-external", false, "accept connections from other hosts (also enables discovery)")
	flags.Int("max-sids", DEFAULT_MAX_SIDS, "number of SID chip slots")
	flags.Int("sample-rate", DEFAULT_SAMPLE_RATE, "output sample rate in Hz")
	flags.Bool("digiboost", false, "boost 8580 sample playback volume")
	flags.Float64("filter-bias", DEFAULT_FILTER_BIAS, "6581 filter bias (0..1)")
	flags.String("record", "", "capture the mixed output to a WAV file")

	bindings := []struct {
		key  string
		flag string
	}{
		{"port", "port"},
		{"allow_external", "allow-external"},
		{"max_sids", "max-sids"},
		{"sample_rate", "sample-rate"},
		{"digiboost", "digiboost"},
		{"filter_bias", "filter-bias"},
		{"record_path", "record"},
	}
	for _, b := range bindings {
		if err := v.BindPFlag(b.key, flags.Lookup(b.flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", b.flag, err)
		}
	}
	return nil
}

func runDevice(parent context.Context, cfg Config) error {
	st := newStyles()
	fmt.Println(st.banner.Render("SID Device"))

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bank := NewChipBank(cfg.MaxSids, DEFAULT_QUEUE_CAPACITY, cfg.SampleRate)
	bank.ConfigureEngines(cfg.FilterBias, cfg.DigiBoost)
	renderer := NewAudioRenderer(bank, cfg.SampleRate)

	if cfg.RecordPath != "" {
		rec, err := NewWavRecorder(cfg.RecordPath, cfg.SampleRate)
		if err != nil {
			return err
		}
		defer rec.Close()
		renderer.SetRecorder(rec)
		fmt.Println(st.info.Render("recording to " + cfg.RecordPath))
	}

	events := &DeviceEvents{
		DeviceReady: func() {
			fmt.Println(st.ready.Render("audio device ready"))
		},
		DeviceError: func(err error) {
			fmt.Println(st.err.Render(fmt.Sprintf("audio device unavailable, running silent: %v", err)))
		},
		SessionConnected: func(remote string) {
			fmt.Println(st.info.Render("client connected: " + remote))
		},
		SessionDisconnected: func(remote string) {
			fmt.Println(st.info.Render("client disconnected: " + remote))
		},
	}

	server := NewServer(cfg, bank, renderer, events)
	if err := server.Listen(); err != nil {
		fmt.Println(st.err.Render(err.Error()))
		return err
	}
	fmt.Println(st.ready.Render(fmt.Sprintf("listening on %s (%d SID slots)", server.Addr(), cfg.MaxSids)))

	output := NewAudioOutput(renderer, cfg.SampleRate, events)
	if err := output.Start(); err != nil {
		return err
	}
	defer output.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(ctx)
	})
	if cfg.AllowExternal {
		discovery := NewDiscoveryResponder(cfg.Port)
		g.Go(func() error {
			return discovery.Serve(ctx)
		})
	}

	err := g.Wait()
	if err != nil {
		fmt.Println(st.err.Render(err.Error()))
	}
	return err
}
