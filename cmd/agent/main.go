package main

import (
	"fmt"
	"os"

	"github.com/Hara602/fanguard/internal/config"
	"github.com/Hara602/fanguard/internal/sysutil"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Default()

	root := &cobra.Command{
		Use:           "fanguard",
		Short:         "fanotify file access guard",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			applyFlags(cmd, loaded, cfg)
			*cfg = *loaded
			if err := cfg.Validate(); err != nil {
				return err
			}
			return sysutil.InitLogger(cfg.LogLevel, cfg.LogDevelopment)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = sysutil.Log.Sync()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.DBPath, "db", cfg.DBPath, "policy database path")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	pf.BoolVar(&cfg.LogDevelopment, "log-dev", cfg.LogDevelopment, "development logging")

	root.AddCommand(newRunCmd(cfg), newRuleCmd(cfg), newDeviceCmd(cfg))
	return root
}

// applyFlags copies explicitly set flags from flagged over the environment
// values in loaded.
func applyFlags(cmd *cobra.Command, loaded, flagged *config.Config) {
	set := func(name string, apply func()) {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			apply()
		}
	}
	set("db", func() { loaded.DBPath = flagged.DBPath })
	set("log-level", func() { loaded.LogLevel = flagged.LogLevel })
	set("log-dev", func() { loaded.LogDevelopment = flagged.LogDevelopment })
	set("watch", func() { loaded.WatchPaths = flagged.WatchPaths })
	set("permission", func() { loaded.Permission = flagged.Permission })
	set("mount-marks", func() { loaded.MountMarks = flagged.MountMarks })
	set("block-masquerade", func() { loaded.BlockMasquerade = flagged.BlockMasquerade })
	set("quarantine", func() { loaded.Quarantine = flagged.Quarantine })
	set("usb", func() { loaded.WatchUSB = flagged.WatchUSB })
	set("metrics-addr", func() { loaded.MetricsAddr = flagged.MetricsAddr })
	set("poll-timeout", func() { loaded.PollTimeout = flagged.PollTimeout })
	set("queue-size", func() { loaded.QueueSize = flagged.QueueSize })
}
