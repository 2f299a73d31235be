package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/Hara602/fanguard/internal/config"
	"github.com/Hara602/fanguard/internal/policy"
	"github.com/spf13/cobra"
)

func openStore(path string) (*policy.Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	return policy.Open(path)
}

func newRuleCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rule",
		Short: "Manage file access rules",
	}

	var rule policy.FileRule
	add := &cobra.Command{
		Use:   "add",
		Short: "Deny access by path prefix or process name",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.AddFileRule(rule); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s %s\n", rule.Kind, rule.Pattern)
			return nil
		},
	}
	add.Flags().StringVar(&rule.Kind, "kind", policy.KindPathPrefix, "rule kind: path_prefix or process")
	add.Flags().StringVar(&rule.Pattern, "pattern", "", "path prefix or process name")
	add.Flags().StringVar(&rule.Reason, "reason", "", "reason reported on deny")
	_ = add.MarkFlagRequired("pattern")

	list := &cobra.Command{
		Use:   "list",
		Short: "List file access rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()
			rules, err := store.FileRules()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tPATTERN\tREASON")
			for _, r := range rules {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Kind, r.Pattern, r.Reason)
			}
			return tw.Flush()
		},
	}

	var rmKind, rmPattern string
	remove := &cobra.Command{
		Use:   "remove",
		Short: "Remove a file access rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()
			removed, err := store.RemoveFileRule(rmKind, rmPattern)
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no rule %s %s", rmKind, rmPattern)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s %s\n", rmKind, rmPattern)
			return nil
		},
	}
	remove.Flags().StringVar(&rmKind, "kind", policy.KindPathPrefix, "rule kind")
	remove.Flags().StringVar(&rmPattern, "pattern", "", "rule pattern")
	_ = remove.MarkFlagRequired("pattern")

	cmd.AddCommand(add, list, remove)
	return cmd
}

func newDeviceCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Manage the USB device block list",
	}

	var vid, pid, serial, reason string
	block := &cobra.Command{
		Use:   "block",
		Short: "Block a USB device when it is plugged in",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.AddDeviceRule(vid, pid, serial, reason); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "blocked %s:%s %s\n", vid, pid, serial)
			return nil
		},
	}
	block.Flags().StringVar(&vid, "vid", "", "vendor id")
	block.Flags().StringVar(&pid, "pid", "", "product id")
	block.Flags().StringVar(&serial, "serial", "", "serial number")
	block.Flags().StringVar(&reason, "reason", "", "reason")
	_ = block.MarkFlagRequired("vid")
	_ = block.MarkFlagRequired("pid")

	cmd.AddCommand(block)
	return cmd
}
