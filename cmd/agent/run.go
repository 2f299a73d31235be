package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Hara602/fanguard/internal/analysis"
	"github.com/Hara602/fanguard/internal/config"
	"github.com/Hara602/fanguard/internal/metrics"
	"github.com/Hara602/fanguard/internal/model"
	"github.com/Hara602/fanguard/internal/monitor"
	"github.com/Hara602/fanguard/internal/policy"
	"github.com/Hara602/fanguard/internal/sysutil"
	"github.com/Hara602/fanguard/internal/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Monitor file access and answer permission events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context(), cfg)
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&cfg.WatchPaths, "watch", cfg.WatchPaths, "paths to mark at startup")
	f.BoolVar(&cfg.Permission, "permission", cfg.Permission, "answer OPEN_PERM/ACCESS_PERM events")
	f.BoolVar(&cfg.MountMarks, "mount-marks", cfg.MountMarks, "mark whole mounts instead of inodes")
	f.BoolVar(&cfg.BlockMasquerade, "block-masquerade", cfg.BlockMasquerade, "deny opening executables disguised by extension")
	f.BoolVar(&cfg.Quarantine, "quarantine", cfg.Quarantine, "rename disguised executables after they are written")
	f.BoolVar(&cfg.WatchUSB, "usb", cfg.WatchUSB, "watch newly mounted USB storage")
	f.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "listen address for /metrics")
	f.DurationVar(&cfg.PollTimeout, "poll-timeout", cfg.PollTimeout, "poll timeout of the event loop")
	f.IntVar(&cfg.QueueSize, "queue-size", cfg.QueueSize, "published event queue size")
	return cmd
}

func runAgent(ctx context.Context, cfg *config.Config) error {
	// Fanotify 需要 Root 权限
	if os.Geteuid() != 0 {
		return errors.New("must run as root (required by netlink/fanotify)")
	}
	sysutil.Log.Info("fanguard agent starting")

	store, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, m)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	fileMon, err := monitor.New(monitor.OptionsFromConfig(cfg), store, analysis.NewTypeInspector(), m)
	if err != nil {
		return err
	}

	// 捕获操作系统信号，优雅关闭
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fileMon.Start(ctx)
	defer fileMon.Stop()

	for _, p := range cfg.WatchPaths {
		if err := fileMon.AddWatch(p); err != nil {
			return err
		}
		sysutil.Log.Info("Monitoring started", zap.String("path", p))
	}

	var usbEvents <-chan model.USBEvent
	if cfg.WatchUSB {
		devWatcher := watcher.New()
		usbEvents, err = devWatcher.Start(ctx)
		if err != nil {
			return err
		}
		defer devWatcher.Stop()
	}

	for {
		select {
		case dev := <-usbEvents:
			handleUSB(dev, store, fileMon)

		case activity, ok := <-fileMon.Events():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("file monitor stopped")
			}
			logActivity(activity)

		case <-ctx.Done():
			sysutil.Log.Info("Shutting down...")
			return nil
		}
	}
}

func serveMetrics(addr string, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sysutil.Log.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

func handleUSB(dev model.USBEvent, store *policy.Store, fileMon monitor.FileMonitor) {
	switch dev.Action {
	case "add":
		sysutil.Log.Info("USB Connected",
			zap.String("mount", dev.MountPoint),
			zap.String("vid", dev.VendorID),
			zap.String("pid", dev.ProductID),
			zap.String("product", dev.Product),
			zap.String("type", dev.DeviceType),
		)
		if dev.DeviceType == analysis.DeviceBadUSB {
			sysutil.Log.Error("BADUSB DETECTED", zap.String("serial", dev.Serial))
		}
		if blocked, reason := store.IsDeviceBlocked(dev.VendorID, dev.ProductID, dev.Serial); blocked {
			sysutil.Log.Warn("Blocking USB device", zap.String("bus", dev.BusID), zap.String("reason", reason))
			if err := policy.BlockDevice(dev.BusID); err != nil {
				sysutil.Log.Error("Failed to block device", zap.Error(err))
			}
			return
		}
		if err := fileMon.AddWatch(dev.MountPoint); err != nil {
			sysutil.Log.Error("Failed to watch mount", zap.Error(err))
		} else {
			sysutil.Log.Info("Monitoring started", zap.String("path", dev.MountPoint))
		}
	case "remove":
		// 卸载时内核自动移除该挂载点上的 mark
		sysutil.Log.Info("USB Removed", zap.String("path", dev.DevicePath))
	}
}

func logActivity(activity model.FileEvent) {
	if activity.Overflow {
		sysutil.Log.Warn("Events lost (queue overflow)", zap.String("op", activity.Operation))
		return
	}
	fields := []zap.Field{
		zap.String("op", activity.Operation),
		zap.String("file", activity.FilePath),
		zap.String("process", activity.ProcName),
		zap.Int32("pid", activity.PID),
	}
	if activity.Verdict != "" {
		fields = append(fields, zap.String("verdict", activity.Verdict))
	}
	if activity.Reason != "" {
		fields = append(fields, zap.String("reason", activity.Reason))
	}
	if activity.Verdict == "deny" {
		sysutil.Log.Warn("File access denied", fields...)
		return
	}
	sysutil.Log.Info("File Activity", fields...)
}
