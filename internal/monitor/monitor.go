package monitor

import (
	"context"
	"time"

	"github.com/Hara602/fanguard/internal/config"
	"github.com/Hara602/fanguard/internal/model"
)

type FileMonitor interface {
	// Start runs the event loop until ctx is done or Stop is called.
	Start(ctx context.Context)
	Stop()
	AddWatch(path string) error // 动态添加监控
	RemoveWatch(path string) error
	Events() <-chan model.FileEvent
}

// RuleMatcher decides whether a process may access a path.
type RuleMatcher interface {
	MatchFile(path, proc string) (bool, string, error)
}

type Options struct {
	Permission      bool
	MountMarks      bool
	BlockMasquerade bool
	Quarantine      bool
	PollTimeout     time.Duration
	QueueSize       int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Permission:      cfg.Permission,
		MountMarks:      cfg.MountMarks,
		BlockMasquerade: cfg.BlockMasquerade,
		Quarantine:      cfg.Quarantine,
		PollTimeout:     cfg.PollTimeout,
		QueueSize:       cfg.QueueSize,
	}
}
