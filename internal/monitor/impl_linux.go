//go:build linux

package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Hara602/fanguard/internal/analysis"
	"github.com/Hara602/fanguard/internal/fanotify"
	"github.com/Hara602/fanguard/internal/metrics"
	"github.com/Hara602/fanguard/internal/model"
	"github.com/Hara602/fanguard/internal/sysutil"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// eventChannel is the part of *fanotify.Channel the monitor uses.
type eventChannel interface {
	ReadEvents() ([]fanotify.Event, error)
	Respond(fanotify.Response) error
	Mark(flags fanotify.MarkFlags, mask fanotify.EventMask, dirFd int, path string) error
	Fd() int
	Close() error
}

type fanotifyMonitor struct {
	ch        eventChannel
	opts      Options
	rules     RuleMatcher
	inspector *analysis.TypeInspector
	metrics   *metrics.Metrics
	selfPid   int32

	events chan model.FileEvent

	mu      sync.Mutex
	watches map[string]fanotify.MarkFlags

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// New initializes a fanotify group. rules and inspector may be nil.
func New(opts Options, rules RuleMatcher, inspector *analysis.TypeInspector, m *metrics.Metrics) (FileMonitor, error) {
	class := fanotify.ClassNotif
	if opts.Permission {
		class = fanotify.ClassContent
	}
	ch, err := fanotify.Init(
		class|fanotify.CloseOnExec|fanotify.NonBlock|fanotify.UnlimitedQueue|fanotify.UnlimitedMarks,
		fanotify.OpenReadOnly|fanotify.OpenLargeFile|fanotify.OpenCloExec,
	)
	if err != nil {
		return nil, fmt.Errorf("fanotify init failed: %w", err)
	}
	return newMonitor(ch, opts, rules, inspector, m), nil
}

func newMonitor(ch eventChannel, opts Options, rules RuleMatcher, inspector *analysis.TypeInspector, m *metrics.Metrics) *fanotifyMonitor {
	if m == nil {
		m = metrics.New()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 500 * time.Millisecond
	}
	return &fanotifyMonitor{
		ch:        ch,
		opts:      opts,
		rules:     rules,
		inspector: inspector,
		metrics:   m,
		selfPid:   int32(os.Getpid()),
		events:    make(chan model.FileEvent, opts.QueueSize),
		watches:   make(map[string]fanotify.MarkFlags),
	}
}

func (f *fanotifyMonitor) Events() <-chan model.FileEvent { return f.events }

func (f *fanotifyMonitor) watchMask() fanotify.EventMask {
	mask := fanotify.Open | fanotify.CloseWrite | fanotify.OnDir | fanotify.EventOnChild
	if f.opts.Permission {
		mask |= fanotify.PermissionEvents
	}
	return mask
}

func (f *fanotifyMonitor) AddWatch(path string) error {
	mask := f.watchMask()
	granularity := fanotify.MarkInode
	if f.opts.MountMarks {
		granularity = fanotify.MarkMount
	}

	err := f.ch.Mark(fanotify.MarkAdd|granularity, mask, unix.AT_FDCWD, path)
	if err != nil && granularity == fanotify.MarkMount {
		// 如果 MARK_MOUNT 失败，退化为普通目录监控 (不递归)
		sysutil.Log.Warn("mount mark failed, falling back to inode mark",
			zap.String("path", path), zap.Error(err))
		granularity = fanotify.MarkInode
		err = f.ch.Mark(fanotify.MarkAdd|granularity, mask, unix.AT_FDCWD, path)
	}
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	f.mu.Lock()
	f.watches[path] = granularity
	f.metrics.Watches.Set(float64(len(f.watches)))
	f.mu.Unlock()
	return nil
}

func (f *fanotifyMonitor) RemoveWatch(path string) error {
	f.mu.Lock()
	granularity, ok := f.watches[path]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("watch %s: not watched", path)
	}

	if err := f.ch.Mark(fanotify.MarkRemove|granularity, f.watchMask(), unix.AT_FDCWD, path); err != nil {
		return fmt.Errorf("unwatch %s: %w", path, err)
	}

	f.mu.Lock()
	delete(f.watches, path)
	f.metrics.Watches.Set(float64(len(f.watches)))
	f.mu.Unlock()
	return nil
}

func (f *fanotifyMonitor) Start(ctx context.Context) {
	ctx, f.cancel = context.WithCancel(ctx)
	f.done = make(chan struct{})
	go f.run(ctx)
}

// Stop ends the loop and closes the group; the kernel allows any permission
// event still queued.
func (f *fanotifyMonitor) Stop() {
	f.stopOnce.Do(func() {
		if f.cancel != nil {
			f.cancel()
			<-f.done
		}
		if err := f.ch.Close(); err != nil {
			sysutil.Log.Warn("closing fanotify channel", zap.Error(err))
		}
	})
}

func (f *fanotifyMonitor) run(ctx context.Context) {
	defer close(f.done)
	defer close(f.events)

	timeout := int(f.opts.PollTimeout / time.Millisecond)
	for ctx.Err() == nil {
		fds := []unix.PollFd{{Fd: int32(f.ch.Fd()), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, timeout)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			sysutil.Log.Error("poll fanotify descriptor", zap.Error(err))
			return
		}
		if n == 0 {
			continue
		}
		if err := f.readOnce(); err != nil {
			sysutil.Log.Error("fanotify read failed, monitor stopped", zap.Error(err))
			return
		}
	}
}

func (f *fanotifyMonitor) readOnce() error {
	return f.handleRead(f.ch.ReadEvents())
}

// handleRead handles one read worth of events. Only I/O failures are
// returned.
func (f *fanotifyMonitor) handleRead(events []fanotify.Event, err error) error {
	switch {
	case errors.Is(err, fanotify.ErrWouldBlock):
		return nil
	case errors.Is(err, fanotify.ErrCorruptStream):
		// 已解析的事件照常处理
		f.metrics.DecodeErrors.Inc()
		sysutil.Log.Error("corrupt fanotify read", zap.Error(err), zap.Int("decoded", len(events)))
	case err != nil:
		return err
	}
	for i := range events {
		f.handle(&events[i])
	}
	return nil
}

// handle answers ev if required, publishes it and closes its file.
func (f *fanotifyMonitor) handle(ev *fanotify.Event) {
	defer func() {
		if err := ev.Close(); err != nil {
			sysutil.Log.Warn("closing event file", zap.Error(err))
		}
	}()

	op := ev.Mask.String()
	f.metrics.Events.WithLabelValues(op).Inc()

	if ev.Overflowed() {
		f.metrics.Overflows.Inc()
		sysutil.Log.Warn("fanotify queue overflow, events lost", zap.String("op", op))
		fe := model.FileEvent{PID: ev.Pid, Operation: op, Overflow: true, TimeStamp: time.Now()}
		if ev.IsPermission() && ev.Fd() >= 0 {
			fe.Verdict = f.respond(ev, fanotify.Allow)
		}
		f.publish(fe)
		return
	}

	path, err := sysutil.FdPath(int(ev.Fd()))
	if err != nil {
		path = "unknown"
	}
	fe := model.FileEvent{
		PID:       ev.Pid,
		ProcName:  sysutil.ProcName(int(ev.Pid)),
		FilePath:  path,
		Operation: op,
		TimeStamp: time.Now(),
	}

	if ev.IsPermission() {
		verdict, reason := f.decide(ev, fe.FilePath, fe.ProcName)
		fe.Reason = reason
		fe.Verdict = f.respond(ev, verdict)
	}

	if ev.Mask.Contains(fanotify.CloseWrite) && f.opts.Quarantine {
		f.quarantine(ev, path)
	}

	f.publish(fe)
}

func (f *fanotifyMonitor) decide(ev *fanotify.Event, path, proc string) (fanotify.Verdict, string) {
	if ev.Pid == f.selfPid {
		return fanotify.Allow, ""
	}
	if f.rules != nil {
		denied, reason, err := f.rules.MatchFile(path, proc)
		if err != nil {
			sysutil.Log.Error("policy lookup failed, allowing", zap.String("file", path), zap.Error(err))
			return fanotify.Allow, ""
		}
		if denied {
			return fanotify.Deny, reason
		}
	}
	if f.opts.BlockMasquerade && f.inspector != nil && ev.Mask.Contains(fanotify.OpenPerm) {
		res, err := f.inspector.InspectReader(path, ev.File)
		if err != nil {
			sysutil.Log.Debug("filetype inspect failed", zap.String("file", path), zap.Error(err))
			return fanotify.Allow, ""
		}
		if res.IsMasquerade && res.RiskLevel == analysis.RiskHigh {
			return fanotify.Deny, res.Message
		}
	}
	return fanotify.Allow, ""
}

// respond writes the verdict and returns its name for the published event.
func (f *fanotifyMonitor) respond(ev *fanotify.Event, v fanotify.Verdict) string {
	if err := f.ch.Respond(ev.Response(v)); err != nil {
		sysutil.Log.Error("fanotify response failed",
			zap.Int32("fd", ev.Fd()), zap.Stringer("verdict", v), zap.Error(err))
		return "error"
	}
	f.metrics.Verdicts.WithLabelValues(v.String()).Inc()
	return v.String()
}

func (f *fanotifyMonitor) quarantine(ev *fanotify.Event, path string) {
	if f.inspector == nil || ev.File == nil {
		return
	}
	res, err := f.inspector.InspectReader(path, ev.File)
	if err != nil {
		sysutil.LogSugar.Infof("filetype inspect failed:%s, err:%v", path, err)
		return
	}
	if !res.IsMasquerade {
		return
	}
	sysutil.Log.Warn("masquerade file found",
		zap.String("file", path), zap.String("risk", res.RiskLevel), zap.String("detail", res.Message))
	if res.RiskLevel == analysis.RiskHigh {
		if err := os.Rename(path, path+".quarantine"); err != nil {
			sysutil.Log.Error("quarantine failed", zap.String("file", path), zap.Error(err))
		}
	}
}

func (f *fanotifyMonitor) publish(fe model.FileEvent) {
	select {
	case f.events <- fe:
	default:
		f.metrics.DroppedEvents.Inc()
	}
}
