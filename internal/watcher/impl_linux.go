//go:build linux

package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Hara602/fanguard/internal/analysis"
	"github.com/Hara602/fanguard/internal/model"
	"github.com/Hara602/fanguard/internal/sysutil"
	"github.com/pilebones/go-udev/netlink"
	"go.uber.org/zap"
)

// SysRoot is where sysfs is mounted.
var SysRoot = "/sys"

const mountTimeout = 3 * time.Second

type linuxWatcher struct {
	events chan model.USBEvent
	stop   chan struct{}
	once   sync.Once

	// waitForMount is sysutil.WaitForMount outside tests.
	waitForMount func(ctx context.Context, devPath string, timeout time.Duration) string
	mounts       func() ([]sysutil.Mount, error)
}

func newWatcher() *linuxWatcher {
	return &linuxWatcher{
		events:       make(chan model.USBEvent, 10),
		stop:         make(chan struct{}),
		waitForMount: sysutil.WaitForMount,
		mounts:       sysutil.ReadMounts,
	}
}

func (w *linuxWatcher) Start(ctx context.Context) (<-chan model.USBEvent, error) {
	// 监听 UDEV 事件,连接 NETLINK_KOBJECT_UEVENT
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return nil, err
	}
	queue := make(chan netlink.UEvent)
	errChan := make(chan error)
	quit := conn.Monitor(queue, errChan, nil)

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer conn.Close()
		defer cancel()

		// 在处理新事件前，先扫描已存在的设备
		go w.scanExistingUSB(ctx)

		for {
			select {
			case <-w.stop:
				close(quit)
				return
			case <-ctx.Done():
				close(quit)
				return
			case err := <-errChan:
				// 忽略底层网络错误，继续尝试
				sysutil.Log.Debug("udev monitor error", zap.Error(err))
			case uevent := <-queue:
				w.handleUdevEvent(ctx, uevent)
			}
		}
	}()
	return w.events, nil
}

func (w *linuxWatcher) Stop() {
	w.once.Do(func() { close(w.stop) })
}

func (w *linuxWatcher) handleUdevEvent(ctx context.Context, uevent netlink.UEvent) {
	if uevent.Env["SUBSYSTEM"] != "block" || uevent.Env["DEVTYPE"] != "partition" {
		return
	}
	switch uevent.Action {
	case netlink.ADD:
		go w.handleAdd(ctx, uevent)
	case netlink.REMOVE:
		w.emit(model.USBEvent{Action: "remove", DevicePath: devNode(uevent.Env["DEVNAME"]), TimeStamp: time.Now()})
	}
}

func devNode(name string) string {
	if name == "" || strings.HasPrefix(name, "/dev") {
		return name
	}
	return "/dev/" + name
}

func (w *linuxWatcher) handleAdd(ctx context.Context, uevent netlink.UEvent) {
	devName := devNode(uevent.Env["DEVNAME"])
	sysPath := filepath.Join(SysRoot, uevent.Env["DEVPATH"])

	// 向上回溯找到 USB 物理设备根目录
	usbRoot, ok := findUSBRoot(sysPath)
	if !ok {
		return
	}
	ev := describe(usbRoot)
	ev.Action = "add"
	ev.DevicePath = devName

	ev.MountPoint = w.waitForMount(ctx, devName, mountTimeout)
	if ev.MountPoint == "" {
		sysutil.Log.Warn("Device detected but mount point not found (timeout)", zap.String("dev", devName))
		return
	}
	w.emit(ev)
}

func (w *linuxWatcher) emit(ev model.USBEvent) {
	select {
	case w.events <- ev:
	case <-w.stop:
	}
}

// describe 采集设备信息
func describe(usbRoot string) model.USBEvent {
	_, devType := analysis.CheckBadUSB(usbRoot)
	return model.USBEvent{
		BusID:      filepath.Base(usbRoot),
		VendorID:   readFile(filepath.Join(usbRoot, "idVendor")),
		ProductID:  readFile(filepath.Join(usbRoot, "idProduct")),
		Serial:     readFile(filepath.Join(usbRoot, "serial")),
		Product:    readFile(filepath.Join(usbRoot, "product")),
		DeviceType: devType,
		TimeStamp:  time.Now(),
	}
}

// findUSBRoot 向上查找包含 idVendor 的目录（即 USB Device 根目录）
func findUSBRoot(path string) (string, bool) {
	dir := path
	// 向上回溯最多 10 层
	for i := 0; i < 10; i++ {
		dir = filepath.Dir(dir)
		if dir == "/" || dir == "." || dir == SysRoot {
			break
		}
		if _, err := os.Stat(filepath.Join(dir, "idVendor")); err == nil {
			return dir, true
		}
	}
	return "", false
}

func readFile(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(b))
}

// scanExistingUSB 扫描当前已挂载的文件系统，寻找遗漏的 USB 设备
func (w *linuxWatcher) scanExistingUSB(ctx context.Context) {
	mounts, err := w.mounts()
	if err != nil {
		sysutil.Log.Error("Failed to scan existing mounts", zap.Error(err))
		return
	}
	found := 0
	for _, m := range mounts {
		if ctx.Err() != nil {
			return
		}
		// 只关心 /dev/ 开头的设备，且不是 loop 设备
		if !strings.HasPrefix(m.Device, "/dev/") || strings.HasPrefix(m.Device, "/dev/loop") {
			continue
		}
		// 通过 /sys/class/block/{name} 回溯判断是否为 USB
		realSysPath, err := filepath.EvalSymlinks(filepath.Join(SysRoot, "class", "block", filepath.Base(m.Device)))
		if err != nil {
			continue
		}
		usbRoot, ok := findUSBRoot(realSysPath)
		if !ok {
			continue
		}
		ev := describe(usbRoot)
		ev.Action = "add"
		ev.DevicePath = m.Device
		ev.MountPoint = m.Path
		sysutil.Log.Info("Found existing USB device during scan",
			zap.String("mount", m.Path), zap.String("dev", m.Device))
		w.emit(ev)
		found++
	}
	if found == 0 {
		sysutil.Log.Debug("no existing USB mounts")
	}
}
