package model

import "time"

// USBEvent 硬件插拔事件
type USBEvent struct {
	Action     string // "add", "remove"
	DevicePath string // e.g., /dev/sdb1
	MountPoint string // e.g., /media/usb
	BusID      string // e.g., 1-1.2
	VendorID   string
	ProductID  string
	Product    string
	Serial     string
	DeviceType string // "udisk", "BADUSB_SUSPECT", "other"
	TimeStamp  time.Time
}

// FileEvent is one handled fanotify event.
type FileEvent struct {
	PID       int32  // 进程ID
	ProcName  string // 进程名
	FilePath  string
	Operation string // e.g. "OPEN_PERM|ONDIR"
	Verdict   string // "allow" / "deny" for permission events, empty otherwise
	Reason    string
	Overflow  bool
	TimeStamp time.Time
}
