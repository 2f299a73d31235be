package analysis

import (
	"os"
	"path/filepath"
	"strings"
)

// USB interface classes.
const (
	classHID     = "03"
	classStorage = "08"
)

// Device types reported by CheckBadUSB.
const (
	DeviceBadUSB  = "BADUSB_SUSPECT"
	DeviceUDisk   = "udisk"
	DeviceOther   = "other"
	DeviceUnknown = "unknown"
)

// CheckBadUSB 如果一个 USB 设备树下同时拥有 08(存储) 和 03(HID) 接口，则判定为 BadUSB
func CheckBadUSB(sysPath string) (bool, string) {
	files, err := os.ReadDir(sysPath)
	if err != nil {
		return false, DeviceUnknown
	}
	hasStorage := false
	hasHID := false
	for _, f := range files {
		// 遍历接口目录，例如 1-1:1.0
		if !strings.Contains(f.Name(), ":") {
			continue
		}
		content, _ := os.ReadFile(filepath.Join(sysPath, f.Name(), "bInterfaceClass"))
		switch strings.TrimSpace(string(content)) {
		case classHID:
			hasHID = true
		case classStorage:
			hasStorage = true
		}
	}
	switch {
	case hasStorage && hasHID:
		return true, DeviceBadUSB
	case hasStorage:
		return false, DeviceUDisk
	}
	return false, DeviceOther
}
