package policy

import (
	"fmt"
	"os"
	"path/filepath"
)

// USBDevicesDir is the sysfs directory holding USB devices by bus id.
var USBDevicesDir = "/sys/bus/usb/devices"

// BlockDevice 通过 Sysfs 禁用设备
// busID 类似于 "1-1.2" (从 uevent 获取)
func BlockDevice(busID string) error {
	if busID == "" || busID != filepath.Base(busID) {
		return fmt.Errorf("block failed: invalid bus id %q", busID)
	}
	path := filepath.Join(USBDevicesDir, busID, "authorized")
	// 写入 "0" 代表物理层级禁用
	if err := os.WriteFile(path, []byte("0"), 0644); err != nil {
		return fmt.Errorf("block failed: %w", err)
	}
	return nil
}
