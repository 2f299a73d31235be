//go:build linux

package sysutil

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"time"
)

// MountsFile is the mount table consulted by the helpers below.
var MountsFile = "/proc/mounts"

// Mount is one line of the mount table.
type Mount struct {
	Device string
	Path   string
	FSType string
}

// ParseMounts reads /proc/mounts formatted lines.
func ParseMounts(r io.Reader) ([]Mount, error) {
	var mounts []Mount
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		mounts = append(mounts, Mount{
			Device: fields[0],
			Path:   unescapeMountPath(fields[1]),
			FSType: fields[2],
		})
	}
	return mounts, scanner.Err()
}

// The kernel octal-escapes space, tab, newline and backslash.
var mountPathReplacer = strings.NewReplacer(`\040`, " ", `\011`, "\t", `\012`, "\n", `\134`, `\`)

func unescapeMountPath(s string) string {
	return mountPathReplacer.Replace(s)
}

func ReadMounts() ([]Mount, error) {
	f, err := os.Open(MountsFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseMounts(f)
}

// WaitForMount 轮询 /proc/mounts 等待设备挂载
// udev 事件触发时文件系统可能还没挂载好，最多等待 timeout。
func WaitForMount(ctx context.Context, devPath string, timeout time.Duration) string {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if mounts, err := ReadMounts(); err == nil {
			for _, m := range mounts {
				if m.Device == devPath {
					return m.Path
				}
			}
		}
		select {
		case <-ctx.Done():
			return ""
		case <-ticker.C:
		}
	}
}
