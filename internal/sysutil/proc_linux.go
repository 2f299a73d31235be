//go:build linux

package sysutil

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ProcRoot is where procfs is mounted.
var ProcRoot = "/proc"

// ProcName returns the comm of pid.
func ProcName(pid int) string {
	b, err := os.ReadFile(filepath.Join(ProcRoot, strconv.Itoa(pid), "comm"))
	if err != nil {
		// 进程的文件不存在，说明进程已经退出了
		if os.IsNotExist(err) {
			return "process exited too fast"
		}
		return "unknown"
	}
	return strings.TrimSpace(string(b))
}

// FdPath resolves the path of a descriptor held by this process.
func FdPath(fd int) (string, error) {
	return os.Readlink(filepath.Join(ProcRoot, "self", "fd", strconv.Itoa(fd)))
}
