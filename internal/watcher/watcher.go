package watcher

import (
	"context"

	"github.com/Hara602/fanguard/internal/model"
)

// DeviceWatcher reports removable storage as it is mounted and removed.
type DeviceWatcher interface {
	Start(ctx context.Context) (<-chan model.USBEvent, error)
	Stop()
}

func New() DeviceWatcher {
	return newWatcher()
}
