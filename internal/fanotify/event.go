//go:build linux

package fanotify

import (
	"errors"
	"os"

	"go.uber.org/multierr"
)

// Event is one decoded record. File, when non-nil, is an open descriptor
// owned by the caller and must be closed.
type Event struct {
	Mask EventMask
	File *os.File
	Pid  int32

	fd int32
}

// Overflowed reports whether the record signals dropped events, either by
// the overflow bit or by the absence of a descriptor.
func (e *Event) Overflowed() bool {
	return e.File == nil || e.Mask.Contains(QueueOverflow)
}

// IsPermission reports whether the kernel waits for a response to e.
func (e *Event) IsPermission() bool {
	return e.Mask.Intersects(PermissionEvents)
}

// Fd returns the descriptor number the kernel delivered, or NoFD. It stays
// valid after Close so a response can still be built.
func (e *Event) Fd() int32 { return e.fd }

// Response builds the reply for this event.
func (e *Event) Response(v Verdict) Response {
	return Response{Fd: e.fd, Verdict: v}
}

// Close releases the event's descriptor. It is safe to call more than once,
// including on different copies of the same Event.
func (e *Event) Close() error {
	if e.File == nil {
		return nil
	}
	if err := e.File.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

// CloseAll closes every event in events and returns the combined error.
func CloseAll(events []Event) error {
	var err error
	for i := range events {
		err = multierr.Append(err, events[i].Close())
	}
	return err
}
