//go:build linux

package fanotify

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptStream is matched by every *DecodeError.
	ErrCorruptStream = errors.New("fanotify: corrupt event stream")

	// ErrWouldBlock is returned by ReadEvents on a non-blocking channel with
	// no queued events.
	ErrWouldBlock = errors.New("fanotify: no events available")

	// ErrClosed is returned by every Channel operation after Close.
	ErrClosed = errors.New("fanotify: channel closed")
)

// SystemError reports that the kernel rejected an init or mark call.
type SystemError struct {
	Op  string
	Err error
}

func (e *SystemError) Error() string { return "fanotify: " + e.Op + ": " + e.Err.Error() }

func (e *SystemError) Unwrap() error { return e.Err }

// IOError reports a failed read or write on the channel descriptor.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return "fanotify: " + e.Op + ": " + e.Err.Error() }

func (e *IOError) Unwrap() error { return e.Err }

// DecodeError describes the first malformed record of a buffer. Offset is
// the byte position of that record.
type DecodeError struct {
	Offset    int
	Length    uint32
	Remaining int
	Reason    string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("fanotify: corrupt record at offset %d (len %d, %d bytes left): %s",
		e.Offset, e.Length, e.Remaining, e.Reason)
}

func (e *DecodeError) Is(target error) bool { return target == ErrCorruptStream }
