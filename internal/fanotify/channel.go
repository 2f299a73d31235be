//go:build linux

package fanotify

import (
	"golang.org/x/sys/unix"
)

// Channel owns one fanotify group descriptor.
type Channel struct {
	fd int
}

// Init creates a notification group.
func Init(flags InitFlags, eventFlags EventOpenFlags) (*Channel, error) {
	fd, err := unix.FanotifyInit(uint(flags), uint(eventFlags))
	if err != nil {
		return nil, &SystemError{Op: "fanotify_init", Err: err}
	}
	return newChannel(fd), nil
}

func newChannel(fd int) *Channel {
	return &Channel{fd: fd}
}

// Mark adds, removes or flushes a mark. path may be empty when dirFd names
// the object itself, or for MarkFlush.
func (c *Channel) Mark(flags MarkFlags, mask EventMask, dirFd int, path string) error {
	if c.fd < 0 {
		return ErrClosed
	}
	if err := unix.FanotifyMark(c.fd, uint(flags), mask.Bits(), dirFd, path); err != nil {
		return &SystemError{Op: "fanotify_mark " + path, Err: err}
	}
	return nil
}

// ReadEvents performs one read of up to ReadBufferSize bytes and decodes it.
// A zero-byte read yields no events. On a non-blocking channel with nothing
// queued it returns ErrWouldBlock.
//
// If the error is a *DecodeError the returned events are still valid and
// owned by the caller.
func (c *Channel) ReadEvents() ([]Event, error) {
	if c.fd < 0 {
		return nil, ErrClosed
	}
	var buf [ReadBufferSize]byte
	var n int
	for {
		var err error
		n, err = unix.Read(c.fd, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return nil, ErrWouldBlock
		}
		if err != nil {
			return nil, &IOError{Op: "read", Err: err}
		}
		break
	}
	if n == 0 {
		return nil, nil
	}
	return Decode(buf[:n])
}

// Respond writes r to the kernel, completing short writes.
func (c *Channel) Respond(r Response) error {
	if c.fd < 0 {
		return ErrClosed
	}
	b, err := r.MarshalBinary()
	if err != nil {
		return err
	}
	if err := writeFull(fdWriter(c.fd), b); err != nil {
		return &IOError{Op: "write response", Err: err}
	}
	return nil
}

// Fd returns the group descriptor for use with poll(2) and friends. The
// Channel keeps ownership.
func (c *Channel) Fd() int { return c.fd }

// Close releases the group descriptor. Permission events still pending are
// allowed by the kernel.
func (c *Channel) Close() error {
	if c.fd < 0 {
		return nil
	}
	fd := c.fd
	c.fd = -1
	if err := unix.Close(fd); err != nil {
		return &IOError{Op: "close", Err: err}
	}
	return nil
}

type fdWriter int

func (w fdWriter) Write(b []byte) (int, error) {
	for {
		n, err := unix.Write(int(w), b)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}
