//go:build linux

package fanotify

import (
	"bytes"
	"fmt"
	"os"

	"github.com/lunixbochs/struc"
	"golang.org/x/sys/unix"
)

const (
	// HeaderSize is sizeof(struct fanotify_event_metadata).
	HeaderSize = 24

	// MetadataVersion is the only record layout this decoder accepts.
	MetadataVersion = unix.FANOTIFY_METADATA_VERSION

	// NoFD is the descriptor value of records that carry no file.
	NoFD int32 = -1

	// ReadBufferSize is the capacity of a single ReadEvents call.
	ReadBufferSize = 4096
)

// header mirrors struct fanotify_event_metadata.
type header struct {
	EventLen    uint32
	Vers        uint8
	Reserved    uint8
	MetadataLen uint16
	Mask        uint64
	Fd          int32
	Pid         int32
}

// readHeader unpacks the header at the start of b. len(b) must be at least
// HeaderSize; fields are read one at a time so b needs no alignment.
func readHeader(b []byte) (header, error) {
	var h header
	err := struc.UnpackWithOptions(bytes.NewReader(b[:HeaderSize]), &h, &_popts)
	return h, err
}

// Decode splits buf into events in delivery order and takes ownership of
// every descriptor they carry. Trailing bytes shorter than a header are
// ignored.
//
// On a *DecodeError the events decoded before the bad record are still
// returned and must be closed by the caller; the bad record and everything
// after it are discarded without touching their descriptors.
func Decode(buf []byte) ([]Event, error) {
	var events []Event
	off := 0
	for len(buf)-off >= HeaderSize {
		remaining := len(buf) - off
		h, err := readHeader(buf[off:])
		if err != nil {
			return events, &DecodeError{
				Offset:    off,
				Remaining: remaining,
				Reason:    "unpack header: " + err.Error(),
			}
		}
		if err := checkHeader(h, off, remaining); err != nil {
			return events, err
		}
		events = append(events, newEvent(h))
		off += int(h.EventLen)
	}
	return events, nil
}

func checkHeader(h header, off, remaining int) error {
	fail := func(format string, args ...any) error {
		return &DecodeError{
			Offset:    off,
			Length:    h.EventLen,
			Remaining: remaining,
			Reason:    fmt.Sprintf(format, args...),
		}
	}
	switch {
	case h.EventLen == 0:
		return fail("zero record length")
	case h.EventLen < HeaderSize:
		return fail("record length below header size %d", HeaderSize)
	case uint64(h.EventLen) > uint64(remaining):
		return fail("record extends past end of buffer")
	case h.Vers != MetadataVersion:
		return fail("metadata version %d, want %d", h.Vers, MetadataVersion)
	}
	return nil
}

func newEvent(h header) Event {
	ev := Event{
		Mask: MaskFromBits(h.Mask),
		Pid:  h.Pid,
		fd:   h.Fd,
	}
	// Negative values other than NoFD are error codes on newer kernels;
	// neither names a descriptor we own.
	if h.Fd >= 0 {
		ev.File = os.NewFile(uintptr(h.Fd), fmt.Sprintf("fanotify-event:%d", h.Fd))
	}
	return ev
}
