//go:build linux

package fanotify

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/lunixbochs/struc"
	"golang.org/x/sys/unix"
)

// Verdict is the answer to a permission event.
type Verdict uint32

const (
	Allow Verdict = unix.FAN_ALLOW
	Deny  Verdict = unix.FAN_DENY
)

// ResponseSize is the size of struct fanotify_response.
const ResponseSize = 8

func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return fmt.Sprintf("verdict(%d)", uint32(v))
	}
}

// Response releases the operation blocked behind the event whose descriptor
// number is Fd.
type Response struct {
	Fd      int32
	Verdict Verdict
}

// wireResponse mirrors struct fanotify_response.
type wireResponse struct {
	Fd       int32
	Response uint32
}

var _popts = struc.Options{Order: binary.NativeEndian}

// MarshalBinary encodes r in the layout the kernel reads: the descriptor as
// a native-endian int32 followed by the verdict as a native-endian uint32.
func (r Response) MarshalBinary() ([]byte, error) {
	var out bytes.Buffer
	out.Grow(ResponseSize)
	wire := wireResponse{Fd: r.Fd, Response: uint32(r.Verdict)}
	if err := struc.PackWithOptions(&out, &wire, &_popts); err != nil {
		return nil, fmt.Errorf("pack response: %w", err)
	}
	if out.Len() != ResponseSize {
		return nil, fmt.Errorf("pack response: got %d bytes, want %d", out.Len(), ResponseSize)
	}
	return out.Bytes(), nil
}

// writeFull writes all of b, continuing after short writes. A write that
// makes no progress without reporting an error is io.ErrShortWrite.
func writeFull(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		if n <= 0 {
			return io.ErrShortWrite
		}
		b = b[n:]
	}
	return nil
}
