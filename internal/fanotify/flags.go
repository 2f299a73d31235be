//go:build linux

package fanotify

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// InitFlags configures a notification group at creation time.
type InitFlags uint32

const (
	ClassPreContent InitFlags = unix.FAN_CLASS_PRE_CONTENT
	ClassContent    InitFlags = unix.FAN_CLASS_CONTENT
	ClassNotif      InitFlags = unix.FAN_CLASS_NOTIF
	CloseOnExec     InitFlags = unix.FAN_CLOEXEC
	NonBlock        InitFlags = unix.FAN_NONBLOCK
	UnlimitedQueue  InitFlags = unix.FAN_UNLIMITED_QUEUE
	UnlimitedMarks  InitFlags = unix.FAN_UNLIMITED_MARKS
)

// Union returns f with the bits of o added.
func (f InitFlags) Union(o InitFlags) InitFlags { return f | o }

// Contains reports whether every bit of o is set in f.
func (f InitFlags) Contains(o InitFlags) bool { return f&o == o }

// EventOpenFlags are the open(2) flags applied to the descriptors the kernel
// opens for each event.
type EventOpenFlags uint32

const (
	OpenReadOnly  EventOpenFlags = unix.O_RDONLY
	OpenWriteOnly EventOpenFlags = unix.O_WRONLY
	OpenReadWrite EventOpenFlags = unix.O_RDWR
	OpenLargeFile EventOpenFlags = unix.O_LARGEFILE
	OpenCloExec   EventOpenFlags = unix.O_CLOEXEC
)

func (f EventOpenFlags) Union(o EventOpenFlags) EventOpenFlags { return f | o }

func (f EventOpenFlags) Contains(o EventOpenFlags) bool { return f&o == o }

// MarkFlags select the mark operation and its granularity.
type MarkFlags uint32

const (
	MarkAdd               MarkFlags = unix.FAN_MARK_ADD
	MarkRemove            MarkFlags = unix.FAN_MARK_REMOVE
	MarkFlush             MarkFlags = unix.FAN_MARK_FLUSH
	MarkDontFollow        MarkFlags = unix.FAN_MARK_DONT_FOLLOW
	MarkOnlyDir           MarkFlags = unix.FAN_MARK_ONLYDIR
	MarkIgnoredMask       MarkFlags = unix.FAN_MARK_IGNORED_MASK
	MarkIgnoredSurvModify MarkFlags = unix.FAN_MARK_IGNORED_SURV_MODIFY
	MarkInode             MarkFlags = unix.FAN_MARK_INODE
	MarkMount             MarkFlags = unix.FAN_MARK_MOUNT
	MarkFilesystem        MarkFlags = unix.FAN_MARK_FILESYSTEM // Linux >= 4.20
)

func (f MarkFlags) Union(o MarkFlags) MarkFlags { return f | o }

func (f MarkFlags) Contains(o MarkFlags) bool { return f&o == o }

// EventMask is the set of event kinds carried by a record or requested by a
// mark.
type EventMask uint64

const (
	Access        EventMask = unix.FAN_ACCESS
	Modify        EventMask = unix.FAN_MODIFY
	CloseWrite    EventMask = unix.FAN_CLOSE_WRITE
	CloseNoWrite  EventMask = unix.FAN_CLOSE_NOWRITE
	Open          EventMask = unix.FAN_OPEN
	QueueOverflow EventMask = unix.FAN_Q_OVERFLOW
	OpenPerm      EventMask = unix.FAN_OPEN_PERM
	AccessPerm    EventMask = unix.FAN_ACCESS_PERM
	OnDir         EventMask = unix.FAN_ONDIR
	EventOnChild  EventMask = unix.FAN_EVENT_ON_CHILD
	Close         EventMask = unix.FAN_CLOSE

	// PermissionEvents are the kinds that block the accessing process until
	// a response is written.
	PermissionEvents = OpenPerm | AccessPerm
)

var maskNames = []struct {
	bit  EventMask
	name string
}{
	{Access, "ACCESS"},
	{Modify, "MODIFY"},
	{CloseWrite, "CLOSE_WRITE"},
	{CloseNoWrite, "CLOSE_NOWRITE"},
	{Open, "OPEN"},
	{QueueOverflow, "Q_OVERFLOW"},
	{OpenPerm, "OPEN_PERM"},
	{AccessPerm, "ACCESS_PERM"},
	{OnDir, "ONDIR"},
	{EventOnChild, "EVENT_ON_CHILD"},
}

const knownEventMask = Access | Modify | CloseWrite | CloseNoWrite | Open |
	QueueOverflow | OpenPerm | AccessPerm | OnDir | EventOnChild

// MaskFromBits builds an EventMask from a raw kernel mask, discarding bits
// this package does not know about.
func MaskFromBits(bits uint64) EventMask {
	return EventMask(bits) & knownEventMask
}

// Bits returns the raw value passed to the kernel.
func (m EventMask) Bits() uint64 { return uint64(m) }

func (m EventMask) Union(o EventMask) EventMask { return m | o }

func (m EventMask) Intersection(o EventMask) EventMask { return m & o }

func (m EventMask) Difference(o EventMask) EventMask { return m &^ o }

// Contains reports whether every bit of o is set in m.
func (m EventMask) Contains(o EventMask) bool { return m&o == o }

// Intersects reports whether m and o share at least one bit.
func (m EventMask) Intersects(o EventMask) bool { return m&o != 0 }

func (m EventMask) IsEmpty() bool { return m == 0 }

func (m EventMask) String() string {
	if m == 0 {
		return "0"
	}
	var parts []string
	rest := m
	for _, n := range maskNames {
		if m&n.bit != 0 {
			parts = append(parts, n.name)
			rest &^= n.bit
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint64(rest)))
	}
	return strings.Join(parts, "|")
}
