//go:build linux

package fanotify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventMaskAlgebra(t *testing.T) {
	m := Open.Union(OnDir)
	assert.True(t, m.Contains(Open))
	assert.True(t, m.Contains(Open|OnDir))
	assert.False(t, m.Contains(Open|Modify))
	assert.True(t, m.Intersects(Open|Modify))
	assert.False(t, m.Intersects(Modify))
	assert.Equal(t, OnDir, m.Intersection(OnDir|Access))
	assert.Equal(t, Open, m.Difference(OnDir))
	assert.True(t, EventMask(0).IsEmpty())
	assert.Equal(t, CloseWrite|CloseNoWrite, Close)
}

func TestEventMaskString(t *testing.T) {
	assert.Equal(t, "0", EventMask(0).String())
	assert.Equal(t, "OPEN_PERM", OpenPerm.String())
	assert.Equal(t, "CLOSE_WRITE|ONDIR", (CloseWrite | OnDir).String())
	assert.Equal(t, "OPEN|0x100000000", (Open | EventMask(1<<32)).String())
}

func TestMaskFromBits(t *testing.T) {
	assert.Equal(t, OpenPerm|AccessPerm, MaskFromBits(uint64(OpenPerm|AccessPerm)|1<<50))
	assert.Equal(t, EventMask(0), MaskFromBits(1<<63))
}

func TestFlagSets(t *testing.T) {
	f := ClassContent.Union(NonBlock)
	assert.True(t, f.Contains(NonBlock))
	assert.False(t, f.Contains(UnlimitedQueue))

	mf := MarkAdd.Union(MarkMount)
	assert.True(t, mf.Contains(MarkMount))
	assert.False(t, mf.Contains(MarkRemove))

	ef := OpenReadOnly.Union(OpenCloExec)
	assert.True(t, ef.Contains(OpenCloExec))
}
