package ramdisk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapiddisk/rapiddisk-go/blkerr"
)

func TestAttachRejectsNonSectorMultipleSize(t *testing.T) {
	ns := NewNamespace(nil)
	_, err := ns.Attach(1, 511)
	require.Error(t, err)
	assert.Equal(t, blkerr.InvalidArgument, blkerr.CodeOf(err))
}

func TestAttachRejectsDuplicateID(t *testing.T) {
	ns := NewNamespace(nil)
	_, err := ns.Attach(1, 4096)
	require.NoError(t, err)
	_, err = ns.Attach(1, 4096)
	require.Error(t, err)
}

func TestAttachRejectsOutOfRangeID(t *testing.T) {
	ns := NewNamespace(nil)
	_, err := ns.Attach(MaxVolumeID, 4096)
	require.Error(t, err)
	_, err = ns.Attach(-1, 4096)
	require.Error(t, err)
}

func TestLookupUnknownIsNotFound(t *testing.T) {
	ns := NewNamespace(nil)
	_, err := ns.Lookup(7)
	require.Error(t, err)
	assert.Equal(t, blkerr.NotFound, blkerr.CodeOf(err))
}

func TestDetachRejectedWhileHandleOpen(t *testing.T) {
	ns := NewNamespace(nil)
	vol, err := ns.Attach(1, 4096)
	require.NoError(t, err)
	vol.Open()

	err = ns.Detach(1)
	require.Error(t, err)
	assert.Equal(t, blkerr.Busy, blkerr.CodeOf(err))

	vol.Close()
	require.NoError(t, ns.Detach(1))
	_, err = ns.Lookup(1)
	require.Error(t, err)
}

func TestResizeRejectsShrink(t *testing.T) {
	ns := NewNamespace(nil)
	_, err := ns.Attach(1, 8192)
	require.NoError(t, err)

	err = ns.Resize(1, 4096)
	require.Error(t, err)

	require.NoError(t, ns.Resize(1, 16384))
	vol, _ := ns.Lookup(1)
	assert.Equal(t, uint64(32), vol.CapacitySectors())
}

func TestSetLockBlocksWritesNotReads(t *testing.T) {
	ns := NewNamespace(nil)
	vol, err := ns.Attach(1, 4096)
	require.NoError(t, err)

	buf := make([]byte, 512)
	require.NoError(t, vol.WriteAt(context.Background(), buf, 0))

	require.NoError(t, ns.SetLock(1, true))
	err = vol.WriteAt(context.Background(), buf, 0)
	require.Error(t, err)
	assert.Equal(t, blkerr.ReadOnly, blkerr.CodeOf(err))

	// Reads still succeed while locked.
	require.NoError(t, vol.ReadAt(context.Background(), buf, 0))
}

func TestFlushRejectedWithMultipleHandles(t *testing.T) {
	ns := NewNamespace(nil)
	vol, err := ns.Attach(1, 4096)
	require.NoError(t, err)
	vol.Open()
	vol.Open()

	err = ns.Flush(1)
	require.Error(t, err)
	assert.Equal(t, blkerr.Busy, blkerr.CodeOf(err))
}

func TestFlushDropsPagesAndResetsStats(t *testing.T) {
	ns := NewNamespace(nil)
	vol, err := ns.Attach(1, 4096)
	require.NoError(t, err)

	buf := make([]byte, 512)
	require.NoError(t, vol.WriteAt(context.Background(), buf, 0))
	require.NoError(t, ns.Flush(1))

	st := vol.GetStats()
	assert.Equal(t, uint64(0), st.MaxBlkAlloc)
	assert.Equal(t, int64(0), st.MaxPageCount)
}

func TestParseMessageAttachDetachResize(t *testing.T) {
	ns := NewNamespace(nil)
	require.NoError(t, ns.ParseMessage("attach 3 4096"))
	vol, err := ns.Lookup(3)
	require.NoError(t, err)
	assert.Equal(t, int32(3), vol.ID())

	require.NoError(t, ns.ParseMessage("resize 3 8192"))
	assert.Equal(t, uint64(16), vol.CapacitySectors())

	require.NoError(t, ns.ParseMessage("detach 3"))
	_, err = ns.Lookup(3)
	require.Error(t, err)
}

func TestParseMessageRejectsUnknownVerb(t *testing.T) {
	ns := NewNamespace(nil)
	err := ns.ParseMessage("frobnicate 1")
	require.Error(t, err)
}

func TestDevicePathUsesPrefix(t *testing.T) {
	assert.Equal(t, "/dev/rd5", DevicePath(5))
}
