package ramdisk

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarioS1RamDiskRoundTrip is the literal S1 end-to-end scenario from
// spec §8: attach, write a pattern, read an untouched range (expect zeros),
// then read the written range back.
func TestScenarioS1RamDiskRoundTrip(t *testing.T) {
	ns := NewNamespace(nil)
	vol, err := ns.Attach(0, 64*1024*1024)
	require.NoError(t, err)

	pattern := bytes.Repeat([]byte{0x2F}, 4096)
	require.NoError(t, vol.WriteAt(context.Background(), pattern, 0))

	untouched := make([]byte, 4096)
	require.NoError(t, vol.ReadAt(context.Background(), untouched, 65536/512))
	assert.Equal(t, bytes.Repeat([]byte{0x00}, 4096), untouched)

	written := make([]byte, 4096)
	require.NoError(t, vol.ReadAt(context.Background(), written, 0))
	assert.Equal(t, pattern, written)
}

// TestScenarioS2LockRejectsWrites is the literal S2 scenario.
func TestScenarioS2LockRejectsWrites(t *testing.T) {
	ns := NewNamespace(nil)
	vol, err := ns.Attach(0, 64*1024*1024)
	require.NoError(t, err)

	require.NoError(t, ns.SetLock(0, true))
	before := vol.GetStats().MaxBlkAlloc
	buf := bytes.Repeat([]byte{0x01}, 4096)
	err = vol.WriteAt(context.Background(), buf, 0)
	require.Error(t, err)
	assert.Equal(t, before, vol.GetStats().MaxBlkAlloc)

	require.NoError(t, ns.SetLock(0, false))
	require.NoError(t, vol.WriteAt(context.Background(), buf, 0))
}

// TestScenarioS5FlushAndDetach is the literal S5 scenario.
func TestScenarioS5FlushAndDetach(t *testing.T) {
	ns := NewNamespace(nil)
	vol, err := ns.Attach(0, 64*1024*1024)
	require.NoError(t, err)

	nonZero := bytes.Repeat([]byte{0x7E}, 32*1024*1024)
	require.NoError(t, vol.WriteAt(context.Background(), nonZero, 0))
	require.Greater(t, vol.GetStats().MaxPageCount, int64(0))

	require.NoError(t, ns.Flush(0))
	st := vol.GetStats()
	assert.Equal(t, int64(0), st.MaxPageCount)
	assert.Equal(t, uint64(0), st.MaxBlkAlloc)

	dst := make([]byte, 4096)
	require.NoError(t, vol.ReadAt(context.Background(), dst, 0))
	assert.Equal(t, make([]byte, 4096), dst)
}
