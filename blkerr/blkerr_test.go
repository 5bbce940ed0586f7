package blkerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFormatsMessage(t *testing.T) {
	err := New(NotFound, "volume %d missing", 7)
	assert.Equal(t, "not-found: volume 7 missing", err.Error())
	assert.Equal(t, NotFound, err.Code)
}

func TestIsMatchesByCode(t *testing.T) {
	err := New(Busy, "device busy")
	assert.True(t, errors.Is(err, Sentinel(Busy)))
	assert.False(t, errors.Is(err, Sentinel(NoSpace)))
}

func TestCodeOfDefaultsNonBlkerrToIOError(t *testing.T) {
	assert.Equal(t, IOError, CodeOf(errors.New("plain error")))
	assert.Equal(t, Ok, CodeOf(nil))
}

func TestCodeOfReadsBlkerrCode(t *testing.T) {
	err := New(ReadOnly, "locked")
	require.Equal(t, ReadOnly, CodeOf(err))
}

func TestCodeStringsAreDistinct(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range []Code{Ok, NotFound, InvalidArgument, NoSpace, Busy, ReadOnly, IOError} {
		s := c.String()
		assert.False(t, seen[s], "duplicate String() for code %d: %q", c, s)
		seen[s] = true
	}
}
