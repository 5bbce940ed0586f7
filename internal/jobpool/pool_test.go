package jobpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoolEnforcesMinimumSize(t *testing.T) {
	p := NewPool(1)
	assert.Equal(t, MinPoolSize, p.Len())
}

func TestGetPutRoundTrip(t *testing.T) {
	p := NewPool(MinPoolSize)
	j, err := p.Get()
	require.NoError(t, err)
	require.NotNil(t, j)
	p.Put(j)
	p.Wait()
}

func TestGetFailsWhenExhausted(t *testing.T) {
	p := NewPool(MinPoolSize)
	jobs := make([]*Job, 0, MinPoolSize)
	for i := 0; i < MinPoolSize; i++ {
		j, err := p.Get()
		require.NoError(t, err)
		jobs = append(jobs, j)
	}
	_, err := p.Get()
	require.Error(t, err)

	for _, j := range jobs {
		p.Put(j)
	}
	p.Wait()
}

func TestReusedJobIsZeroed(t *testing.T) {
	p := NewPool(MinPoolSize)
	j, err := p.Get()
	require.NoError(t, err)
	j.RW = WriteCache
	j.Err = nil
	j.Index = 42
	p.Put(j)

	j2, err := p.Get()
	require.NoError(t, err)
	assert.Equal(t, ReadCache, j2.RW)
	assert.Equal(t, int32(0), j2.Index)
}
