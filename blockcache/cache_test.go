package blockcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapiddisk/rapiddisk-go/internal/blockio"
	"github.com/rapiddisk/rapiddisk-go/internal/jobpool"
)

// newTestCache builds a Cache with a private job subsystem so tests never
// share state with each other or with the process-wide default.
func newTestCache(t *testing.T, sizeBlocks, assoc uint64, mode Mode) *Cache {
	t.Helper()
	source := blockio.NewMemDevice(4096)
	cache := blockio.NewMemDevice(4096)
	c, err := New(Config{
		SourceDev:        source,
		CacheDev:         cache,
		SizeBlocks:       sizeBlocks,
		Assoc:            assoc,
		Mode:             mode,
		BlockSizeSectors: DefaultBlockSizeSectors,
		Subsystem:        jobpool.New(jobpool.MinPoolSize),
	})
	require.NoError(t, err)
	return c
}

// submitSync runs req through c.Submit and blocks until Done fires,
// returning the error it was called with.
func submitSync(t *testing.T, c *Cache, req *Request) error {
	t.Helper()
	done := make(chan error, 1)
	req.Done = func(err error) { done <- err }
	c.Submit(req)
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete")
		return nil
	}
}

func blockReq(sector uint64, write bool, buf []byte) *Request {
	return &Request{Sector: sector, Buf: buf, Write: write}
}

func TestConstructionRejectsNonRamDiskCachePath(t *testing.T) {
	source := blockio.NewMemDevice(64)
	cache := blockio.NewMemDevice(64)
	_, err := New(Config{SourceDev: source, CacheDev: cache, CachePath: "/dev/sdb"})
	require.Error(t, err)
}

func TestConstructionRejectsNonPowerOfTwoAssoc(t *testing.T) {
	source := blockio.NewMemDevice(4096)
	cache := blockio.NewMemDevice(4096)
	_, err := New(Config{SourceDev: source, CacheDev: cache, Assoc: 3})
	require.Error(t, err)
}

func TestConstructionRejectsAssocExceedingSize(t *testing.T) {
	source := blockio.NewMemDevice(4096)
	cache := blockio.NewMemDevice(64)
	_, err := New(Config{SourceDev: source, CacheDev: cache, SizeBlocks: 4, Assoc: 8})
	require.Error(t, err)
}

func TestConstructionRoundsSizeDownToAssocMultiple(t *testing.T) {
	source := blockio.NewMemDevice(4096)
	cache := blockio.NewMemDevice(4096)
	c, err := New(Config{SourceDev: source, CacheDev: cache, SizeBlocks: 10, Assoc: 4, Subsystem: jobpool.New(jobpool.MinPoolSize)})
	require.NoError(t, err)
	assert.Equal(t, uint64(8), c.sizeBlocks)
}

func TestReadMissFillsCacheThenHits(t *testing.T) {
	blockBytes := int(DefaultBlockSizeSectors * blockio.SectorSize)
	c := newTestCache(t, 16, 4, WriteThrough)

	payload := make([]byte, blockBytes)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, c.sourceDev.WriteAt(nil, payload, 0))

	dst := make([]byte, blockBytes)
	require.NoError(t, submitSync(t, c, blockReq(0, false, dst)))
	assert.Equal(t, payload, dst)
	assert.Equal(t, uint64(1), c.Stats().Counters.DiskReads)

	// give the background WRITE_CACHE population a moment to land
	deadline := time.Now().Add(time.Second)
	for c.Stats().Counters.CachedBlocks == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, uint64(1), c.Stats().Counters.CachedBlocks)

	dst2 := make([]byte, blockBytes)
	require.NoError(t, submitSync(t, c, blockReq(0, false, dst2)))
	assert.Equal(t, payload, dst2)
	assert.Equal(t, uint64(1), c.Stats().Counters.CacheHits)
}

func TestWriteThroughPopulatesCacheOnSuccess(t *testing.T) {
	blockBytes := int(DefaultBlockSizeSectors * blockio.SectorSize)
	c := newTestCache(t, 16, 4, WriteThrough)

	payload := make([]byte, blockBytes)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	require.NoError(t, submitSync(t, c, blockReq(0, true, payload)))

	got := make([]byte, blockBytes)
	require.NoError(t, c.sourceDev.ReadAt(nil, got, 0))
	assert.Equal(t, payload, got)

	deadline := time.Now().Add(time.Second)
	for c.Stats().Counters.CachedBlocks == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, uint64(1), c.Stats().Counters.CachedBlocks)

	dst := make([]byte, blockBytes)
	require.NoError(t, submitSync(t, c, blockReq(0, false, dst)))
	assert.Equal(t, payload, dst)
	assert.Equal(t, uint64(1), c.Stats().Counters.CacheHits)
}

func TestWriteAroundNeverPopulatesCache(t *testing.T) {
	blockBytes := int(DefaultBlockSizeSectors * blockio.SectorSize)
	c := newTestCache(t, 16, 4, WriteAround)

	payload := make([]byte, blockBytes)
	require.NoError(t, submitSync(t, c, blockReq(0, true, payload)))

	assert.Equal(t, uint64(1), c.Stats().Counters.UncachedWrites)
	assert.Equal(t, uint64(0), c.Stats().Counters.CachedBlocks)
}

func TestNonBlockSizedRequestBypasses(t *testing.T) {
	c := newTestCache(t, 16, 4, WriteThrough)
	buf := make([]byte, 512)
	require.NoError(t, submitSync(t, c, blockReq(0, false, buf)))
	assert.Equal(t, uint64(1), c.Stats().Counters.UncachedReads)
	assert.Equal(t, uint64(0), c.Stats().Counters.CachedBlocks)
}

func TestFlushRequestIsRejected(t *testing.T) {
	c := newTestCache(t, 16, 4, WriteThrough)
	err := submitSync(t, c, &Request{Flush: true})
	require.Error(t, err)
}

func TestWriteInvalidatesOverlappingCachedRead(t *testing.T) {
	blockBytes := int(DefaultBlockSizeSectors * blockio.SectorSize)
	c := newTestCache(t, 16, 4, WriteThrough)

	original := make([]byte, blockBytes)
	for i := range original {
		original[i] = 1
	}
	require.NoError(t, c.sourceDev.WriteAt(nil, original, 0))

	dst := make([]byte, blockBytes)
	require.NoError(t, submitSync(t, c, blockReq(0, false, dst)))

	deadline := time.Now().Add(time.Second)
	for c.Stats().Counters.CachedBlocks == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, uint64(1), c.Stats().Counters.CachedBlocks)

	updated := make([]byte, blockBytes)
	for i := range updated {
		updated[i] = 2
	}
	require.NoError(t, submitSync(t, c, blockReq(0, true, updated)))
	assert.GreaterOrEqual(t, c.Stats().Counters.WrInvalidates, uint64(1))
}

func TestSetIndexIsDeterministicAndWithinRange(t *testing.T) {
	c := newTestCache(t, 16, 4, WriteThrough)
	for _, dbn := range []uint64{0, 8, 800, 4096} {
		s := c.setIndex(dbn)
		assert.Less(t, s, c.numSets)
		assert.Equal(t, s, c.setIndex(dbn))
	}
}

func TestParseTargetPositionalArguments(t *testing.T) {
	cfg, err := ParseTarget("/dev/source0 /dev/rd0 32768 1 256")
	require.NoError(t, err)
	assert.Equal(t, "/dev/source0", cfg.SourcePath)
	assert.Equal(t, "/dev/rd0", cfg.CachePath)
	assert.Equal(t, WriteAround, cfg.Mode)
	assert.Equal(t, uint64(256), cfg.Assoc)
}

func TestParseTargetRejectsNonRamDiskCachePath(t *testing.T) {
	_, err := ParseTarget("/dev/source0 /dev/sdb")
	require.Error(t, err)
}

func TestParseTargetRejectsTooFewArguments(t *testing.T) {
	_, err := ParseTarget("/dev/source0")
	require.Error(t, err)
}
