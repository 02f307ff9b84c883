package wbcache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucla-readable/featherstitch/internal/walpersist"
	"github.com/ucla-readable/featherstitch/pkg/blockdev"
	"github.com/ucla-readable/featherstitch/pkg/engine"
)

func TestReadWriteFlushRoundTrip(t *testing.T) {
	ctx := context.Background()
	eng := engine.New()
	disk := blockdev.NewMemDisk(16, 8, 0)
	cache := New(disk, eng, 1, 4, 4)

	block, err := cache.ReadBlock(ctx, 2)
	require.NoError(t, err)

	_, err = eng.CreateFull(block, cache, []byte("0123456789abcdef"))
	require.NoError(t, err)
	require.NoError(t, cache.WriteBlock(ctx, block, 2))

	assert.Equal(t, 1, cache.dblocks)

	result, err := cache.Flush(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, blockdev.FlushDone, result)
	assert.Equal(t, 0, cache.dblocks)

	fromDisk, err := disk.ReadBlock(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789abcdef"), fromDisk.Data())
}

func TestFlushDeviceDrainsEverySequentialDirtyBlock(t *testing.T) {
	ctx := context.Background()
	eng := engine.New()
	disk := blockdev.NewMemDisk(8, 8, 0)
	cache := New(disk, eng, 1, 8, 8)

	for n := uint64(0); n < 3; n++ {
		block, err := cache.ReadBlock(ctx, n)
		require.NoError(t, err)
		_, err = eng.CreateFull(block, cache, []byte("AAAAAAAA"))
		require.NoError(t, err)
		require.NoError(t, cache.WriteBlock(ctx, block, n))
	}
	assert.Equal(t, 3, cache.dblocks)

	result, err := cache.Flush(ctx, blockdev.FlushDevice)
	require.NoError(t, err)
	assert.Equal(t, blockdev.FlushDone, result)
	assert.Equal(t, 0, cache.dblocks)
}

func TestGetBlockSpaceReflectsDirtyCount(t *testing.T) {
	ctx := context.Background()
	eng := engine.New()
	disk := blockdev.NewMemDisk(8, 8, 0)
	cache := New(disk, eng, 1, 8, 2)

	assert.Equal(t, 2, cache.GetBlockSpace())

	block, err := cache.ReadBlock(ctx, 0)
	require.NoError(t, err)
	_, err = eng.CreateFull(block, cache, []byte("AAAAAAAA"))
	require.NoError(t, err)
	require.NoError(t, cache.WriteBlock(ctx, block, 0))

	assert.Equal(t, 1, cache.GetBlockSpace())
}

func TestPersisterRecordsDirtyAndCleanTransitions(t *testing.T) {
	ctx := context.Background()
	eng := engine.New()
	disk := blockdev.NewMemDisk(8, 8, 0)
	cache := New(disk, eng, 1, 8, 8)

	persister, err := walpersist.NewFilePersister(filepath.Join(t.TempDir(), "wal.log"))
	require.NoError(t, err)
	defer persister.Close()
	cache.SetPersister(persister)

	block, err := cache.ReadBlock(ctx, 0)
	require.NoError(t, err)
	_, err = eng.CreateFull(block, cache, []byte("AAAAAAAA"))
	require.NoError(t, err)
	require.NoError(t, cache.WriteBlock(ctx, block, 0))
	require.NoError(t, persister.Sync())

	dirty, err := persister.Recover()
	require.NoError(t, err)
	assert.True(t, dirty[0])

	_, err = cache.Flush(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, persister.Sync())

	dirty, err = persister.Recover()
	require.NoError(t, err)
	assert.False(t, dirty[0])
	require.NoError(t, cache.PersistErr())
}
