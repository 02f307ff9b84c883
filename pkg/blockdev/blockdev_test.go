package blockdev

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemDiskReadWriteRoundTrip(t *testing.T) {
	ctx := context.Background()
	disk := NewMemDisk(4096, 16, 0)

	desc, err := disk.SyntheticReadBlock(ctx, 10)
	require.NoError(t, err)
	assert.True(t, desc.Synthetic)

	copy(desc.Data(), []byte{1, 2, 3, 4})
	require.NoError(t, disk.WriteBlock(ctx, desc, 10))
	assert.False(t, desc.Synthetic)

	reread, err := disk.ReadBlock(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, reread.Data()[0:4])
}

func TestMemDiskOutOfRange(t *testing.T) {
	disk := NewMemDisk(4096, 4, 0)
	_, err := disk.ReadBlock(context.Background(), 100)
	assert.Error(t, err)
}

func TestFsDiskPersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "disk.img")

	disk, err := OpenFsDisk(path, 512, 8, 0)
	require.NoError(t, err)

	desc, err := disk.ReadBlock(ctx, 2)
	require.NoError(t, err)
	copy(desc.Data(), []byte("hello"))
	require.NoError(t, disk.WriteBlock(ctx, desc, 2))
	require.NoError(t, disk.Close())

	disk2, err := OpenFsDisk(path, 512, 8, 0)
	require.NoError(t, err)
	defer disk2.Close()

	reread, err := disk2.ReadBlock(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), reread.Data()[0:5])
}
