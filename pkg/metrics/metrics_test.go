package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucla-readable/featherstitch/pkg/blockdev"
	"github.com/ucla-readable/featherstitch/pkg/engine"
	"github.com/ucla-readable/featherstitch/pkg/wbcache"
)

func TestDisabledMetricsReturnNil(t *testing.T) {
	assert.Nil(t, NewEngineMetrics())
	assert.Nil(t, NewRevisionMetrics())
	assert.Nil(t, NewCacheMetrics())
}

func TestEnabledMetricsObserveEngineAndCacheActivity(t *testing.T) {
	InitRegistry()
	require.True(t, IsEnabled())

	em := NewEngineMetrics()
	require.NotNil(t, em)
	cm := NewCacheMetrics()
	require.NotNil(t, cm)

	eng := engine.New()
	eng.SetMetrics(em)

	ctx := context.Background()
	disk := blockdev.NewMemDisk(8, 4, 0)
	cache := wbcache.New(disk, eng, 1, 4, 4)
	cache.SetMetrics(cm)

	block, err := cache.ReadBlock(ctx, 0)
	require.NoError(t, err)
	_, err = eng.CreateFull(block, cache, []byte("AAAAAAAA"))
	require.NoError(t, err)
	require.NoError(t, cache.WriteBlock(ctx, block, 0))

	_, err = cache.Flush(ctx, 0)
	require.NoError(t, err)
}
