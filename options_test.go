package muxserve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestLoadOptionsDefaults(t *testing.T) {
	opts := loadOptions()
	assert.Equal(t, DefaultEventBatch, opts.EventBatch)
	assert.Equal(t, DefaultLogWorkers, opts.LogWorkers)
	assert.True(t, opts.LockOSThread)
	assert.False(t, opts.ReusePort)
	assert.Nil(t, opts.Logger)
}

func TestLoadOptionsOverrides(t *testing.T) {
	logger := zap.NewNop()
	opts := loadOptions(
		WithEventBatch(16),
		WithReusePort(true),
		WithTCPNoDelay(true),
		WithLockOSThread(false),
		WithLogger(logger),
		WithLogWorkers(0),
	)
	assert.Equal(t, 16, opts.EventBatch)
	assert.True(t, opts.ReusePort)
	assert.True(t, opts.TCPNoDelay)
	assert.False(t, opts.LockOSThread)
	assert.Same(t, logger, opts.Logger)
	assert.Zero(t, opts.LogWorkers)

	assert.Equal(t, DefaultEventBatch, loadOptions(WithEventBatch(-1)).EventBatch)
	assert.Equal(t, DefaultEventBatch, loadOptions(WithOptions(Options{})).EventBatch)
}
