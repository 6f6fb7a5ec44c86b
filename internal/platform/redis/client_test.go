package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semear/internal/platform/config"
)

func TestNewWithoutURLIsDisabled(t *testing.T) {
	client, err := New(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(context.Background(), config.RedisConfig{URL: "mysql://localhost"})
	require.Error(t, err)
}

func TestApplyPoolKeepsURLDefaults(t *testing.T) {
	opts, err := redis.ParseURL("redis://localhost:6379/2?dial_timeout=7s")
	require.NoError(t, err)

	applyPool(opts, config.RedisConfig{PoolSize: 20, ReadTimeout: time.Second})

	assert.Equal(t, 20, opts.PoolSize)
	assert.Equal(t, time.Second, opts.ReadTimeout)
	assert.Equal(t, 7*time.Second, opts.DialTimeout)
	assert.Equal(t, 2, opts.DB)
}
