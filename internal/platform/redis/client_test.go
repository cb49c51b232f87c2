package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libreg/internal/platform/config"
)

func TestNewWithoutURL(t *testing.T) {
	client, err := New(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewRejectsMalformedURL(t *testing.T) {
	_, err := New(context.Background(), config.RedisConfig{URL: "http://not-redis"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse redis URL")
}

func TestApplyPoolSettings(t *testing.T) {
	t.Run("configured values override the URL", func(t *testing.T) {
		opts := &redis.Options{PoolSize: 3}
		applyPoolSettings(opts, config.RedisConfig{
			PoolSize:     20,
			MinIdleConns: 4,
			DialTimeout:  time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		assert.Equal(t, 20, opts.PoolSize)
		assert.Equal(t, 4, opts.MinIdleConns)
		assert.Equal(t, time.Second, opts.DialTimeout)
		assert.Equal(t, 2*time.Second, opts.ReadTimeout)
		assert.Equal(t, 3*time.Second, opts.WriteTimeout)
	})

	t.Run("zero values keep the URL settings", func(t *testing.T) {
		opts := &redis.Options{PoolSize: 3, ReadTimeout: time.Minute}
		applyPoolSettings(opts, config.RedisConfig{})
		assert.Equal(t, 3, opts.PoolSize)
		assert.Equal(t, time.Minute, opts.ReadTimeout)
	})
}
