package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/unipass-integrity-api/pkg/config"
)

func TestNewRedisDisabled(t *testing.T) {
	client, err := NewRedis(context.Background(), config.RedisConfig{Enabled: false, Host: "unreachable.invalid", Port: 6379})
	require.NoError(t, err)
	require.Nil(t, client)
}
