package redisstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/promptkeep/internal/logger"
)

func testBackend(t *testing.T) *Backend {
	t.Helper()
	addr := os.Getenv("PROMPTKEEP_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PROMPTKEEP_TEST_REDIS_ADDR not set")
	}

	opts := DefaultConnectOptions(addr)
	opts.KeyPrefix = fmt.Sprintf("promptkeep-test-%d", time.Now().UnixNano())

	b, err := Connect(context.Background(), opts, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestValidateOptions(t *testing.T) {
	require.NoError(t, validateOptions(DefaultConnectOptions("localhost:6379")))

	bad := DefaultConnectOptions("localhost:6379")
	bad.PingTimeout = 0
	require.Error(t, validateOptions(bad))

	require.Error(t, validateOptions(DefaultConnectOptions("")))
}

func TestKeyPrefix(t *testing.T) {
	b := NewBackend(nil, "pk")
	require.Equal(t, "pk:promptkeep.prompts", b.key("promptkeep.prompts"))

	bare := NewBackend(nil, "")
	require.Equal(t, "x", bare.key("x"))
}

func TestConnect_TimesOut(t *testing.T) {
	opts := DefaultConnectOptions("127.0.0.1:1")
	opts.ConnectTimeout = 100 * time.Millisecond
	opts.RetryInterval = 10 * time.Millisecond
	opts.PingTimeout = 20 * time.Millisecond

	_, err := Connect(context.Background(), opts, logger.NewNop())
	require.Error(t, err)
}

func TestBackend_RoundTrip(t *testing.T) {
	b := testBackend(t)
	ctx := context.Background()

	_, found, err := b.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, b.SetMany(ctx, map[string][]byte{"a": []byte(`[1]`), "b": []byte(`"x"`)}))

	v, found, err := b.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, `[1]`, string(v))

	require.NoError(t, b.Remove(ctx, "a"))
	require.NoError(t, b.Remove(ctx, "b"))
	_, found, err = b.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, found)
}
