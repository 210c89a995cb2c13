package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestMemoryLimiterWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(2, time.Hour)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i, want := range []bool{true, true, false} {
		ok, err := l.Allow(ctx, "a@example.com")
		require.NoError(t, err)
		assert.Equal(t, want, ok, "attempt %d", i+1)
	}

	ok, _ := l.Allow(ctx, "b@example.com")
	assert.True(t, ok)

	now = now.Add(time.Hour)
	ok, _ = l.Allow(ctx, "a@example.com")
	assert.True(t, ok)
}

func TestMemoryLimiterCleanup(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(1, time.Minute)
	l.now = func() time.Time { return now }

	_, _ = l.Allow(context.Background(), "x")
	_, _ = l.Allow(context.Background(), "y")
	assert.Equal(t, 0, l.Cleanup())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, l.Cleanup())
}

func TestRedisLimiter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "docker.io/redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}()

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := NewRedisClient(ctx, fmt.Sprintf("%s:%s", host, port.Port()), "", 0)
	require.NoError(t, err)
	defer client.Close()

	l := NewRedisLimiter(client, 3, time.Minute)
	for i, want := range []bool{true, true, true, false} {
		ok, err := l.Allow(ctx, "otp:a@example.com")
		require.NoError(t, err)
		assert.Equal(t, want, ok, "attempt %d", i+1)
	}

	ttl, err := client.TTL(ctx, "studfund:ratelimit:otp:a@example.com").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
