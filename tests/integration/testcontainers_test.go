// Package integration runs the store-backed suites against a live
// Redis Stack container (RedisJSON + RediSearch), since the module's
// persistence layer leans on JSON.*, FT.*, and EVALSHA rather than
// plain key/value Redis.
package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/8agana/unified-intelligence/internal/observability"
	"github.com/8agana/unified-intelligence/internal/scripts"
	"github.com/8agana/unified-intelligence/internal/store"
)

// redisStackImage ships RedisJSON and RediSearch alongside core Redis,
// which FT.CREATE/FT.SEARCH and JSON.GET/JSON.SET both require.
const redisStackImage = "redis/redis-stack-server:7.4.0-v0"

// TestContainerSetup owns a single Redis Stack container for a suite run.
type TestContainerSetup struct {
	container testcontainers.Container
	Addr      string
}

// SetupRedis starts a Redis Stack container and returns its address.
func SetupRedis(t *testing.T) *TestContainerSetup {
	t.Helper()
	ctx := context.Background()

	c, err := tcredis.Run(ctx, redisStackImage)
	require.NoError(t, err)

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return &TestContainerSetup{
		container: c,
		Addr:      fmt.Sprintf("%s:%s", host, port.Port()),
	}
}

// Cleanup terminates the container.
func (s *TestContainerSetup) Cleanup() {
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

// Gateway dials a Gateway against the live container, fails the test on
// error, and registers cleanup.
func (s *TestContainerSetup) Gateway(t *testing.T) *store.Gateway {
	t.Helper()
	log := observability.NewLogger(observability.LogConfig{Level: "error", Output: os.Stderr})
	gw := store.New(store.Config{
		Addr:            s.Addr,
		MaxPoolSize:     10,
		PoolWaitTimeout: 5 * time.Second,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
	}, log)
	t.Cleanup(func() { _ = gw.Close() })
	return gw
}

// Scripts loads the Lua script cache against gw.
func (s *TestContainerSetup) Scripts(t *testing.T, gw *store.Gateway) *scripts.Cache {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, err := scripts.New(ctx, gw)
	require.NoError(t, err)
	return c
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Level: "error", Output: os.Stderr})
}

func skipIfNoDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv("CI") == "" && !dockerAvailable() {
		t.Skip("docker not available")
	}
}

func dockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.Client().Ping(ctx)
	return err == nil
}
