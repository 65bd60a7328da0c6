// Package containers starts disposable datastores for integration tests.
// Every container is terminated when the calling test finishes.
package containers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const startupTimeout = 60 * time.Second

func terminateOnCleanup(tb testing.TB, name string, c testcontainers.Container) {
	tb.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.Terminate(ctx); err != nil {
			tb.Errorf("terminate %s container: %v", name, err)
		}
	})
}

// StartPostgres returns the DSN of a fresh, empty conversations database.
func StartPostgres(tb testing.TB) string {
	tb.Helper()
	ctx := context.Background()
	c, err := postgres.Run(ctx, "postgres:17-alpine",
		postgres.WithDatabase("conversations"),
		postgres.WithUsername("conversations"),
		postgres.WithPassword("conversations"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(startupTimeout),
		),
	)
	if err != nil {
		tb.Fatalf("start postgres container: %v", err)
	}
	terminateOnCleanup(tb, "postgres", c)

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		tb.Fatalf("postgres connection string: %v", err)
	}
	if err := pingPostgres(ctx, dsn); err != nil {
		tb.Fatalf("postgres is not accepting connections: %v", err)
	}
	return dsn
}

// pingPostgres retries until the server accepts a connection; the log line
// can appear before the port is reachable from the host.
func pingPostgres(ctx context.Context, dsn string) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	for {
		conn, err := pgx.Connect(ctx, dsn)
		if err == nil {
			err = conn.Ping(ctx)
			_ = conn.Close(ctx)
			if err == nil {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// StartMongo returns the connection URI of a standalone MongoDB.
func StartMongo(tb testing.TB) string {
	tb.Helper()
	ctx := context.Background()
	c, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		tb.Fatalf("start mongodb container: %v", err)
	}
	terminateOnCleanup(tb, "mongodb", c)

	uri, err := c.ConnectionString(ctx)
	if err != nil {
		tb.Fatalf("mongodb connection string: %v", err)
	}
	return uri
}

// StartRedis returns a redis:// URL for the profile cache.
func StartRedis(tb testing.TB) string {
	tb.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(startupTimeout),
		},
		Started: true,
	})
	if err != nil {
		tb.Fatalf("start redis container: %v", err)
	}
	terminateOnCleanup(tb, "redis", c)

	endpoint, err := c.PortEndpoint(ctx, "6379/tcp", "redis")
	if err != nil {
		tb.Fatalf("redis endpoint: %v", err)
	}
	return endpoint
}
