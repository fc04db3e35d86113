// Package storetest starts disposable postgres databases for integration tests.
package storetest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const (
	// EnablePostgresEnv turns the container-backed tests on when set to "1".
	EnablePostgresEnv = "BANKROLL_POSTGRES_TESTS"
	postgresImage     = "postgres:16-alpine"
	databaseName      = "bankroll_test"
	databaseUser      = "bankroll"
	databasePassword  = "bankroll"
	terminateTimeout  = 30 * time.Second
)

// StartPostgres runs a postgres container for the test and returns its connection URL.
// The test is skipped unless EnablePostgresEnv is set.
func StartPostgres(t *testing.T) string {
	t.Helper()
	if os.Getenv(EnablePostgresEnv) != "1" {
		t.Skipf("set %s=1 to run postgres integration tests", EnablePostgresEnv)
	}
	ctx := context.Background()
	container, err := postgres.Run(ctx,
		postgresImage,
		postgres.WithDatabase(databaseName),
		postgres.WithUsername(databaseUser),
		postgres.WithPassword(databasePassword),
		postgres.BasicWaitStrategies(),
		testcontainers.WithLabels(map[string]string{"test": "bankroll", "test-name": t.Name()}),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		terminateCtx, cancel := context.WithTimeout(context.Background(), terminateTimeout)
		defer cancel()
		if err := container.Terminate(terminateCtx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})
	connectionString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connectionString
}
