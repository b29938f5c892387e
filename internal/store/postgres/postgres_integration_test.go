//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/notevault/internal/store/storetest"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pg "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const postgresImage = "postgres:16-alpine"

// newTestStore starts a disposable Postgres, applies the embedded
// migrations and returns a connected Store.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := pg.Run(
		ctx,
		postgresImage,
		pg.WithDatabase("notevault"),
		pg.WithUsername("notevault"),
		pg.WithPassword("notevault"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := Open(ctx, dsn, PoolConfig{MaxConns: 10})
	require.NoError(t, err)
	t.Cleanup(store.Close)

	require.NoError(t, store.Migrate(ctx, "up"))
	return store
}

func TestPostgresStore(t *testing.T) {
	store := newTestStore(t)
	shared := func(*testing.T) storetest.Store { return store }

	t.Run("Users", func(t *testing.T) { storetest.RunUserStore(t, shared) })
	t.Run("Notes", func(t *testing.T) { storetest.RunNoteStore(t, shared) })
}

func TestMigrateDownAndUp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Migrate(ctx, "down"))
	require.NoError(t, store.Migrate(ctx, "status"))
	require.NoError(t, store.Migrate(ctx, "up"))

	var tables int
	err := store.Pool().QueryRow(ctx,
		`SELECT count(*) FROM information_schema.tables WHERE table_name IN ('users', 'notes', 'backup_codes')`,
	).Scan(&tables)
	require.NoError(t, err)
	require.Equal(t, 3, tables)
}
