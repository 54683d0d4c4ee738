package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer c.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_MultipleCalls(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Errorf("first Close() failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}

	_, err = c.ExecContext(context.Background(), "SELECT 1")
	if !errors.Is(err, ErrClosed) {
		t.Errorf("ExecContext() after Close = %v, want ErrClosed", err)
	}
}

func TestPragmas(t *testing.T) {
	c := createTestConn(t)

	for name, want := range map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1", // NORMAL
		"busy_timeout": "5000",
		"foreign_keys": "1",
	} {
		if err := c.verifyPragma(name, want); err != nil {
			t.Error(err)
		}
	}
}

func TestWithPragmas(t *testing.T) {
	c := createTestConn(t, WithPragmas("PRAGMA busy_timeout = 100"))

	if err := c.verifyPragma("busy_timeout", "100"); err != nil {
		t.Error(err)
	}
}

func TestNestedTransaction_CommitsOnce(t *testing.T) {
	ctx := context.Background()
	c := createTestConn(t)

	require.NoError(t, c.Begin(ctx))
	require.NoError(t, c.Begin(ctx))
	assert.Equal(t, 2, c.Level())

	_, err := c.ExecContext(ctx, "INSERT INTO items (id, name) VALUES (?, ?)", 1, "a")
	require.NoError(t, err)

	require.NoError(t, c.Commit())
	assert.Equal(t, 1, c.Level())
	assert.NotNil(t, c.tx, "inner commit must not end the transaction")

	require.NoError(t, c.Commit())
	assert.Equal(t, 0, c.Level())
	assert.Equal(t, 1, countItems(t, c))

	// Extra commits are ignored.
	require.NoError(t, c.Commit())
}

func TestNestedTransaction_RollbackDiscardsAll(t *testing.T) {
	ctx := context.Background()
	c := createTestConn(t)

	require.NoError(t, c.Begin(ctx))
	_, err := c.ExecContext(ctx, "INSERT INTO items (id, name) VALUES (?, ?)", 1, "a")
	require.NoError(t, err)
	require.NoError(t, c.Begin(ctx))
	_, err = c.ExecContext(ctx, "INSERT INTO items (id, name) VALUES (?, ?)", 2, "b")
	require.NoError(t, err)

	require.NoError(t, c.Rollback())
	assert.Equal(t, 0, c.Level())
	assert.Equal(t, 0, countItems(t, c))

	// Commit after a rollback has nothing to commit.
	require.NoError(t, c.Commit())
	require.NoError(t, c.Rollback())
}

func TestStatementCache(t *testing.T) {
	ctx := context.Background()
	c := createTestConn(t, WithStatementCacheSize(2))

	insert := "INSERT INTO items (id, name) VALUES (?, ?)"
	_, err := c.ExecContext(ctx, insert, 1, "a")
	require.NoError(t, err)

	cached, err := c.stmts.Get(insert)
	require.NoError(t, err)
	require.NotNil(t, cached)

	// The cached statement is re-bound inside a transaction.
	require.NoError(t, c.Begin(ctx))
	_, err = c.ExecContext(ctx, insert, 2, "b")
	require.NoError(t, err)
	require.NoError(t, c.Commit())

	assert.Equal(t, 2, countItems(t, c))
}

func TestStatementCache_Disabled(t *testing.T) {
	ctx := context.Background()
	c := createTestConn(t, WithStatementCacheSize(0))
	assert.Nil(t, c.stmts)

	for i := 0; i < 3; i++ {
		_, err := c.ExecContext(ctx, "INSERT INTO items (id, name) VALUES (?, ?)", i, "x")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, countItems(t, c))
}

func TestQueryInsideTransactionSeesUncommittedRows(t *testing.T) {
	ctx := context.Background()
	c := createTestConn(t)

	require.NoError(t, c.Begin(ctx))
	_, err := c.ExecContext(ctx, "INSERT INTO items (id, name) VALUES (?, ?)", 1, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, countItems(t, c))
	require.NoError(t, c.Rollback())
}

func TestQueryInsideTransaction_RowsOutliveStatement(t *testing.T) {
	const (
		primed = "SELECT id FROM items ORDER BY id"
		fresh  = "SELECT id FROM items WHERE id > 0 ORDER BY id"
	)
	tests := []struct {
		name string
		size int
	}{
		{"cache enabled", 16},
		{"cache disabled", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			c := createTestConn(t, WithStatementCacheSize(tt.size))
			for i := 1; i <= 3; i++ {
				_, err := c.ExecContext(ctx, "INSERT INTO items (id, name) VALUES (?, ?)", i, "x")
				require.NoError(t, err)
			}

			// With the cache enabled, primed is re-bound from the cache and
			// fresh is prepared on the transaction.
			rows, err := c.QueryContext(ctx, primed)
			require.NoError(t, err)
			require.NoError(t, rows.Close())

			require.NoError(t, c.Begin(ctx))
			defer c.Rollback()

			for _, q := range []string{primed, fresh} {
				rows, err := c.QueryContext(ctx, q)
				require.NoError(t, err)
				var ids []int
				for rows.Next() {
					var id int
					require.NoError(t, rows.Scan(&id))
					ids = append(ids, id)
				}
				require.NoError(t, rows.Err())
				require.NoError(t, rows.Close())
				assert.Equal(t, []int{1, 2, 3}, ids, q)
			}
		})
	}
}
