package store

import (
	"context"
	"path/filepath"
	"testing"
)

// createTestConn opens a connection to a fresh database for testing.
func createTestConn(t *testing.T, opts ...Option) *Conn {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	c, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	if _, err := c.ExecContext(context.Background(), "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL)"); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	return c
}

// countItems returns the number of rows in the items table.
func countItems(t *testing.T, c *Conn) int {
	t.Helper()
	rows, err := c.QueryContext(context.Background(), "SELECT COUNT(*) FROM items")
	if err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	defer rows.Close()

	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			t.Fatalf("scan failed: %v", err)
		}
	}
	return n
}
