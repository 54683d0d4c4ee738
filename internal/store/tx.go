package store

import (
	"context"
	"fmt"
)

// Begin opens a transaction, or joins the open one.
func (c *Conn) Begin(ctx context.Context) error {
	if c.db == nil {
		return ErrClosed
	}
	c.level++
	if c.level > 1 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		c.level = 0
		return fmt.Errorf("begin transaction: %w", err)
	}
	c.tx = tx
	c.logger.Debug("transaction started")
	return nil
}

// Commit leaves one transaction level and commits when the outermost level
// is left. Commit without an open transaction is a no-op.
func (c *Conn) Commit() error {
	if c.level == 0 {
		return nil
	}
	c.level--
	if c.level > 0 {
		return nil
	}

	tx := c.tx
	c.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	c.logger.Debug("transaction committed")
	return nil
}

// Rollback discards the transaction regardless of nesting depth.
// Rollback without an open transaction is a no-op.
func (c *Conn) Rollback() error {
	if c.level == 0 {
		return nil
	}
	c.level = 0

	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	c.logger.Debug("transaction rolled back")
	return nil
}

// Level returns the current transaction nesting depth.
func (c *Conn) Level() int {
	return c.level
}
