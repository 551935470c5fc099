package database

import (
	"context"
	"errors"
	"sync"
)

// ErrConnectionClosed is returned by Connect after Close has been called.
var ErrConnectionClosed = errors.New("database connection closed")

// DialFunc opens a new client for a store.
type DialFunc[T any] func(ctx context.Context) (T, error)

// CloseFunc releases a client previously returned by a DialFunc.
type CloseFunc[T any] func(ctx context.Context, client T) error

// Connection owns the lifecycle of one pooled store client. Connect is
// idempotent and safe for concurrent use: the first successful dial is
// cached and returned to every later caller, while a failed dial leaves the
// connection empty so the next call tries again.
type Connection[T any] struct {
	mu     sync.Mutex
	dial   DialFunc[T]
	close  CloseFunc[T]
	client T
	ready  bool
	closed bool
}

// NewConnection creates a lazy connection. Nothing is dialled until Connect.
func NewConnection[T any](dial DialFunc[T], closeFn CloseFunc[T]) *Connection[T] {
	return &Connection[T]{dial: dial, close: closeFn}
}

// Connect returns the shared client, dialling it on first use.
func (c *Connection[T]) Connect(ctx context.Context) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if c.closed {
		return zero, ErrConnectionClosed
	}
	if c.ready {
		return c.client, nil
	}

	client, err := c.dial(ctx)
	if err != nil {
		return zero, err
	}
	c.client = client
	c.ready = true
	return client, nil
}

// Connected reports whether a client is currently held.
func (c *Connection[T]) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Close releases the client if one was dialled. Later Connect calls fail.
func (c *Connection[T]) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if !c.ready {
		return nil
	}
	c.ready = false
	if c.close == nil {
		return nil
	}
	return c.close(ctx, c.client)
}
