package reservebase

import (
	"context"
	"sync"
	"time"
)

// ConnectorOptions configures connection establishment.
// The deployed store can take a while to accept connections after a
// restart, so the defaults retry for close to a minute.
type ConnectorOptions struct {
	MaxRetries int           // connection attempts before giving up
	RetryDelay time.Duration // fixed delay between attempts
}

// DefaultConnectorOptions returns the production retry policy
func DefaultConnectorOptions() ConnectorOptions {
	return ConnectorOptions{
		MaxRetries: 10,
		RetryDelay: 5 * time.Second,
	}
}

// Connector owns the store's connection lifecycle. It replaces ambient
// module-level connection state with an explicitly constructed object that
// is passed to repositories.
//
// Handle returns ErrNotConnected until Connect has succeeded.
type Connector struct {
	backend Backend
	opts    ConnectorOptions
	logger  Logger

	mu    sync.RWMutex
	store *Store
}

// NewConnector creates a connector over a backend
func NewConnector(backend Backend, opts ConnectorOptions) *Connector {
	return &Connector{
		backend: backend,
		opts:    opts,
		logger:  &NoOpLogger{},
	}
}

// WithLogger sets the connector's logger
func (c *Connector) WithLogger(logger Logger) *Connector {
	c.logger = logger
	return c
}

// Connect pings the backend with bounded retry and, on success, makes the
// store handle available. Timeouts within a single attempt belong to the
// backend client; this layer only sequences attempts.
func (c *Connector) Connect(ctx context.Context) (*Store, error) {
	var lastErr error

	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		c.logger.Info("connecting to document store",
			"attempt", attempt,
			"max_attempts", c.opts.MaxRetries,
		)

		if err := c.backend.Ping(ctx); err != nil {
			lastErr = err
			c.logger.Warn("connection attempt failed",
				"attempt", attempt,
				"error", err,
			)

			if attempt == c.opts.MaxRetries {
				break
			}

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.opts.RetryDelay):
			}
			continue
		}

		store := NewStore(c.backend)
		store.SetLogger(c.logger)

		c.mu.Lock()
		c.store = store
		c.mu.Unlock()

		c.logger.Info("document store connected")
		return store, nil
	}

	return nil, WithContext(ErrBackendUnavailable, map[string]interface{}{
		"attempts": c.opts.MaxRetries,
		"last":     lastErr.Error(),
	})
}

// Handle returns the connected store, or ErrNotConnected if Connect has
// not succeeded yet
func (c *Connector) Handle() (*Store, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.store == nil {
		return nil, ErrNotConnected
	}
	return c.store, nil
}

// Close releases the connection
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	return err
}
