package reservebase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Store provides JSON document operations on top of a Backend.
// All entities share one keyspace; the key prefix carries the type
// (user::, reservation::, log::) and index documents live beside them.
type Store struct {
	backend Backend
	logger  Logger
	metrics Metrics
}

// NewStore creates a store with no-op logger and metrics
func NewStore(backend Backend) *Store {
	return &Store{
		backend: backend,
		logger:  &NoOpLogger{},
		metrics: &NoOpMetrics{},
	}
}

// NewStoreWithObservability creates a store with logging and metrics
func NewStoreWithObservability(backend Backend, logger Logger, metrics Metrics) *Store {
	return &Store{
		backend: backend,
		logger:  logger,
		metrics: metrics,
	}
}

// SetLogger updates the logger for this store
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// SetMetrics updates the metrics collector for this store
func (s *Store) SetMetrics(metrics Metrics) {
	s.metrics = metrics
}

// GetJSON fetches and unmarshals a document. Missing keys surface as
// ErrNotFound from the backend, already normalized.
func (s *Store) GetJSON(ctx context.Context, key string, dest interface{}) error {
	start := time.Now()
	data, err := s.backend.Get(ctx, key)
	s.metrics.Timing(MetricGetDuration, time.Since(start))

	if err != nil {
		if !IsNotFound(err) {
			s.metrics.Increment(MetricGetError)
		}
		return err
	}

	s.metrics.Increment(MetricGetSuccess)
	return json.Unmarshal(data, dest)
}

// Insert stores a new document, failing with ErrAlreadyExists if the key
// is taken
func (s *Store) Insert(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	start := time.Now()
	err = s.backend.PutIfAbsent(ctx, key, data)
	s.metrics.Timing(MetricPutDuration, time.Since(start))

	if err != nil {
		s.metrics.Increment(MetricPutError)
		return err
	}

	s.metrics.Increment(MetricPutSuccess)
	return nil
}

// Upsert stores a document, creating or replacing the whole value.
// Saves always rewrite the full document; there are no partial patches.
func (s *Store) Upsert(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	start := time.Now()
	err = s.backend.Put(ctx, key, data)
	s.metrics.Timing(MetricPutDuration, time.Since(start))

	if err != nil {
		s.metrics.Increment(MetricPutError)
		return err
	}

	s.metrics.Increment(MetricPutSuccess)
	return nil
}

// Remove deletes a document
func (s *Store) Remove(ctx context.Context, key string) error {
	err := s.backend.Delete(ctx, key)
	if err != nil {
		if !IsNotFound(err) {
			s.metrics.Increment(MetricDeleteError)
		}
		return err
	}

	s.metrics.Increment(MetricDeleteSuccess)
	return nil
}

// Exists checks if a key exists
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	return s.backend.Exists(ctx, key)
}

// List returns all keys with the given prefix
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	return s.backend.List(ctx, prefix)
}

// Backend returns the underlying backend (for index repair tooling)
func (s *Store) Backend() Backend {
	return s.backend
}

// Ping checks backend health
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Close releases resources held by the store and backend
func (s *Store) Close() error {
	return s.backend.Close()
}
