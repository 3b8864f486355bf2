package reservebase

import (
	"context"
	"time"
)

// IndexDocument is a secondary index stored as a plain KV document: the set
// of ids satisfying one predicate value, e.g. users_by_role::admin.
//
// The id list is ordered by insertion but callers must treat it as an
// unordered set; result ordering is re-applied after resolution.
type IndexDocument struct {
	IDs       []string  `json:"ids"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IndexManager maintains predicate-value -> set-of-ids mappings as KV
// documents, for the access patterns the native query engine covers when
// it is healthy and the fallback path covers when it is not.
//
// AddToIndex is a read-modify-write with no cross-process lock. Two writers
// racing on the same index can lose an update (last-writer-wins on the whole
// document). That is an accepted trade-off: the query engine is the source
// of truth when available, the index is a fallback, and the set-union
// semantics self-heal on the next successful write.
type IndexManager struct {
	store   *Store
	logger  Logger
	metrics Metrics
}

// NewIndexManager creates an index manager over the store
func NewIndexManager(store *Store) *IndexManager {
	return &IndexManager{
		store:   store,
		logger:  store.logger,
		metrics: store.metrics,
	}
}

// AddToIndex adds id to the index document at indexKey, creating the
// document if it does not exist. Adding an id that is already present is a
// no-op (set semantics), so concurrent and repeated appends are safe.
func (im *IndexManager) AddToIndex(ctx context.Context, indexKey, id string) error {
	var doc IndexDocument
	err := im.store.GetJSON(ctx, indexKey, &doc)
	if err != nil {
		if !IsNotFound(err) {
			return err
		}
		now := time.Now()
		doc = IndexDocument{
			IDs:       []string{id},
			CreatedAt: now,
			UpdatedAt: now,
		}
		im.metrics.Increment(MetricIndexAdd)
		return im.store.Upsert(ctx, indexKey, &doc)
	}

	for _, existing := range doc.IDs {
		if existing == id {
			return nil
		}
	}

	doc.IDs = append(doc.IDs, id)
	doc.UpdatedAt = time.Now()
	im.metrics.Increment(MetricIndexAdd)
	return im.store.Upsert(ctx, indexKey, &doc)
}

// ReadIndex returns the ids referenced by the index document. A missing
// index is an empty set, not an error; callers branch on content.
func (im *IndexManager) ReadIndex(ctx context.Context, indexKey string) ([]string, error) {
	var doc IndexDocument
	err := im.store.GetJSON(ctx, indexKey, &doc)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return doc.IDs, nil
}

// RemoveFromIndex removes id from the index document if present.
// Deletes are not required to clean up index references (stale ids are
// tolerated); this exists for the repair tooling.
func (im *IndexManager) RemoveFromIndex(ctx context.Context, indexKey, id string) error {
	var doc IndexDocument
	err := im.store.GetJSON(ctx, indexKey, &doc)
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		return err
	}

	kept := doc.IDs[:0]
	for _, existing := range doc.IDs {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(doc.IDs) {
		return nil
	}

	doc.IDs = kept
	doc.UpdatedAt = time.Now()
	return im.store.Upsert(ctx, indexKey, &doc)
}

// RebuildIndex replaces the whole index document with the given id set.
// Used by the self-healing path after a native scan.
func (im *IndexManager) RebuildIndex(ctx context.Context, indexKey string, ids []string) error {
	now := time.Now()
	doc := IndexDocument{
		IDs:       ids,
		CreatedAt: now,
		UpdatedAt: now,
	}
	im.metrics.Increment(MetricIndexRebuilds)
	return im.store.Upsert(ctx, indexKey, &doc)
}

// ResolveAndFilter fetches the document behind each id, skipping ids whose
// document no longer exists (index staleness is tolerated, never fatal),
// and keeps entities matching the predicate. Each call re-reads from
// storage; nothing is cached.
func ResolveAndFilter[T any](ctx context.Context, store *Store, ids []string, keep func(*T) bool) ([]*T, error) {
	results := make([]*T, 0, len(ids))

	for _, id := range ids {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		var entity T
		if err := store.GetJSON(ctx, id, &entity); err != nil {
			if IsNotFound(err) {
				// Dangling index entry, skip silently
				store.metrics.Increment(MetricIndexStaleSkips)
				continue
			}
			return nil, err
		}

		if keep == nil || keep(&entity) {
			results = append(results, &entity)
		}
	}

	return results, nil
}
