// Package reservebase is the storage core for a reservation system: users,
// reservations, and change logs persisted as JSON documents in a shared
// keyspace, with KV secondary indexes and a SQL query path over the same
// documents.
//
// # Overview
//
// Every entity is one JSON document behind an opaque string key. The key
// prefix carries the type (user::, reservation::, log::) and secondary
// index documents live in the same keyspace beside the data they point at.
// List queries are answered by two paths:
//
//   - Native: a SQL engine that scans the type's key prefix and evaluates
//     the predicate over the documents
//   - Fallback: resolution through the KV index documents, with per-id
//     re-reads and in-memory filtering
//
// A native failure routes to the fallback behind a circuit breaker; when
// both fail a query degrades to an empty result instead of an error.
//
// # Quick Start
//
// Development setup with a filesystem backend:
//
//	backend := reservebase.NewFilesystemBackend("./data")
//	store := reservebase.NewStore(backend)
//	indexes := reservebase.NewIndexManager(store)
//	query := reservebase.NewQueryService(store, indexes).
//	    WithNative(reservebase.NewSQLQueryEngine(store))
//
//	users := reservebase.NewUsers(store, indexes, query, reservebase.NewBcryptHasher())
//	logs := reservebase.NewChangeLogs(store, indexes, query)
//	reservations := reservebase.NewReservations(store, indexes, query).
//	    WithChangeLogs(logs)
//
// Production setup with Redis, bounded connection retry, and observability:
//
//	logger, _ := reservebase.NewProductionZapLogger()
//	metrics := reservebase.NewPrometheusMetrics(nil) // default registry
//
//	backend := reservebase.NewRedisBackend(redisClient)
//	conn := reservebase.NewConnector(backend, reservebase.DefaultConnectorOptions()).
//	    WithLogger(logger)
//	store, err := conn.Connect(ctx)
//	store.SetMetrics(metrics)
//
// # Core Concepts
//
// Backend: raw byte storage behind Get/Put/PutIfAbsent/Delete/List.
// Redis, S3, and filesystem implementations are provided; all of them
// normalize missing keys to ErrNotFound.
//
// Store: JSON document operations over a Backend. Saves always rewrite the
// full document; there are no partial patches.
//
// IndexManager: maintains the KV secondary indexes (users_by_role::<role>,
// user_reservations::<userId>, reservation_logs::<reservationId>, and the
// global reservation index). Index writes on the entity write path are
// advisory: they are logged and counted on failure but never fail the
// primary write.
//
// QueryService: the dual-path query facade used by the repositories.
//
// IndexHealer: rebuilds every index from a full document scan and detects
// drift, for repair tooling and background monitoring.
//
// # Critical Gotchas
//
// 1. Index staleness is normal. Deletes do not clean up index references
// and advisory writes can be dropped; readers skip dangling ids and the
// healer trues things up. Never treat an index as the source of truth when
// the native path is available.
//
// 2. AddToIndex is a read-modify-write without a cross-process lock. Two
// writers racing on one index can lose an update; the next heal repairs it.
//
// 3. Cancelling a reservation always reports success, even when the
// document is already gone. Callers cannot distinguish "already cancelled"
// from "freshly cancelled".
//
// 4. User creation verifies its own write and deletes both documents on a
// failed verification. An IntegrityError from Create means the user does
// not exist afterwards.
package reservebase
