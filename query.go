package reservebase

import (
	"context"
	"sort"
	"strings"
	"time"
)

// ReservationFilter narrows a reservation query. Zero-value fields are not
// applied. StartDate and EndDate bound ExpectedArrivalTime inclusively;
// GuestName is a case-insensitive substring match.
type ReservationFilter struct {
	Status    string
	GuestName string
	StartDate *time.Time
	EndDate   *time.Time
	CreatedBy string
}

// QueryCapable is the native query engine contract. Implementations answer
// the three read patterns the repositories need; everything else goes
// through direct key access.
type QueryCapable interface {
	QueryReservations(ctx context.Context, f ReservationFilter) ([]*Reservation, error)
	QueryUsersByRole(ctx context.Context, role string) ([]*User, error)
	QueryLogsByReservation(ctx context.Context, reservationID string) ([]*ChangeLog, error)
}

// QueryService answers list queries through two paths: the native query
// engine when one is wired and healthy, and resolution through the KV
// secondary indexes otherwise.
//
// A native error always routes to the fallback. A native empty result is
// trusted for reservations and users but not for change logs, where the
// engine's indexing lag has produced false empties; log lookups re-check
// the KV index before reporting an empty audit trail.
//
// When both paths fail the service degrades to an empty result rather than
// surfacing an error; list endpoints render an empty page instead of a 500.
type QueryService struct {
	store   *Store
	indexes *IndexManager
	native  QueryCapable
	breaker *CircuitBreaker
	logger  Logger
	metrics Metrics
}

// NewQueryService creates a fallback-only query service. Wire a native
// engine with WithNative.
func NewQueryService(store *Store, indexes *IndexManager) *QueryService {
	return &QueryService{
		store:   store,
		indexes: indexes,
		logger:  store.logger,
		metrics: store.metrics,
	}
}

// WithNative wires a native query engine behind a circuit breaker. After
// enough consecutive native failures the breaker opens and queries skip
// straight to the fallback until the engine has had time to recover.
func (q *QueryService) WithNative(native QueryCapable) *QueryService {
	q.native = native
	q.breaker = NewCircuitBreaker(5, 30*time.Second).
		WithStateChangeCallback(func(from, to string) {
			q.logger.Warn("native query engine circuit state changed", "from", from, "to", to)
		})
	return q
}

// FindReservations returns reservations matching the filter, newest first
func (q *QueryService) FindReservations(ctx context.Context, f ReservationFilter) ([]*Reservation, error) {
	start := time.Now()
	defer func() {
		q.metrics.Timing(MetricQueryDuration, time.Since(start), "entity", "reservations")
	}()

	if q.native != nil {
		var results []*Reservation
		err := q.breaker.Execute(ctx, func() error {
			var qerr error
			results, qerr = q.native.QueryReservations(ctx, f)
			return qerr
		})
		if err == nil {
			q.metrics.Increment(MetricQueryNative, "entity", "reservations")
			q.metrics.Histogram(MetricQueryResults, float64(len(results)), "entity", "reservations")
			return sortReservationsDesc(results), nil
		}
		q.logger.Warn("native reservation query failed, using index fallback", "error", err)
	}

	q.metrics.Increment(MetricQueryFallback, "entity", "reservations")
	results, err := q.reservationsFromIndex(ctx, f)
	if err != nil {
		q.metrics.Increment(MetricQueryBothFailed, "entity", "reservations")
		q.logger.Error("both query paths failed, returning empty result", "error", err)
		return []*Reservation{}, nil
	}
	q.metrics.Histogram(MetricQueryResults, float64(len(results)), "entity", "reservations")
	return results, nil
}

// UsersByRole returns users with the given role, newest first
func (q *QueryService) UsersByRole(ctx context.Context, role string) ([]*User, error) {
	start := time.Now()
	defer func() {
		q.metrics.Timing(MetricQueryDuration, time.Since(start), "entity", "users")
	}()

	if q.native != nil {
		var results []*User
		err := q.breaker.Execute(ctx, func() error {
			var qerr error
			results, qerr = q.native.QueryUsersByRole(ctx, role)
			return qerr
		})
		if err == nil {
			q.metrics.Increment(MetricQueryNative, "entity", "users")
			return sortUsersDesc(results), nil
		}
		q.logger.Warn("native user query failed, using index fallback", "error", err)
	}

	q.metrics.Increment(MetricQueryFallback, "entity", "users")
	results, err := q.usersFromIndex(ctx, role)
	if err != nil {
		q.metrics.Increment(MetricQueryBothFailed, "entity", "users")
		q.logger.Error("both query paths failed, returning empty result", "error", err)
		return []*User{}, nil
	}
	return results, nil
}

// LogsByReservation returns a reservation's change logs, newest first.
// A native empty result falls through to the index: an audit trail that
// looks empty because the engine lagged is worse than a second lookup.
func (q *QueryService) LogsByReservation(ctx context.Context, reservationID string) ([]*ChangeLog, error) {
	start := time.Now()
	defer func() {
		q.metrics.Timing(MetricQueryDuration, time.Since(start), "entity", "logs")
	}()

	if q.native != nil {
		var results []*ChangeLog
		err := q.breaker.Execute(ctx, func() error {
			var qerr error
			results, qerr = q.native.QueryLogsByReservation(ctx, reservationID)
			return qerr
		})
		if err == nil && len(results) > 0 {
			q.metrics.Increment(MetricQueryNative, "entity", "logs")
			return sortLogsDesc(results), nil
		}
		if err != nil {
			q.logger.Warn("native log query failed, using index fallback", "error", err)
		}
	}

	q.metrics.Increment(MetricQueryFallback, "entity", "logs")
	results, err := q.logsFromIndex(ctx, reservationID)
	if err != nil {
		q.metrics.Increment(MetricQueryBothFailed, "entity", "logs")
		q.logger.Error("both query paths failed, returning empty result", "error", err)
		return []*ChangeLog{}, nil
	}
	return results, nil
}

func (q *QueryService) reservationsFromIndex(ctx context.Context, f ReservationFilter) ([]*Reservation, error) {
	indexKey := GlobalReservationsIndexKey
	if f.CreatedBy != "" {
		indexKey = UserReservationsIndexKey(f.CreatedBy)
	}

	ids, err := q.indexes.ReadIndex(ctx, indexKey)
	if err != nil {
		return nil, err
	}

	results, err := ResolveAndFilter(ctx, q.store, ids, func(res *Reservation) bool {
		return matchesFilter(res, f)
	})
	if err != nil {
		return nil, err
	}
	return sortReservationsDesc(results), nil
}

func (q *QueryService) usersFromIndex(ctx context.Context, role string) ([]*User, error) {
	ids, err := q.indexes.ReadIndex(ctx, RoleIndexKey(role))
	if err != nil {
		return nil, err
	}

	// Role is re-checked on each document: the index can lag behind a
	// role change, and the document wins
	results, err := ResolveAndFilter(ctx, q.store, ids, func(u *User) bool {
		return u.Role == role
	})
	if err != nil {
		return nil, err
	}
	return sortUsersDesc(results), nil
}

func (q *QueryService) logsFromIndex(ctx context.Context, reservationID string) ([]*ChangeLog, error) {
	ids, err := q.indexes.ReadIndex(ctx, ReservationLogsIndexKey(reservationID))
	if err != nil {
		return nil, err
	}

	results, err := ResolveAndFilter(ctx, q.store, ids, func(l *ChangeLog) bool {
		return l.ReservationID == reservationID
	})
	if err != nil {
		return nil, err
	}
	return sortLogsDesc(results), nil
}

// matchesFilter applies the filter predicates to one reservation
func matchesFilter(res *Reservation, f ReservationFilter) bool {
	if f.Status != "" && res.Status != f.Status {
		return false
	}
	if f.CreatedBy != "" && res.CreatedBy != f.CreatedBy {
		return false
	}
	if f.GuestName != "" &&
		!strings.Contains(strings.ToLower(res.GuestName), strings.ToLower(f.GuestName)) {
		return false
	}
	if f.StartDate != nil && res.ExpectedArrivalTime.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && res.ExpectedArrivalTime.After(*f.EndDate) {
		return false
	}
	return true
}

func sortReservationsDesc(results []*Reservation) []*Reservation {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results
}

func sortUsersDesc(results []*User) []*User {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results
}

func sortLogsDesc(results []*ChangeLog) []*ChangeLog {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results
}
