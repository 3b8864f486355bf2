package reservebase

import (
	"context"
	"errors"
	"testing"
	"time"
)

// stubEngine is a canned QueryCapable for exercising the facade's routing
type stubEngine struct {
	reservations []*Reservation
	users        []*User
	logs         []*ChangeLog
	err          error
	calls        int
}

func (s *stubEngine) QueryReservations(ctx context.Context, f ReservationFilter) ([]*Reservation, error) {
	s.calls++
	return s.reservations, s.err
}

func (s *stubEngine) QueryUsersByRole(ctx context.Context, role string) ([]*User, error) {
	s.calls++
	return s.users, s.err
}

func (s *stubEngine) QueryLogsByReservation(ctx context.Context, reservationID string) ([]*ChangeLog, error) {
	s.calls++
	return s.logs, s.err
}

// failingBackend refuses every operation
type failingBackend struct{}

var errBackendDown = errors.New("backend down")

func (failingBackend) Get(ctx context.Context, key string) ([]byte, error) { return nil, errBackendDown }
func (failingBackend) Put(ctx context.Context, key string, data []byte) error {
	return errBackendDown
}
func (failingBackend) PutIfAbsent(ctx context.Context, key string, data []byte) error {
	return errBackendDown
}
func (failingBackend) Delete(ctx context.Context, key string) error          { return errBackendDown }
func (failingBackend) Exists(ctx context.Context, key string) (bool, error) { return false, errBackendDown }
func (failingBackend) List(ctx context.Context, prefix string) ([]string, error) {
	return nil, errBackendDown
}
func (failingBackend) Ping(ctx context.Context) error { return errBackendDown }
func (failingBackend) Close() error                   { return nil }

func TestQueryService_PrefersNative(t *testing.T) {
	store, indexes, _ := newTestRepos(t)
	metrics := NewInMemoryMetrics()
	store.SetMetrics(metrics)
	ctx := context.Background()

	// Index deliberately disagrees with the engine; native must win
	native := &stubEngine{reservations: []*Reservation{{ID: "reservation::native::a"}}}
	query := NewQueryService(store, indexes).WithNative(native)

	indexes.AddToIndex(ctx, GlobalReservationsIndexKey, "reservation::indexed::b")

	results, err := query.FindReservations(ctx, ReservationFilter{})
	if err != nil {
		t.Fatalf("FindReservations failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "reservation::native::a" {
		t.Errorf("Expected native result, got %+v", results)
	}
	if metrics.Counters[MetricQueryNative] != 1 {
		t.Errorf("Expected native counter 1, got %d", metrics.Counters[MetricQueryNative])
	}
	if metrics.Counters[MetricQueryFallback] != 0 {
		t.Errorf("Expected no fallback, got %d", metrics.Counters[MetricQueryFallback])
	}
}

func TestQueryService_NativeErrorFallsBack(t *testing.T) {
	store, indexes, _ := newTestRepos(t)
	metrics := NewInMemoryMetrics()
	store.SetMetrics(metrics)
	ctx := context.Background()

	res := &Reservation{ID: "reservation::1::abc", Status: StatusRequested, CreatedAt: time.Now()}
	store.Upsert(ctx, res.ID, res)
	indexes.AddToIndex(ctx, GlobalReservationsIndexKey, res.ID)

	native := &stubEngine{err: errors.New("engine down")}
	query := NewQueryService(store, indexes).WithNative(native)

	results, err := query.FindReservations(ctx, ReservationFilter{})
	if err != nil {
		t.Fatalf("FindReservations failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != res.ID {
		t.Errorf("Expected fallback result, got %+v", results)
	}
	if native.calls != 1 {
		t.Errorf("Expected native attempted once, got %d", native.calls)
	}
	if metrics.Counters[MetricQueryFallback] != 1 {
		t.Errorf("Expected fallback counter 1, got %d", metrics.Counters[MetricQueryFallback])
	}
}

func TestQueryService_EmptyNativeTrustedForReservations(t *testing.T) {
	store, indexes, _ := newTestRepos(t)
	ctx := context.Background()

	// Index has an entry, but native legitimately found nothing
	res := &Reservation{ID: "reservation::1::abc", CreatedAt: time.Now()}
	store.Upsert(ctx, res.ID, res)
	indexes.AddToIndex(ctx, GlobalReservationsIndexKey, res.ID)

	native := &stubEngine{reservations: []*Reservation{}}
	query := NewQueryService(store, indexes).WithNative(native)

	results, err := query.FindReservations(ctx, ReservationFilter{})
	if err != nil {
		t.Fatalf("FindReservations failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected empty native result to be trusted, got %+v", results)
	}
}

func TestQueryService_EmptyNativeNotTrustedForLogs(t *testing.T) {
	store, indexes, _ := newTestRepos(t)
	ctx := context.Background()

	entry := &ChangeLog{
		ID:            "log::1::abc",
		Type:          "log",
		ReservationID: "reservation::1::abc",
		Action:        ActionCancel,
		ChangedBy:     "user::1::a",
		CreatedAt:     time.Now(),
	}
	store.Upsert(ctx, entry.ID, entry)
	indexes.AddToIndex(ctx, ReservationLogsIndexKey(entry.ReservationID), entry.ID)

	// Engine reports no logs; the index knows better
	native := &stubEngine{logs: []*ChangeLog{}}
	query := NewQueryService(store, indexes).WithNative(native)

	trail, err := query.LogsByReservation(ctx, entry.ReservationID)
	if err != nil {
		t.Fatalf("LogsByReservation failed: %v", err)
	}
	if len(trail) != 1 || trail[0].ID != entry.ID {
		t.Errorf("Expected index fallback to recover the log entry, got %+v", trail)
	}
}

func TestQueryService_BothPathsFailDegradesToEmpty(t *testing.T) {
	store := NewStore(failingBackend{})
	metrics := NewInMemoryMetrics()
	store.SetMetrics(metrics)
	indexes := NewIndexManager(store)

	native := &stubEngine{err: errors.New("engine down")}
	query := NewQueryService(store, indexes).WithNative(native)

	results, err := query.FindReservations(context.Background(), ReservationFilter{})
	if err != nil {
		t.Fatalf("Expected degraded empty result, got error %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected empty result, got %+v", results)
	}
	if metrics.Counters[MetricQueryBothFailed] != 1 {
		t.Errorf("Expected both_failed counter 1, got %d", metrics.Counters[MetricQueryBothFailed])
	}
}

func TestQueryService_CircuitBreakerSkipsNative(t *testing.T) {
	store, indexes, _ := newTestRepos(t)
	ctx := context.Background()

	native := &stubEngine{err: errors.New("engine down")}
	query := NewQueryService(store, indexes).WithNative(native)

	// Trip the breaker
	for i := 0; i < 5; i++ {
		query.FindReservations(ctx, ReservationFilter{})
	}
	callsWhenOpen := native.calls

	// Open circuit: the engine must not be called again
	query.FindReservations(ctx, ReservationFilter{})
	if native.calls != callsWhenOpen {
		t.Errorf("Expected native skipped while circuit open, calls went %d -> %d", callsWhenOpen, native.calls)
	}
}

func TestQueryService_NativeAndFallbackAgree(t *testing.T) {
	store, indexes, _ := newTestRepos(t)
	ctx := context.Background()

	withNative := NewQueryService(store, indexes).WithNative(NewSQLQueryEngine(store))
	fallbackOnly := NewQueryService(store, indexes)

	for i, status := range []string{StatusRequested, StatusApproved, StatusRequested} {
		res := &Reservation{
			ID:        NewDocumentKey("reservation"),
			Type:      "reservation",
			GuestName: "Guest",
			Status:    status,
			CreatedBy: "user::1::creator1",
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}
		store.Upsert(ctx, res.ID, res)
		indexes.AddToIndex(ctx, GlobalReservationsIndexKey, res.ID)
	}

	filter := ReservationFilter{Status: StatusRequested}
	nativeResults, err := withNative.FindReservations(ctx, filter)
	if err != nil {
		t.Fatalf("Native query failed: %v", err)
	}
	fallbackResults, err := fallbackOnly.FindReservations(ctx, filter)
	if err != nil {
		t.Fatalf("Fallback query failed: %v", err)
	}

	if len(nativeResults) != 2 || len(fallbackResults) != 2 {
		t.Fatalf("Expected 2 results on both paths, got native=%d fallback=%d",
			len(nativeResults), len(fallbackResults))
	}
	for i := range nativeResults {
		if nativeResults[i].ID != fallbackResults[i].ID {
			t.Errorf("Path disagreement at %d: native %q, fallback %q",
				i, nativeResults[i].ID, fallbackResults[i].ID)
		}
	}
}
