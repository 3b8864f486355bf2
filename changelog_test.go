package reservebase

import (
	"context"
	"strings"
	"testing"
	"time"
)

func newTestChangeLogs(t *testing.T) (*ChangeLogs, *Store) {
	t.Helper()
	store, indexes, query := newTestRepos(t)
	return NewChangeLogs(store, indexes, query), store
}

func TestChangeLogs_CreateAndFindByReservation(t *testing.T) {
	logs, _ := newTestChangeLogs(t)
	ctx := context.Background()

	entry, err := logs.Create(ctx, NewChangeLogInput{
		ReservationID: "reservation::1::abc",
		Action:        ActionApprove,
		ChangedBy:     "user::2::staff0001",
		Snapshot:      &Reservation{ID: "reservation::1::abc", Status: StatusApproved},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !strings.HasPrefix(entry.ID, "log::") {
		t.Errorf("Expected log:: key prefix, got %q", entry.ID)
	}
	if entry.Type != "log" {
		t.Errorf("Expected type 'log', got %q", entry.Type)
	}

	trail, err := logs.FindByReservationID(ctx, "reservation::1::abc")
	if err != nil {
		t.Fatalf("FindByReservationID failed: %v", err)
	}
	if len(trail) != 1 || trail[0].ID != entry.ID {
		t.Fatalf("Expected single entry in trail, got %+v", trail)
	}
	if trail[0].Snapshot == nil || trail[0].Snapshot.Status != StatusApproved {
		t.Error("Expected snapshot to round-trip")
	}
}

func TestChangeLogs_CreateValidates(t *testing.T) {
	logs, _ := newTestChangeLogs(t)

	_, err := logs.Create(context.Background(), NewChangeLogInput{
		Action: "teleport",
	})
	if !IsValidation(err) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}

	msg := err.Error()
	for _, want := range []string{
		"Please provide reservation id",
		"Action must be create, update, approve, cancel, or complete",
		"Please provide the user making the change",
		"Snapshot is required",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("Expected violation %q in %q", want, msg)
		}
	}
}

func TestChangeLogs_CreateRejectsMissingSnapshot(t *testing.T) {
	logs, store := newTestChangeLogs(t)
	ctx := context.Background()

	_, err := logs.Create(ctx, NewChangeLogInput{
		ReservationID: "reservation::1::abc",
		Action:        ActionCreate,
		ChangedBy:     "user::1::a",
	})
	if !IsValidation(err) {
		t.Fatalf("Expected ValidationError for nil snapshot, got %v", err)
	}
	if !strings.Contains(err.Error(), "Snapshot is required") {
		t.Errorf("Expected snapshot violation, got %q", err.Error())
	}

	// The rejected entry must not be persisted
	keys, err := store.List(ctx, LogKeyPrefix)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Expected no log documents, got %v", keys)
	}
}

func TestChangeLogs_EmptyTrailIsEmptyNotError(t *testing.T) {
	logs, _ := newTestChangeLogs(t)

	trail, err := logs.FindByReservationID(context.Background(), "reservation::quiet::x")
	if err != nil {
		t.Fatalf("Expected no error for empty trail, got %v", err)
	}
	if len(trail) != 0 {
		t.Errorf("Expected empty trail, got %+v", trail)
	}
}

func TestChangeLogs_TrailOrdersNewestFirst(t *testing.T) {
	logs, _ := newTestChangeLogs(t)
	ctx := context.Background()

	actions := []string{ActionCreate, ActionApprove, ActionComplete}
	for _, action := range actions {
		_, err := logs.Create(ctx, NewChangeLogInput{
			ReservationID: "reservation::1::abc",
			Action:        action,
			ChangedBy:     "user::2::staff0001",
			Snapshot:      &Reservation{ID: "reservation::1::abc"},
		})
		if err != nil {
			t.Fatalf("Create %s failed: %v", action, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	trail, err := logs.FindByReservationID(ctx, "reservation::1::abc")
	if err != nil {
		t.Fatalf("FindByReservationID failed: %v", err)
	}
	if len(trail) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(trail))
	}
	for i, want := range []string{ActionComplete, ActionApprove, ActionCreate} {
		if trail[i].Action != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, trail[i].Action)
		}
	}
}
