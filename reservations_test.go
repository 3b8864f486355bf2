package reservebase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestReservationStack(t *testing.T) (*Reservations, *ChangeLogs, *Store) {
	t.Helper()
	store, indexes, query := newTestRepos(t)
	logs := NewChangeLogs(store, indexes, query)
	reservations := NewReservations(store, indexes, query).WithChangeLogs(logs)
	return reservations, logs, store
}

func validReservationInput() NewReservationInput {
	return NewReservationInput{
		GuestName:           "Bob Jones",
		GuestPhone:          "+1 555-0100",
		GuestEmail:          "bob@example.com",
		ExpectedArrivalTime: time.Now().Add(24 * time.Hour),
		TableSize:           4,
		CreatedBy:           "user::1::creator1",
	}
}

func TestReservations_CreateAndFindByCreatedBy(t *testing.T) {
	reservations, _, _ := newTestReservationStack(t)
	ctx := context.Background()

	created, err := reservations.Create(ctx, validReservationInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !strings.HasPrefix(created.ID, "reservation::") {
		t.Errorf("Expected reservation:: key prefix, got %q", created.ID)
	}
	if created.Status != StatusRequested {
		t.Errorf("Expected default status requested, got %q", created.Status)
	}

	found, err := reservations.FindByCreatedBy(ctx, "user::1::creator1")
	if err != nil {
		t.Fatalf("FindByCreatedBy failed: %v", err)
	}
	if len(found) != 1 || found[0].ID != created.ID {
		t.Errorf("Expected created reservation in creator listing, got %+v", found)
	}
}

func TestReservations_CreateCollectsAllViolations(t *testing.T) {
	reservations, _, _ := newTestReservationStack(t)

	_, err := reservations.Create(context.Background(), NewReservationInput{
		GuestName: "",
		TableSize: 50,
	})
	if !IsValidation(err) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}

	msg := err.Error()
	for _, want := range []string{
		"Please provide guest name",
		"Please provide guest contact info",
		"Please provide expected arrival time",
		"Table size must be between 1 and 20",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("Expected violation %q in %q", want, msg)
		}
	}
}

func TestReservations_FindFiltersByStatus(t *testing.T) {
	reservations, _, _ := newTestReservationStack(t)
	ctx := context.Background()

	first, err := reservations.Create(ctx, validReservationInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := reservations.Create(ctx, validReservationInput()); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	employee := &User{ID: "user::2::staff0001", Role: RoleEmployee}
	if _, err := reservations.Approve(ctx, first.ID, employee); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	approved, err := reservations.Find(ctx, ReservationFilter{Status: StatusApproved})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(approved) != 1 || approved[0].ID != first.ID {
		t.Errorf("Expected only the approved reservation, got %+v", approved)
	}
}

func TestReservations_FindOrdersNewestFirst(t *testing.T) {
	reservations, _, _ := newTestReservationStack(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		created, err := reservations.Create(ctx, validReservationInput())
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		ids = append(ids, created.ID)
		time.Sleep(5 * time.Millisecond)
	}

	results, err := reservations.Find(ctx, ReservationFilter{})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 reservations, got %d", len(results))
	}
	for i := 0; i < len(results); i++ {
		if results[i].ID != ids[len(ids)-1-i] {
			t.Errorf("Expected newest-first ordering, position %d got %q", i, results[i].ID)
		}
	}
}

func TestReservations_CancelRecordsChangeLog(t *testing.T) {
	reservations, logs, _ := newTestReservationStack(t)
	ctx := context.Background()

	created, err := reservations.Create(ctx, validReservationInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	owner := &User{ID: "user::1::creator1", Role: RoleGuest}
	cancelled, err := reservations.Cancel(ctx, created.ID, owner)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("Expected status cancelled, got %q", cancelled.Status)
	}

	trail, err := logs.FindByReservationID(ctx, created.ID)
	if err != nil {
		t.Fatalf("FindByReservationID failed: %v", err)
	}
	var found bool
	for _, entry := range trail {
		if entry.Action == ActionCancel && entry.ChangedBy == owner.ID {
			found = true
			if entry.Snapshot == nil || entry.Snapshot.Status != StatusCancelled {
				t.Error("Expected cancel snapshot with cancelled status")
			}
		}
	}
	if !found {
		t.Errorf("Expected cancel entry in audit trail, got %+v", trail)
	}
}

func TestReservations_CancelMissingStillSucceeds(t *testing.T) {
	reservations, _, _ := newTestReservationStack(t)

	actor := &User{ID: "user::2::staff0001", Role: RoleEmployee}
	cancelled, err := reservations.Cancel(context.Background(), "reservation::gone::x", actor)
	if err != nil {
		t.Fatalf("Expected cancel of missing reservation to succeed, got %v", err)
	}
	if cancelled.ID != "reservation::gone::x" {
		t.Errorf("Expected synthesized result to carry the requested id, got %q", cancelled.ID)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("Expected synthesized status cancelled, got %q", cancelled.Status)
	}
}

func TestReservations_DoubleCancelIsIdempotent(t *testing.T) {
	reservations, _, _ := newTestReservationStack(t)
	ctx := context.Background()

	created, err := reservations.Create(ctx, validReservationInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	employee := &User{ID: "user::2::staff0001", Role: RoleEmployee}
	for i := 0; i < 2; i++ {
		cancelled, err := reservations.Cancel(ctx, created.ID, employee)
		if err != nil {
			t.Fatalf("Cancel attempt %d failed: %v", i+1, err)
		}
		if cancelled.Status != StatusCancelled {
			t.Errorf("Cancel attempt %d: expected cancelled, got %q", i+1, cancelled.Status)
		}
	}
}

func TestReservations_GuestCannotApprove(t *testing.T) {
	reservations, _, _ := newTestReservationStack(t)
	ctx := context.Background()

	created, err := reservations.Create(ctx, validReservationInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	guest := &User{ID: "user::3::guest001", Role: RoleGuest}
	_, err = reservations.Approve(ctx, created.ID, guest)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized for guest approve, got %v", err)
	}
}

func TestReservations_GuestCannotCancelOthersReservation(t *testing.T) {
	reservations, _, _ := newTestReservationStack(t)
	ctx := context.Background()

	created, err := reservations.Create(ctx, validReservationInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	stranger := &User{ID: "user::9::stranger1", Role: RoleGuest}
	if _, err := reservations.Cancel(ctx, created.ID, stranger); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized for non-owner guest cancel, got %v", err)
	}

	owner := &User{ID: "user::1::creator1", Role: RoleGuest}
	if _, err := reservations.Cancel(ctx, created.ID, owner); err != nil {
		t.Errorf("Expected owner guest cancel to succeed, got %v", err)
	}
}

func TestReservations_ApproveThenComplete(t *testing.T) {
	reservations, logs, _ := newTestReservationStack(t)
	ctx := context.Background()

	created, err := reservations.Create(ctx, validReservationInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	employee := &User{ID: "user::2::staff0001", Role: RoleEmployee}
	approved, err := reservations.Approve(ctx, created.ID, employee)
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if approved.Status != StatusApproved {
		t.Errorf("Expected approved, got %q", approved.Status)
	}

	completed, err := reservations.Complete(ctx, created.ID, employee)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if completed.Status != StatusCompleted {
		t.Errorf("Expected completed, got %q", completed.Status)
	}

	trail, err := logs.FindByReservationID(ctx, created.ID)
	if err != nil {
		t.Fatalf("FindByReservationID failed: %v", err)
	}
	actions := map[string]bool{}
	for _, entry := range trail {
		actions[entry.Action] = true
	}
	if !actions[ActionCreate] || !actions[ActionApprove] || !actions[ActionComplete] {
		t.Errorf("Expected create, approve, complete in audit trail, got %+v", actions)
	}
}

func TestReservations_DeleteLeavesIndexTolerably(t *testing.T) {
	reservations, _, _ := newTestReservationStack(t)
	ctx := context.Background()

	first, err := reservations.Create(ctx, validReservationInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	second, err := reservations.Create(ctx, validReservationInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := reservations.Delete(ctx, first.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// The index still references the deleted id; readers skip it
	found, err := reservations.FindByCreatedBy(ctx, "user::1::creator1")
	if err != nil {
		t.Fatalf("FindByCreatedBy failed: %v", err)
	}
	if len(found) != 1 || found[0].ID != second.ID {
		t.Errorf("Expected only the surviving reservation, got %+v", found)
	}
}
