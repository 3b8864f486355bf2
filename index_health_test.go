package reservebase

import (
	"context"
	"testing"
	"time"
)

func TestIndexHealer_HealRebuildsRoleIndexes(t *testing.T) {
	store, indexes, _ := newTestRepos(t)
	healer := NewIndexHealer(store, indexes)
	ctx := context.Background()

	// Users written without any index maintenance
	for _, u := range []*User{
		{ID: NewDocumentKey("user"), Type: "user", Role: RoleAdmin, CreatedAt: time.Now()},
		{ID: NewDocumentKey("user"), Type: "user", Role: RoleAdmin, CreatedAt: time.Now()},
		{ID: NewDocumentKey("user"), Type: "user", Role: RoleGuest, CreatedAt: time.Now()},
	} {
		store.Upsert(ctx, u.ID, u)
	}

	if err := healer.Heal(ctx); err != nil {
		t.Fatalf("Heal failed: %v", err)
	}

	admins, err := indexes.ReadIndex(ctx, RoleIndexKey(RoleAdmin))
	if err != nil {
		t.Fatalf("ReadIndex failed: %v", err)
	}
	if len(admins) != 2 {
		t.Errorf("Expected 2 admins in rebuilt index, got %d", len(admins))
	}

	guests, _ := indexes.ReadIndex(ctx, RoleIndexKey(RoleGuest))
	if len(guests) != 1 {
		t.Errorf("Expected 1 guest in rebuilt index, got %d", len(guests))
	}
}

func TestIndexHealer_HealRebuildsReservationIndexes(t *testing.T) {
	store, indexes, _ := newTestRepos(t)
	healer := NewIndexHealer(store, indexes)
	ctx := context.Background()

	// Stale entry that the rebuild must drop
	indexes.AddToIndex(ctx, GlobalReservationsIndexKey, "reservation::gone::x")

	res := &Reservation{
		ID:        NewDocumentKey("reservation"),
		Type:      "reservation",
		CreatedBy: "user::1::a",
		CreatedAt: time.Now(),
	}
	store.Upsert(ctx, res.ID, res)

	if err := healer.Heal(ctx); err != nil {
		t.Fatalf("Heal failed: %v", err)
	}

	global, _ := indexes.ReadIndex(ctx, GlobalReservationsIndexKey)
	if len(global) != 1 || global[0] != res.ID {
		t.Errorf("Expected rebuilt global index with only the live id, got %v", global)
	}

	byUser, _ := indexes.ReadIndex(ctx, UserReservationsIndexKey("user::1::a"))
	if len(byUser) != 1 || byUser[0] != res.ID {
		t.Errorf("Expected rebuilt per-user index, got %v", byUser)
	}
}

func TestIndexHealer_HealRebuildsLogIndexes(t *testing.T) {
	store, indexes, _ := newTestRepos(t)
	healer := NewIndexHealer(store, indexes)
	ctx := context.Background()

	entry := &ChangeLog{
		ID:            NewDocumentKey("log"),
		Type:          "log",
		ReservationID: "reservation::1::a",
		Action:        ActionCancel,
		ChangedBy:     "user::1::a",
		CreatedAt:     time.Now(),
	}
	store.Upsert(ctx, entry.ID, entry)

	if err := healer.Heal(ctx); err != nil {
		t.Fatalf("Heal failed: %v", err)
	}

	ids, _ := indexes.ReadIndex(ctx, ReservationLogsIndexKey("reservation::1::a"))
	if len(ids) != 1 || ids[0] != entry.ID {
		t.Errorf("Expected rebuilt log index, got %v", ids)
	}
}

func TestIndexHealer_CheckReportsDrift(t *testing.T) {
	store, indexes, _ := newTestRepos(t)
	healer := NewIndexHealer(store, indexes)
	ctx := context.Background()

	// One indexed and live, one live but missing from the index, one stale
	live := &Reservation{ID: NewDocumentKey("reservation"), Type: "reservation", CreatedAt: time.Now()}
	store.Upsert(ctx, live.ID, live)
	indexes.AddToIndex(ctx, GlobalReservationsIndexKey, live.ID)

	missing := &Reservation{ID: NewDocumentKey("reservation"), Type: "reservation", CreatedAt: time.Now()}
	store.Upsert(ctx, missing.ID, missing)

	indexes.AddToIndex(ctx, GlobalReservationsIndexKey, "reservation::gone::x")

	report, err := healer.Check(ctx)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if report.TotalDocuments != 2 {
		t.Errorf("Expected 2 documents counted, got %d", report.TotalDocuments)
	}
	if report.MissingEntries != 1 {
		t.Errorf("Expected 1 missing entry, got %d", report.MissingEntries)
	}
	if report.StaleEntries != 1 {
		t.Errorf("Expected 1 stale entry, got %d", report.StaleEntries)
	}
	if report.DriftPercentage != 100.0 {
		t.Errorf("Expected 100%% drift (2 problems / 2 documents), got %v", report.DriftPercentage)
	}

	// Heal then re-check: drift gone
	if err := healer.Heal(ctx); err != nil {
		t.Fatalf("Heal failed: %v", err)
	}
	report, err = healer.Check(ctx)
	if err != nil {
		t.Fatalf("Check after heal failed: %v", err)
	}
	if report.DriftPercentage != 0 {
		t.Errorf("Expected zero drift after heal, got %v", report.DriftPercentage)
	}
}
