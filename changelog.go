package reservebase

import (
	"context"
	"time"
)

// Change-log actions
const (
	ActionCreate   = "create"
	ActionUpdate   = "update"
	ActionApprove  = "approve"
	ActionCancel   = "cancel"
	ActionComplete = "complete"
)

// ChangeLog is an audit record for one reservation change. The snapshot
// captures the full reservation state at the time of the change; audit
// readers never have to replay history to see what a change produced.
type ChangeLog struct {
	ID            string       `json:"id"`
	Type          string       `json:"type"`
	ReservationID string       `json:"reservationId"`
	Action        string       `json:"action"`
	ChangedBy     string       `json:"changedBy"`
	Snapshot      *Reservation `json:"snapshot,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// NewChangeLogInput carries the fields accepted at change-log creation
type NewChangeLogInput struct {
	ReservationID string
	Action        string
	ChangedBy     string
	Snapshot      *Reservation
}

func validAction(action string) bool {
	switch action {
	case ActionCreate, ActionUpdate, ActionApprove, ActionCancel, ActionComplete:
		return true
	}
	return false
}

func validateNewChangeLog(in NewChangeLogInput) []string {
	var errs []string

	if in.ReservationID == "" {
		errs = append(errs, "Please provide reservation id")
	}
	if in.Action == "" {
		errs = append(errs, "Please provide action")
	} else if !validAction(in.Action) {
		errs = append(errs, "Action must be create, update, approve, cancel, or complete")
	}
	if in.ChangedBy == "" {
		errs = append(errs, "Please provide the user making the change")
	}
	if in.Snapshot == nil {
		errs = append(errs, "Snapshot is required")
	}

	return errs
}

// ChangeLogs is the change-log repository
type ChangeLogs struct {
	store    *Store
	indexes  *IndexManager
	query    *QueryService
	advisory *advisoryWriter
	logger   Logger
}

// NewChangeLogs creates the change-log repository
func NewChangeLogs(store *Store, indexes *IndexManager, query *QueryService) *ChangeLogs {
	return &ChangeLogs{
		store:    store,
		indexes:  indexes,
		query:    query,
		advisory: newAdvisoryWriter(store.logger, store.metrics),
		logger:   store.logger,
	}
}

// Create validates and inserts the change-log entry, then appends its id to
// the per-reservation log index. Logs are immutable once written; there is
// no save path.
func (r *ChangeLogs) Create(ctx context.Context, in NewChangeLogInput) (*ChangeLog, error) {
	if violations := validateNewChangeLog(in); len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	entry := &ChangeLog{
		ID:            NewDocumentKey("log"),
		Type:          "log",
		ReservationID: in.ReservationID,
		Action:        in.Action,
		ChangedBy:     in.ChangedBy,
		Snapshot:      in.Snapshot,
		CreatedAt:     time.Now(),
	}

	if err := r.store.Insert(ctx, entry.ID, entry); err != nil {
		return nil, err
	}

	indexKey := ReservationLogsIndexKey(entry.ReservationID)
	r.advisory.Do(ctx, "add to reservation logs index", indexKey, func(ctx context.Context) error {
		return r.indexes.AddToIndex(ctx, indexKey, entry.ID)
	})

	return entry, nil
}

// FindByID fetches one change-log entry
func (r *ChangeLogs) FindByID(ctx context.Context, id string) (*ChangeLog, error) {
	var entry ChangeLog
	if err := r.store.GetJSON(ctx, id, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// FindByReservationID returns the audit trail for a reservation, newest
// first. An empty result means no recorded changes, never an error.
func (r *ChangeLogs) FindByReservationID(ctx context.Context, reservationID string) ([]*ChangeLog, error) {
	return r.query.LogsByReservation(ctx, reservationID)
}
