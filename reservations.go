package reservebase

import (
	"context"
	"strings"
	"time"
)

// Reservation statuses
const (
	StatusRequested = "requested"
	StatusApproved  = "approved"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// GuestContactInfo holds how to reach the guest
type GuestContactInfo struct {
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// Reservation is the booking document
type Reservation struct {
	ID                  string           `json:"id"`
	Type                string           `json:"type"`
	GuestName           string           `json:"guestName"`
	GuestContactInfo    GuestContactInfo `json:"guestContactInfo"`
	ExpectedArrivalTime time.Time        `json:"expectedArrivalTime"`
	TableSize           int              `json:"tableSize"`
	Status              string           `json:"status"`
	SpecialRequests     string           `json:"specialRequests,omitempty"`
	CreatedBy           string           `json:"createdBy"`
	CreatedAt           time.Time        `json:"createdAt"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

// NewReservationInput carries the fields accepted at reservation creation
type NewReservationInput struct {
	GuestName           string
	GuestPhone          string
	GuestEmail          string
	ExpectedArrivalTime time.Time
	TableSize           int
	SpecialRequests     string
	Status              string
	CreatedBy           string
}

func validStatus(status string) bool {
	switch status {
	case StatusRequested, StatusApproved, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

func validateNewReservation(in NewReservationInput) []string {
	var errs []string

	if strings.TrimSpace(in.GuestName) == "" {
		errs = append(errs, "Please provide guest name")
	} else if len(in.GuestName) > 50 {
		errs = append(errs, "Guest name cannot be more than 50 characters")
	}

	if in.GuestPhone == "" && in.GuestEmail == "" {
		errs = append(errs, "Please provide guest contact info")
	} else {
		if in.GuestPhone == "" {
			errs = append(errs, "Please provide phone number")
		} else if !phonePattern.MatchString(in.GuestPhone) {
			errs = append(errs, "Please provide a valid phone number")
		}

		if in.GuestEmail == "" {
			errs = append(errs, "Please provide email address")
		} else if !emailPattern.MatchString(in.GuestEmail) {
			errs = append(errs, "Please provide a valid email")
		}
	}

	if in.ExpectedArrivalTime.IsZero() {
		errs = append(errs, "Please provide expected arrival time")
	}

	if in.TableSize == 0 {
		errs = append(errs, "Please provide table size")
	} else if in.TableSize < 1 || in.TableSize > 20 {
		errs = append(errs, "Table size must be between 1 and 20")
	}

	if len(in.SpecialRequests) > 500 {
		errs = append(errs, "Special requests cannot be more than 500 characters")
	}

	if in.Status != "" && !validStatus(in.Status) {
		errs = append(errs, "Status must be requested, approved, cancelled, or completed")
	}

	return errs
}

// Reservations is the reservation repository
type Reservations struct {
	store      *Store
	indexes    *IndexManager
	query      *QueryService
	changelogs *ChangeLogs
	advisory   *advisoryWriter
	logger     Logger
}

// NewReservations creates the reservation repository
func NewReservations(store *Store, indexes *IndexManager, query *QueryService) *Reservations {
	return &Reservations{
		store:    store,
		indexes:  indexes,
		query:    query,
		advisory: newAdvisoryWriter(store.logger, store.metrics),
		logger:   store.logger,
	}
}

// WithChangeLogs wires the change-log recorder; status actions then record
// audit snapshots best-effort
func (r *Reservations) WithChangeLogs(changelogs *ChangeLogs) *Reservations {
	r.changelogs = changelogs
	return r
}

// Create validates and inserts the reservation, then appends its id to the
// creator's index and the global index. The index appends are advisory:
// the reservation exists once the primary insert succeeds.
func (r *Reservations) Create(ctx context.Context, in NewReservationInput) (*Reservation, error) {
	if violations := validateNewReservation(in); len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	status := in.Status
	if status == "" {
		status = StatusRequested
	}

	now := time.Now()
	res := &Reservation{
		ID:        NewDocumentKey("reservation"),
		Type:      "reservation",
		GuestName: strings.TrimSpace(in.GuestName),
		GuestContactInfo: GuestContactInfo{
			Phone: in.GuestPhone,
			Email: strings.ToLower(in.GuestEmail),
		},
		ExpectedArrivalTime: in.ExpectedArrivalTime,
		TableSize:           in.TableSize,
		Status:              status,
		SpecialRequests:     in.SpecialRequests,
		CreatedBy:           in.CreatedBy,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := r.store.Insert(ctx, res.ID, res); err != nil {
		return nil, err
	}

	if res.CreatedBy != "" {
		indexKey := UserReservationsIndexKey(res.CreatedBy)
		r.advisory.Do(ctx, "add to user reservations index", indexKey, func(ctx context.Context) error {
			return r.indexes.AddToIndex(ctx, indexKey, res.ID)
		})
	}
	r.advisory.Do(ctx, "add to global reservations index", GlobalReservationsIndexKey, func(ctx context.Context) error {
		return r.indexes.AddToIndex(ctx, GlobalReservationsIndexKey, res.ID)
	})

	r.record(ctx, ActionCreate, res.CreatedBy, res)

	r.logger.Info("reservation created", "id", res.ID, "createdBy", res.CreatedBy)
	return res, nil
}

// FindByID fetches one reservation
func (r *Reservations) FindByID(ctx context.Context, id string) (*Reservation, error) {
	var res Reservation
	if err := r.store.GetJSON(ctx, id, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Find returns reservations matching the filter, newest first
func (r *Reservations) Find(ctx context.Context, f ReservationFilter) ([]*Reservation, error) {
	return r.query.FindReservations(ctx, f)
}

// FindByCreatedBy returns the reservations created by a user, newest first
func (r *Reservations) FindByCreatedBy(ctx context.Context, userID string) ([]*Reservation, error) {
	return r.query.FindReservations(ctx, ReservationFilter{CreatedBy: userID})
}

// Save rewrites the full reservation document
func (r *Reservations) Save(ctx context.Context, res *Reservation) (*Reservation, error) {
	res.UpdatedAt = time.Now()
	if err := r.store.Upsert(ctx, res.ID, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Delete removes the reservation document. Index references stay behind;
// readers skip dangling ids.
func (r *Reservations) Delete(ctx context.Context, id string) error {
	return r.store.Remove(ctx, id)
}

// Approve moves a reservation to approved and records the change.
// Guests cannot approve.
func (r *Reservations) Approve(ctx context.Context, id string, actor *User) (*Reservation, error) {
	return r.transition(ctx, id, actor, StatusApproved, ActionApprove)
}

// Complete moves a reservation to completed and records the change.
// Guests cannot complete.
func (r *Reservations) Complete(ctx context.Context, id string, actor *User) (*Reservation, error) {
	return r.transition(ctx, id, actor, StatusCompleted, ActionComplete)
}

func (r *Reservations) transition(ctx context.Context, id string, actor *User, status, action string) (*Reservation, error) {
	if actor != nil && actor.Role == RoleGuest {
		return nil, WithContext(ErrUnauthorized, map[string]interface{}{
			"action": action,
			"role":   actor.Role,
		})
	}

	res, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	res.Status = status
	if _, err := r.Save(ctx, res); err != nil {
		return nil, err
	}

	r.record(ctx, action, actorID(actor), res)
	return res, nil
}

// Cancel is idempotent: cancelling a reservation whose document has already
// vanished, or whose save fails, still reports success with a synthesized
// cancelled result. Callers cannot distinguish "already cancelled" from
// "freshly cancelled".
func (r *Reservations) Cancel(ctx context.Context, id string, actor *User) (*Reservation, error) {
	res, err := r.FindByID(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return r.synthesizeCancelled(ctx, id, actor), nil
		}
		return nil, err
	}

	if actor != nil && actor.Role == RoleGuest && actor.ID != res.CreatedBy {
		return nil, WithContext(ErrUnauthorized, map[string]interface{}{
			"action": ActionCancel,
			"role":   actor.Role,
		})
	}

	res.Status = StatusCancelled
	if _, err := r.Save(ctx, res); err != nil {
		r.logger.Warn("cancel save failed, reporting cancelled anyway", "id", id, "error", err)
		return r.synthesizeCancelled(ctx, id, actor), nil
	}

	r.record(ctx, ActionCancel, actorID(actor), res)
	return res, nil
}

func (r *Reservations) synthesizeCancelled(ctx context.Context, id string, actor *User) *Reservation {
	res := &Reservation{
		ID:        id,
		Type:      "reservation",
		Status:    StatusCancelled,
		UpdatedAt: time.Now(),
	}
	r.record(ctx, ActionCancel, actorID(actor), res)
	return res
}

// record appends an audit entry best-effort; a reservation change never
// fails because its log could not be written
func (r *Reservations) record(ctx context.Context, action, changedBy string, snapshot *Reservation) {
	if r.changelogs == nil || changedBy == "" {
		return
	}
	r.advisory.Do(ctx, "record change log", snapshot.ID, func(ctx context.Context) error {
		_, err := r.changelogs.Create(ctx, NewChangeLogInput{
			ReservationID: snapshot.ID,
			Action:        action,
			ChangedBy:     changedBy,
			Snapshot:      snapshot,
		})
		return err
	})
}

func actorID(actor *User) string {
	if actor == nil {
		return ""
	}
	return actor.ID
}
