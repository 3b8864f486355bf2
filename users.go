package reservebase

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// User roles
const (
	RoleGuest    = "guest"
	RoleEmployee = "employee"
	RoleAdmin    = "admin"
)

var (
	emailPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)
	phonePattern = regexp.MustCompile(`^\+?[\d\s()-]+$`)
)

// User is the account document. Exactly one document exists per normalized
// email; uniqueness is enforced through the email::<email> pointer document.
type User struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Password        string    `json:"password,omitempty"`
	Role            string    `json:"role"`
	Phone           string    `json:"phone"`
	PasswordChanged bool      `json:"passwordChanged"`
	Disabled        bool      `json:"disabled"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt,omitempty"`
}

// EmailPointer maps a normalized email to its user document id
type EmailPointer struct {
	UserID string `json:"userId"`
}

// NewUserInput carries the fields accepted at user creation
type NewUserInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
	Role     string
}

func validateNewUser(in NewUserInput) []string {
	var errs []string

	if strings.TrimSpace(in.Name) == "" {
		errs = append(errs, "Please provide a name")
	} else if len(in.Name) > 50 {
		errs = append(errs, "Name cannot be more than 50 characters")
	}

	if in.Email == "" {
		errs = append(errs, "Please provide an email")
	} else if !emailPattern.MatchString(in.Email) {
		errs = append(errs, "Please provide a valid email")
	}

	if in.Password == "" {
		errs = append(errs, "Please provide a password")
	} else if len(in.Password) < 6 {
		errs = append(errs, "Password must be at least 6 characters")
	}

	if in.Phone == "" {
		errs = append(errs, "Please provide a phone number")
	} else if !phonePattern.MatchString(in.Phone) {
		errs = append(errs, "Please provide a valid phone number")
	}

	if in.Role != "" && in.Role != RoleGuest && in.Role != RoleEmployee && in.Role != RoleAdmin {
		errs = append(errs, "Role must be guest, employee, or admin")
	}

	return errs
}

// Users is the user repository
type Users struct {
	store    *Store
	indexes  *IndexManager
	query    *QueryService
	hasher   PasswordHasher
	advisory *advisoryWriter
	logger   Logger
}

// NewUsers creates the user repository
func NewUsers(store *Store, indexes *IndexManager, query *QueryService, hasher PasswordHasher) *Users {
	return &Users{
		store:    store,
		indexes:  indexes,
		query:    query,
		hasher:   hasher,
		advisory: newAdvisoryWriter(store.logger, store.metrics),
		logger:   store.logger,
	}
}

// Create validates the input, enforces email uniqueness through the pointer
// document, writes the user document, then verifies the write by re-reading
// it. The store has exhibited silent partial writes before, so a failed
// verification deletes both documents and reports an IntegrityError rather
// than leaving a user that cannot log in.
func (r *Users) Create(ctx context.Context, in NewUserInput) (*User, error) {
	if violations := validateNewUser(in); len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	email := strings.ToLower(in.Email)
	pointerKey := EmailPointerKey(email)

	exists, err := r.store.Exists(ctx, pointerKey)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, WithContext(ErrConflict, map[string]interface{}{
			"field": "email",
			"value": email,
		})
	}

	digest, err := r.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	role := in.Role
	if role == "" {
		role = RoleGuest
	}

	user := &User{
		ID:        NewDocumentKey("user"),
		Type:      "user",
		Name:      strings.TrimSpace(in.Name),
		Email:     email,
		Password:  digest,
		Role:      role,
		Phone:     in.Phone,
		CreatedAt: time.Now(),
	}

	if err := r.store.Insert(ctx, user.ID, user); err != nil {
		return nil, err
	}

	if err := r.store.Insert(ctx, pointerKey, &EmailPointer{UserID: user.ID}); err != nil {
		// Another writer won the email; take back the user document
		r.advisory.Do(ctx, "compensate user create", user.ID, func(ctx context.Context) error {
			return r.store.Remove(ctx, user.ID)
		})
		if IsConflict(err) {
			return nil, WithContext(ErrConflict, map[string]interface{}{
				"field": "email",
				"value": email,
			})
		}
		return nil, err
	}

	r.advisory.Do(ctx, "add to role index", RoleIndexKey(role), func(ctx context.Context) error {
		return r.indexes.AddToIndex(ctx, RoleIndexKey(role), user.ID)
	})

	if err := r.verifyCreate(ctx, user, pointerKey); err != nil {
		r.compensateCreate(ctx, user.ID, pointerKey)
		return nil, err
	}

	r.logger.Info("user created", "id", user.ID, "role", role)
	return user, nil
}

// verifyCreate re-reads both documents and checks the fields that have
// historically gone missing in partial writes
func (r *Users) verifyCreate(ctx context.Context, user *User, pointerKey string) error {
	var stored User
	if err := r.store.GetJSON(ctx, user.ID, &stored); err != nil {
		r.store.metrics.Increment(MetricIntegrityFailures)
		return &IntegrityError{Key: user.ID, Reason: "user document unreadable after write"}
	}
	if stored.Password == "" {
		r.store.metrics.Increment(MetricIntegrityFailures)
		return &IntegrityError{Key: user.ID, Reason: "password field missing after write"}
	}

	var pointer EmailPointer
	if err := r.store.GetJSON(ctx, pointerKey, &pointer); err != nil || pointer.UserID == "" {
		r.store.metrics.Increment(MetricIntegrityFailures)
		return &IntegrityError{Key: pointerKey, Reason: "email pointer missing after write"}
	}

	return nil
}

func (r *Users) compensateCreate(ctx context.Context, userKey, pointerKey string) {
	r.advisory.Do(ctx, "compensate user create", userKey, func(ctx context.Context) error {
		return r.store.Remove(ctx, userKey)
	})
	r.advisory.Do(ctx, "compensate user create", pointerKey, func(ctx context.Context) error {
		return r.store.Remove(ctx, pointerKey)
	})
}

// FindByID returns the user with the password digest scrubbed
func (r *Users) FindByID(ctx context.Context, id string) (*User, error) {
	var user User
	if err := r.store.GetJSON(ctx, id, &user); err != nil {
		return nil, err
	}
	user.Password = ""
	return &user, nil
}

// FindByEmail resolves the email pointer and fetches the user. A missing
// pointer and a missing user document both collapse to ErrNotFound; callers
// never learn which half was absent.
func (r *Users) FindByEmail(ctx context.Context, email string) (*User, error) {
	user, err := r.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	user.Password = ""
	return user, nil
}

// FindByEmailWithPassword is FindByEmail keeping the password digest, for
// credential verification by the auth layer
func (r *Users) FindByEmailWithPassword(ctx context.Context, email string) (*User, error) {
	user, err := r.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user.Password == "" {
		return nil, &IntegrityError{Key: user.ID, Reason: "password field missing"}
	}
	return user, nil
}

func (r *Users) findByEmail(ctx context.Context, email string) (*User, error) {
	var pointer EmailPointer
	if err := r.store.GetJSON(ctx, EmailPointerKey(email), &pointer); err != nil {
		if IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var user User
	if err := r.store.GetJSON(ctx, pointer.UserID, &user); err != nil {
		if IsNotFound(err) {
			// Dangling pointer reads the same as no pointer at all
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindByRole lists users with the given role, via the query facade
func (r *Users) FindByRole(ctx context.Context, role string) ([]*User, error) {
	users, err := r.query.UsersByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		u.Password = ""
	}
	return users, nil
}

// Save rewrites the full user document
func (r *Users) Save(ctx context.Context, user *User) (*User, error) {
	user.UpdatedAt = time.Now()
	if err := r.store.Upsert(ctx, user.ID, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Delete removes the user document and the email pointer it owns.
// Index references are left behind; dangling ids are tolerated by readers.
func (r *Users) Delete(ctx context.Context, id string) error {
	var user User
	if err := r.store.GetJSON(ctx, id, &user); err != nil {
		return err
	}

	if err := r.store.Remove(ctx, id); err != nil {
		return err
	}

	if err := r.store.Remove(ctx, EmailPointerKey(user.Email)); err != nil && !IsNotFound(err) {
		return err
	}

	return nil
}
