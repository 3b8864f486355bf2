package reservebase

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Persisted key layout. This must stay bit-for-bit compatible with the
// deployed document store:
//
//	user::<ts>::<rand>
//	email::<lowercased-email>
//	reservation::<ts>::<rand>
//	log::<ts>::<rand>
//	user_reservations::<userId>
//	global_reservations_index
//	users_by_role::<role>
//	reservation_logs::<reservationId>
const (
	UserKeyPrefix        = "user::"
	ReservationKeyPrefix = "reservation::"
	LogKeyPrefix         = "log::"

	// GlobalReservationsIndexKey tracks every reservation id for the
	// no-predicate "all reservations" fallback
	GlobalReservationsIndexKey = "global_reservations_index"
)

// NewDocumentKey generates a document key for the given entity prefix,
// e.g. NewDocumentKey("user") -> "user::1724995200123::a1b2c3d4e".
// The millisecond timestamp component makes keys roughly time-ordered.
func NewDocumentKey(prefix string) string {
	return fmt.Sprintf("%s::%d::%s", prefix, time.Now().UnixMilli(), randomSuffix())
}

// randomSuffix returns a 9-character random component, matching the width
// the deployed key layout uses
func randomSuffix() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return raw[:9]
}

// EmailPointerKey returns the pointer document key for an email.
// Emails are case-folded before use anywhere in the keyspace.
func EmailPointerKey(email string) string {
	return "email::" + strings.ToLower(email)
}

// RoleIndexKey returns the index key listing user ids with a role
func RoleIndexKey(role string) string {
	return "users_by_role::" + role
}

// UserReservationsIndexKey returns the index key listing reservation ids
// created by a user
func UserReservationsIndexKey(userID string) string {
	return "user_reservations::" + userID
}

// ReservationLogsIndexKey returns the index key listing change-log ids for
// a reservation
func ReservationLogsIndexKey(reservationID string) string {
	return "reservation_logs::" + reservationID
}
