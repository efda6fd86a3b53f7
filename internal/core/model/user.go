package model

import (
	"time"

	"github.com/google/uuid"
)

// Variant identifies the lifecycle partition a user belongs to.
type Variant string

const (
	// VariantPending selects users awaiting activation.
	VariantPending Variant = "pending"

	// VariantActive selects activated users.
	VariantActive Variant = "active"

	// VariantDeleted selects deleted (or banned) users.
	VariantDeleted Variant = "deleted"

	// VariantAny selects users regardless of their partition.
	VariantAny Variant = "any"
)

// UserProfile holds the identity-facing profile of a user.
type UserProfile struct {
	// Username is the unique login name.
	Username string `json:"username"`

	// DisplayName is the human-friendly name.
	DisplayName string `json:"displayName"`
}

// Email is an address owned by a single user. At most one email per user is primary.
type Email struct {
	// Address is the email address. Unique across all users.
	Address string `json:"email"`

	// Primary flags the address used for outbound notifications.
	Primary bool `json:"isPrimary"`
}

// User is one of exactly three variants: PendingUser, ActiveUser or DeletedUser.
// The variant is determined by partition membership in the store, never by a stored
// type flag. Callers dispatch with a type switch.
type User interface {
	// UserID is the numeric identity of the user. Strictly increasing, never reused.
	UserID() int64

	sealed()
}

// PendingUser is a registered user that has not yet activated the account.
type PendingUser struct {
	// ID is the user identity.
	ID int64

	// Profile is the user profile.
	Profile UserProfile

	// Emails is the email set. A fresh registration has exactly one, primary.
	Emails []Email

	// ActivationToken proves control of the registration email.
	ActivationToken uuid.UUID

	// ExpiresAt is the instant after which the activation token is no longer valid.
	ExpiresAt time.Time
}

func (u PendingUser) UserID() int64 { return u.ID }

func (u PendingUser) sealed() {}

// Expired reports whether the activation window has elapsed at the given instant.
func (u PendingUser) Expired(now time.Time) bool {
	return now.After(u.ExpiresAt)
}

// ValidToken reports whether the given token matches the activation token.
func (u PendingUser) ValidToken(token uuid.UUID) bool {
	return token == u.ActivationToken
}

// ActiveUser is an activated user. It always has at least one email and, whenever
// the email set is non-empty, exactly one primary email.
type ActiveUser struct {
	// ID is the user identity.
	ID int64

	// Profile is the user profile.
	Profile UserProfile

	// Emails is the email set, primary first.
	Emails []Email

	// Admin flags administrative privilege. Set by promotion, never unset.
	Admin bool
}

func (u ActiveUser) UserID() int64 { return u.ID }

func (u ActiveUser) sealed() {}

// PrimaryEmail returns the primary email address. The second return is false when
// the email set holds no primary, which indicates corrupted state.
func (u ActiveUser) PrimaryEmail() (string, bool) {
	for _, e := range u.Emails {
		if e.Primary {
			return e.Address, true
		}
	}
	return "", false
}

// HasEmail reports whether the address belongs to this user's email set.
func (u ActiveUser) HasEmail(address string) bool {
	for _, e := range u.Emails {
		if e.Address == address {
			return true
		}
	}
	return false
}

// DeletedUser is what remains of a user after self-deletion or a ban: the identity
// and the deletion instant. Profile and emails survive only inside the audit events.
type DeletedUser struct {
	// ID is the user identity.
	ID int64

	// DeletedAt is the instant the user left the active partition.
	DeletedAt time.Time
}

func (u DeletedUser) UserID() int64 { return u.ID }

func (u DeletedUser) sealed() {}
