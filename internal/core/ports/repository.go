package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rbroggi/userdir/internal/core/model"
	"github.com/rbroggi/userdir/internal/core/pagination"
)

// Repository is the interface for the persistence layer. Every method is a single
// atomic unit: it either applies all partition and row mutations it implies or none.
// Precondition failures surface as the model error kinds, wrapped.
type Repository interface {
	// RegisterUser allocates a new user identity and durably stores the pending
	// user: identity, profile, email set and pending-partition row. The allocated
	// identity is written back into user.ID. A username or email already claimed
	// yields model.ErrInvariantViolation.
	RegisterUser(ctx context.Context, user *model.PendingUser) error

	// GetPendingUserByToken loads the pending user owning the activation token.
	// Returns model.ErrNotFound when no pending registration carries the token.
	GetPendingUserByToken(ctx context.Context, token uuid.UUID) (*model.PendingUser, error)

	// ActivateUser moves the user from the pending to the active partition.
	// Profile and email rows are untouched; they become visible under the active
	// join. Returns model.ErrNotFound when the user is not pending.
	ActivateUser(ctx context.Context, userID int64) error

	// PurgePendingUser hard-deletes a pending user: pending row, profile, emails
	// and the identity row itself. A user that is no longer pending (already
	// activated, already purged, never existed) is left untouched and no error is
	// returned, so sweeps are idempotent.
	PurgePendingUser(ctx context.Context, userID int64) error

	// FindUser loads the user in its current variant. Returns model.ErrNotFound
	// when the identity does not exist.
	FindUser(ctx context.Context, userID int64) (model.User, error)

	// EmailExists reports whether the address is claimed by any user.
	EmailExists(ctx context.Context, address string) (bool, error)

	// PromoteToAdmin grants administrative privilege. The write is conditional: a
	// user that is not active yields model.ErrWrongState, and a user that is
	// already an admin yields model.ErrInvariantViolation even when two promotions
	// race.
	PromoteToAdmin(ctx context.Context, userID int64) error

	// DeleteActiveUser transitions an active user to the deleted partition and
	// appends the audit event, all in one atomic unit: privilege and active rows
	// dropped, profile and emails purged, deleted row inserted, and a deletion or
	// ban event (depending on the query) recorded with the pre-purge snapshot.
	// The returned user is that snapshot. Returns model.ErrNotFound for unknown
	// identities and model.ErrWrongState for pending or already-deleted users.
	DeleteActiveUser(ctx context.Context, query DeleteActiveUserQuery) (*model.ActiveUser, error)

	// AddEmail inserts the address for the user and, when email.Primary is set,
	// reassigns primary status to it in the same atomic unit. An address already
	// claimed yields model.ErrInvariantViolation.
	AddEmail(ctx context.Context, userID int64, email model.Email) error

	// RemoveEmail deletes the address from the user's email set. Returns
	// model.ErrNotFound when the user does not own the address.
	RemoveEmail(ctx context.Context, userID int64, address string) error

	// SetPrimaryEmail reassigns primary status to the address.
	SetPrimaryEmail(ctx context.Context, userID int64, address string) error

	// ListUsers fetches up to PageSize+1 users of the requested variant in
	// descending identity order, bounded by the request cursor. The extra probe
	// row and the page flags are resolved by the pagination package, not here.
	ListUsers(ctx context.Context, query ListUsersQuery) ([]model.User, error)
}

// ListUsersQuery gathers the parameters of a keyset listing.
type ListUsersQuery struct {
	// Variant is the partition to list, or model.VariantAny for the union.
	Variant model.Variant

	// PageRequest is the keyset page to fetch.
	PageRequest pagination.PageRequest
}

// DeleteActiveUserQuery gathers the parameters of an active-user deletion.
type DeleteActiveUserQuery struct {
	// UserID is the identity of the user to delete.
	UserID int64

	// DeletedAt is the deletion instant recorded in the deleted partition and the
	// audit event.
	DeletedAt time.Time

	// AdminUserID, when non-nil, marks the deletion as an administrative ban by
	// that administrator and a ban event is appended instead of a deletion event.
	AdminUserID *int64

	// BanReason is the free-text reason of a ban. Ignored for self-deletions.
	BanReason string
}
