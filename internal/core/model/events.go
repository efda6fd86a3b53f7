package model

import "time"

// UserSnapshot is the profile and email set of a user captured right before its
// directory-facing rows are purged. It lives on only inside audit events.
type UserSnapshot struct {
	// Username is the unique login name at the moment of the snapshot.
	Username string `json:"username"`

	// DisplayName is the display name at the moment of the snapshot.
	DisplayName string `json:"displayName"`

	// Emails is the email set at the moment of the snapshot.
	Emails []Email `json:"emails"`
}

// DeletionEvent records a self-service deletion. Append-only, never updated.
type DeletionEvent struct {
	// UserID is the identity of the deleted user.
	UserID int64

	// UserInfo is the pre-purge snapshot.
	UserInfo UserSnapshot

	// DeletedAt is the deletion instant.
	DeletedAt time.Time
}

// BanEvent records an administrative ban. Append-only, never updated.
type BanEvent struct {
	// UserID is the identity of the banned user.
	UserID int64

	// AdminUserID is the identity of the acting administrator.
	AdminUserID int64

	// UserInfo is the pre-purge snapshot.
	UserInfo UserSnapshot

	// Reason is the free-text ban reason.
	Reason string

	// BannedAt is the ban instant.
	BannedAt time.Time
}

// Notification is the outbound message handed to the notification port. Delivery is
// fire-and-forget relative to the lifecycle transaction.
type Notification struct {
	// To is the recipient address.
	To string `json:"to"`

	// Subject is the message subject.
	Subject string `json:"subject"`

	// Body is the plain-text payload.
	Body string `json:"body"`
}
