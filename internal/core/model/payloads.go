package model

// RegisterUserArgs contain the arguments of the RegisterUser method.
type RegisterUserArgs struct {
	// Username is the unique login name.
	Username string

	// DisplayName is the human-friendly name.
	DisplayName string

	// Email is the registration email. It becomes the primary email.
	Email string

	// BaseURL is the external base URL embedded in the activation link.
	BaseURL string
}

// RegisterUserResponse contains the response of the RegisterUser method.
type RegisterUserResponse struct {
	// User is the freshly created pending user.
	User PendingUser
}

// AddEmailArgs contain the arguments of the AddEmail method.
type AddEmailArgs struct {
	// UserID is the identity of the user gaining the email.
	UserID int64

	// Email is the address to add.
	Email string

	// Primary requests that the new address become the primary email.
	Primary bool
}

// BanUserArgs contain the arguments of the BanUser method.
type BanUserArgs struct {
	// UserID is the identity of the user to ban.
	UserID int64

	// AdminUserID is the identity of the acting administrator.
	AdminUserID int64

	// Reason is the free-text ban reason recorded in the audit event.
	Reason string
}
