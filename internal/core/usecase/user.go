package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rbroggi/userdir/internal/core/model"
	"github.com/rbroggi/userdir/internal/core/pagination"
	"github.com/rbroggi/userdir/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const (
	// activationTTL is the window a pending registration has to activate.
	activationTTL = 3 * time.Hour

	// defaultMaxPageSize bounds caller-requested page sizes.
	defaultMaxPageSize = 200
)

const activationBody = `Hello %s,

Please activate your account by clicking the following link:
%s/activation?token=%s

This link will expire at %s.

Thank you!`

// UserServiceArgs contains the mandatory arguments for the UserService.
type UserServiceArgs struct {
	// Repository is the repository for persistence operations.
	Repository ports.Repository

	// Sender is the notification port used for activation emails.
	Sender ports.NotificationSender
}

// UserServiceOptArgs are the optional arguments for building a UserService.
type UserServiceOptArgs = func(*UserService)

// WithNowFunc overrides the clock. Useful for testing.
func WithNowFunc(nowFunc func() time.Time) UserServiceOptArgs {
	return func(s *UserService) {
		s.nowFunc = nowFunc
	}
}

// WithTokenFunc overrides the activation-token generator. Useful for testing.
func WithTokenFunc(tokenFunc func() uuid.UUID) UserServiceOptArgs {
	return func(s *UserService) {
		s.tokenFunc = tokenFunc
	}
}

// WithMaxPageSize overrides the listing page-size bound.
func WithMaxPageSize(max int) UserServiceOptArgs {
	return func(s *UserService) {
		s.maxPageSize = max
	}
}

// NewUserService creates a new UserService.
func NewUserService(args UserServiceArgs, optArgs ...UserServiceOptArgs) *UserService {
	s := &UserService{
		repository:  args.Repository,
		sender:      args.Sender,
		nowFunc:     func() time.Time { return time.Now().UTC() },
		tokenFunc:   uuid.New,
		maxPageSize: defaultMaxPageSize,
	}
	for _, opt := range optArgs {
		opt(s)
	}
	return s
}

// UserService gathers the functionality around the user lifecycle: registration,
// activation, promotion, deletion, ban and email management. Every mutation maps to
// one atomic repository operation, so a concurrent reader never observes a user in
// two partitions or none.
type UserService struct {
	repository  ports.Repository
	sender      ports.NotificationSender
	nowFunc     func() time.Time
	tokenFunc   func() uuid.UUID
	maxPageSize int
}

// RegisterUser creates a pending user and sends the activation notification. A
// failure to deliver the notification does not undo the registration: the pending
// user is kept and the failure is logged, so the identity is never silently lost.
func (s *UserService) RegisterUser(ctx context.Context, args model.RegisterUserArgs) (*model.RegisterUserResponse, error) {
	now := s.nowFunc()
	user := &model.PendingUser{
		Profile: model.UserProfile{
			Username:    args.Username,
			DisplayName: args.DisplayName,
		},
		Emails:          []model.Email{{Address: args.Email, Primary: true}},
		ActivationToken: s.tokenFunc(),
		ExpiresAt:       now.Add(activationTTL),
	}

	if err := s.repository.RegisterUser(ctx, user); err != nil {
		return nil, fmt.Errorf("error registering user in repository: %w", err)
	}

	notification := model.Notification{
		To:      args.Email,
		Subject: "Activate your account",
		Body:    fmt.Sprintf(activationBody, args.DisplayName, args.BaseURL, user.ActivationToken, user.ExpiresAt.Format(time.RFC3339)),
	}
	if err := s.sender.Send(ctx, notification); err != nil {
		log.WithError(err).WithField("user_id", user.ID).Warn("could not send activation notification")
	}

	return &model.RegisterUserResponse{User: *user}, nil
}

// ActivateUser consumes an activation token. On success the user moves to the
// active partition. Every non-success outcome hard-deletes the pending
// registration, so a registration that fails activation leaves no trace.
func (s *UserService) ActivateUser(ctx context.Context, token uuid.UUID) (*model.ActiveUser, error) {
	pending, err := s.repository.GetPendingUserByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("error looking up pending user by token: %w", err)
	}

	if pending.Expired(s.nowFunc()) {
		if err := s.repository.PurgePendingUser(ctx, pending.ID); err != nil {
			return nil, fmt.Errorf("error purging expired pending user %d: %w", pending.ID, err)
		}
		return nil, fmt.Errorf("activation token of user %d: %w", pending.ID, model.ErrExpired)
	}

	if !pending.ValidToken(token) {
		if err := s.repository.PurgePendingUser(ctx, pending.ID); err != nil {
			return nil, fmt.Errorf("error purging pending user %d with mismatched token: %w", pending.ID, err)
		}
		return nil, fmt.Errorf("activation token does not match user %d: %w", pending.ID, model.ErrInvalidInput)
	}

	if err := s.repository.ActivateUser(ctx, pending.ID); err != nil {
		return nil, fmt.Errorf("error activating user %d: %w", pending.ID, err)
	}

	return &model.ActiveUser{
		ID:      pending.ID,
		Profile: pending.Profile,
		Emails:  pending.Emails,
	}, nil
}

// PromoteToAdmin grants administrative privilege to an active user. There is no
// demotion. The repository write is conditional, so two racing promotions cannot
// both succeed.
func (s *UserService) PromoteToAdmin(ctx context.Context, userID int64) (*model.ActiveUser, error) {
	user, err := s.repository.FindUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error finding user %d: %w", userID, err)
	}
	active, ok := user.(model.ActiveUser)
	if !ok {
		return nil, fmt.Errorf("user %d is not active: %w", userID, model.ErrWrongState)
	}
	if active.Admin {
		return nil, fmt.Errorf("user %d is already an admin: %w", userID, model.ErrInvariantViolation)
	}

	if err := s.repository.PromoteToAdmin(ctx, userID); err != nil {
		return nil, fmt.Errorf("error promoting user %d: %w", userID, err)
	}

	active.Admin = true
	return &active, nil
}

// DeleteUser performs a self-service deletion of an active user and appends the
// deletion event carrying the pre-purge snapshot.
func (s *UserService) DeleteUser(ctx context.Context, userID int64) (*model.DeletedUser, error) {
	now := s.nowFunc()
	if _, err := s.repository.DeleteActiveUser(ctx, ports.DeleteActiveUserQuery{
		UserID:    userID,
		DeletedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("error deleting user %d: %w", userID, err)
	}
	return &model.DeletedUser{ID: userID, DeletedAt: now}, nil
}

// BanUser performs an administrative deletion of an active user and appends the ban
// event carrying the acting administrator, the reason and the pre-purge snapshot.
func (s *UserService) BanUser(ctx context.Context, args model.BanUserArgs) (*model.DeletedUser, error) {
	now := s.nowFunc()
	if _, err := s.repository.DeleteActiveUser(ctx, ports.DeleteActiveUserQuery{
		UserID:      args.UserID,
		DeletedAt:   now,
		AdminUserID: &args.AdminUserID,
		BanReason:   args.Reason,
	}); err != nil {
		return nil, fmt.Errorf("error banning user %d: %w", args.UserID, err)
	}
	return &model.DeletedUser{ID: args.UserID, DeletedAt: now}, nil
}

// AddEmail adds an address to an active user. The address is inserted as
// non-primary and, only when requested, primary status is reassigned to it within
// the same atomic unit. Returns the refreshed user.
func (s *UserService) AddEmail(ctx context.Context, args model.AddEmailArgs) (*model.ActiveUser, error) {
	if _, err := s.activeUser(ctx, args.UserID); err != nil {
		return nil, err
	}

	claimed, err := s.repository.EmailExists(ctx, args.Email)
	if err != nil {
		return nil, fmt.Errorf("error checking email existence: %w", err)
	}
	if claimed {
		return nil, fmt.Errorf("email %q is already used: %w", args.Email, model.ErrInvariantViolation)
	}

	if err := s.repository.AddEmail(ctx, args.UserID, model.Email{Address: args.Email, Primary: args.Primary}); err != nil {
		return nil, fmt.Errorf("error adding email to user %d: %w", args.UserID, err)
	}

	return s.activeUser(ctx, args.UserID)
}

// RemoveEmail removes an address from an active user. The primary email and the
// sole remaining email cannot be removed. Returns the refreshed user.
func (s *UserService) RemoveEmail(ctx context.Context, userID int64, address string) (*model.ActiveUser, error) {
	active, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !active.HasEmail(address) {
		return nil, fmt.Errorf("email %q not found on user %d: %w", address, userID, model.ErrNotFound)
	}
	if primary, ok := active.PrimaryEmail(); ok && primary == address {
		return nil, fmt.Errorf("cannot remove the primary email, set another email as primary first: %w", model.ErrInvariantViolation)
	}
	if len(active.Emails) <= 1 {
		return nil, fmt.Errorf("cannot remove the only email address: %w", model.ErrInvariantViolation)
	}

	if err := s.repository.RemoveEmail(ctx, userID, address); err != nil {
		return nil, fmt.Errorf("error removing email from user %d: %w", userID, err)
	}

	return s.activeUser(ctx, userID)
}

// SetPrimaryEmail reassigns primary status to one of the user's addresses. Returns
// the refreshed user.
func (s *UserService) SetPrimaryEmail(ctx context.Context, userID int64, address string) (*model.ActiveUser, error) {
	active, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !active.HasEmail(address) {
		return nil, fmt.Errorf("email %q not found on user %d: %w", address, userID, model.ErrNotFound)
	}

	if err := s.repository.SetPrimaryEmail(ctx, userID, address); err != nil {
		return nil, fmt.Errorf("error setting primary email of user %d: %w", userID, err)
	}

	return s.activeUser(ctx, userID)
}

// ListUsers serves one keyset page of the requested variant. The page size is
// clamped to the configured maximum; zero and negative sizes are rejected.
func (s *UserService) ListUsers(ctx context.Context, variant model.Variant, req pagination.PageRequest) (*pagination.Page[model.User], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req = req.Clamp(s.maxPageSize)

	rows, err := s.repository.ListUsers(ctx, ports.ListUsersQuery{Variant: variant, PageRequest: req})
	if err != nil {
		return nil, fmt.Errorf("error listing users on the repository: %w", err)
	}

	page := pagination.Resolve(req, rows, model.User.UserID)
	return &page, nil
}

func (s *UserService) activeUser(ctx context.Context, userID int64) (*model.ActiveUser, error) {
	user, err := s.repository.FindUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error finding user %d: %w", userID, err)
	}
	active, ok := user.(model.ActiveUser)
	if !ok {
		return nil, fmt.Errorf("user %d is not active: %w", userID, model.ErrWrongState)
	}
	return &active, nil
}
