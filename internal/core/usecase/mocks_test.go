package usecase

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rbroggi/userdir/internal/core/model"
	"github.com/rbroggi/userdir/internal/core/ports"
)

var errUnexpectedCall = errors.New("unexpected repository call")

// mockRepository is a function-field mock of ports.Repository. Unset methods fail
// the call, so tests only wire what they expect.
type mockRepository struct {
	registerUser          func(ctx context.Context, user *model.PendingUser) error
	getPendingUserByToken func(ctx context.Context, token uuid.UUID) (*model.PendingUser, error)
	activateUser          func(ctx context.Context, userID int64) error
	purgePendingUser      func(ctx context.Context, userID int64) error
	findUser              func(ctx context.Context, userID int64) (model.User, error)
	emailExists           func(ctx context.Context, address string) (bool, error)
	promoteToAdmin        func(ctx context.Context, userID int64) error
	deleteActiveUser      func(ctx context.Context, query ports.DeleteActiveUserQuery) (*model.ActiveUser, error)
	addEmail              func(ctx context.Context, userID int64, email model.Email) error
	removeEmail           func(ctx context.Context, userID int64, address string) error
	setPrimaryEmail       func(ctx context.Context, userID int64, address string) error
	listUsers             func(ctx context.Context, query ports.ListUsersQuery) ([]model.User, error)
}

func (m *mockRepository) RegisterUser(ctx context.Context, user *model.PendingUser) error {
	if m.registerUser == nil {
		return errUnexpectedCall
	}
	return m.registerUser(ctx, user)
}

func (m *mockRepository) GetPendingUserByToken(ctx context.Context, token uuid.UUID) (*model.PendingUser, error) {
	if m.getPendingUserByToken == nil {
		return nil, errUnexpectedCall
	}
	return m.getPendingUserByToken(ctx, token)
}

func (m *mockRepository) ActivateUser(ctx context.Context, userID int64) error {
	if m.activateUser == nil {
		return errUnexpectedCall
	}
	return m.activateUser(ctx, userID)
}

func (m *mockRepository) PurgePendingUser(ctx context.Context, userID int64) error {
	if m.purgePendingUser == nil {
		return errUnexpectedCall
	}
	return m.purgePendingUser(ctx, userID)
}

func (m *mockRepository) FindUser(ctx context.Context, userID int64) (model.User, error) {
	if m.findUser == nil {
		return nil, errUnexpectedCall
	}
	return m.findUser(ctx, userID)
}

func (m *mockRepository) EmailExists(ctx context.Context, address string) (bool, error) {
	if m.emailExists == nil {
		return false, errUnexpectedCall
	}
	return m.emailExists(ctx, address)
}

func (m *mockRepository) PromoteToAdmin(ctx context.Context, userID int64) error {
	if m.promoteToAdmin == nil {
		return errUnexpectedCall
	}
	return m.promoteToAdmin(ctx, userID)
}

func (m *mockRepository) DeleteActiveUser(ctx context.Context, query ports.DeleteActiveUserQuery) (*model.ActiveUser, error) {
	if m.deleteActiveUser == nil {
		return nil, errUnexpectedCall
	}
	return m.deleteActiveUser(ctx, query)
}

func (m *mockRepository) AddEmail(ctx context.Context, userID int64, email model.Email) error {
	if m.addEmail == nil {
		return errUnexpectedCall
	}
	return m.addEmail(ctx, userID, email)
}

func (m *mockRepository) RemoveEmail(ctx context.Context, userID int64, address string) error {
	if m.removeEmail == nil {
		return errUnexpectedCall
	}
	return m.removeEmail(ctx, userID, address)
}

func (m *mockRepository) SetPrimaryEmail(ctx context.Context, userID int64, address string) error {
	if m.setPrimaryEmail == nil {
		return errUnexpectedCall
	}
	return m.setPrimaryEmail(ctx, userID, address)
}

func (m *mockRepository) ListUsers(ctx context.Context, query ports.ListUsersQuery) ([]model.User, error) {
	if m.listUsers == nil {
		return nil, errUnexpectedCall
	}
	return m.listUsers(ctx, query)
}

// mockSender is a recording implementation of the NotificationSender port.
type mockSender struct {
	sent      []model.Notification
	sendError error
}

func (m *mockSender) Send(ctx context.Context, notification model.Notification) error {
	m.sent = append(m.sent, notification)
	return m.sendError
}
