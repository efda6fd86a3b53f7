package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rbroggi/userdir/internal/core/model"
	"github.com/rbroggi/userdir/internal/core/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnexpectedCall = errors.New("unexpected usecase call")

type mockUsecase struct {
	registerUser    func(ctx context.Context, args model.RegisterUserArgs) (*model.RegisterUserResponse, error)
	activateUser    func(ctx context.Context, token uuid.UUID) (*model.ActiveUser, error)
	promoteToAdmin  func(ctx context.Context, userID int64) (*model.ActiveUser, error)
	deleteUser      func(ctx context.Context, userID int64) (*model.DeletedUser, error)
	banUser         func(ctx context.Context, args model.BanUserArgs) (*model.DeletedUser, error)
	addEmail        func(ctx context.Context, args model.AddEmailArgs) (*model.ActiveUser, error)
	removeEmail     func(ctx context.Context, userID int64, address string) (*model.ActiveUser, error)
	setPrimaryEmail func(ctx context.Context, userID int64, address string) (*model.ActiveUser, error)
	listUsers       func(ctx context.Context, variant model.Variant, req pagination.PageRequest) (*pagination.Page[model.User], error)
}

func (m *mockUsecase) RegisterUser(ctx context.Context, args model.RegisterUserArgs) (*model.RegisterUserResponse, error) {
	if m.registerUser == nil {
		return nil, errUnexpectedCall
	}
	return m.registerUser(ctx, args)
}

func (m *mockUsecase) ActivateUser(ctx context.Context, token uuid.UUID) (*model.ActiveUser, error) {
	if m.activateUser == nil {
		return nil, errUnexpectedCall
	}
	return m.activateUser(ctx, token)
}

func (m *mockUsecase) PromoteToAdmin(ctx context.Context, userID int64) (*model.ActiveUser, error) {
	if m.promoteToAdmin == nil {
		return nil, errUnexpectedCall
	}
	return m.promoteToAdmin(ctx, userID)
}

func (m *mockUsecase) DeleteUser(ctx context.Context, userID int64) (*model.DeletedUser, error) {
	if m.deleteUser == nil {
		return nil, errUnexpectedCall
	}
	return m.deleteUser(ctx, userID)
}

func (m *mockUsecase) BanUser(ctx context.Context, args model.BanUserArgs) (*model.DeletedUser, error) {
	if m.banUser == nil {
		return nil, errUnexpectedCall
	}
	return m.banUser(ctx, args)
}

func (m *mockUsecase) AddEmail(ctx context.Context, args model.AddEmailArgs) (*model.ActiveUser, error) {
	if m.addEmail == nil {
		return nil, errUnexpectedCall
	}
	return m.addEmail(ctx, args)
}

func (m *mockUsecase) RemoveEmail(ctx context.Context, userID int64, address string) (*model.ActiveUser, error) {
	if m.removeEmail == nil {
		return nil, errUnexpectedCall
	}
	return m.removeEmail(ctx, userID, address)
}

func (m *mockUsecase) SetPrimaryEmail(ctx context.Context, userID int64, address string) (*model.ActiveUser, error) {
	if m.setPrimaryEmail == nil {
		return nil, errUnexpectedCall
	}
	return m.setPrimaryEmail(ctx, userID, address)
}

func (m *mockUsecase) ListUsers(ctx context.Context, variant model.Variant, req pagination.PageRequest) (*pagination.Page[model.User], error) {
	if m.listUsers == nil {
		return nil, errUnexpectedCall
	}
	return m.listUsers(ctx, variant, req)
}

func serve(t *testing.T, usecase *mockUsecase, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	NewServer(ServerArgs{Usecase: usecase}).Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestHandleSignup(t *testing.T) {
	t.Run("creates a pending user", func(t *testing.T) {
		usecase := &mockUsecase{
			registerUser: func(ctx context.Context, args model.RegisterUserArgs) (*model.RegisterUserResponse, error) {
				assert.Equal(t, "jdoe", args.Username)
				assert.Equal(t, "http://users.example.com", args.BaseURL)
				return &model.RegisterUserResponse{User: model.PendingUser{
					ID:              42,
					Profile:         model.UserProfile{Username: args.Username, DisplayName: args.DisplayName},
					Emails:          []model.Email{{Address: args.Email, Primary: true}},
					ActivationToken: uuid.New(),
					ExpiresAt:       time.Now().Add(3 * time.Hour),
				}}, nil
			},
		}

		req := httptest.NewRequest(http.MethodPost, "http://users.example.com/signup", strings.NewReader(`{"username":"jdoe","display_name":"Jane Doe","email":"jane@example.com"}`))
		rec := serve(t, usecase, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "pending", body["type"])
		assert.Equal(t, float64(42), body["user_id"])
		assert.NotContains(t, rec.Body.String(), "token")
	})

	t.Run("rejects an invalid email", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(`{"username":"jdoe","display_name":"Jane Doe","email":"not-an-email"}`))
		rec := serve(t, &mockUsecase{}, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects a malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(`{`))
		rec := serve(t, &mockUsecase{}, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleActivation(t *testing.T) {
	token := uuid.New()

	tests := []struct {
		name         string
		query        string
		usecaseErr   error
		expectedCode int
	}{
		{
			name:         "successful activation",
			query:        "token=" + token.String(),
			expectedCode: http.StatusOK,
		},
		{
			name:         "malformed token",
			query:        "token=abc",
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "unknown token",
			query:        "token=" + token.String(),
			usecaseErr:   fmt.Errorf("lookup: %w", model.ErrNotFound),
			expectedCode: http.StatusNotFound,
		},
		{
			name:         "expired token",
			query:        "token=" + token.String(),
			usecaseErr:   fmt.Errorf("activation: %w", model.ErrExpired),
			expectedCode: http.StatusGone,
		},
		{
			name:         "mismatched token",
			query:        "token=" + token.String(),
			usecaseErr:   fmt.Errorf("activation: %w", model.ErrInvalidInput),
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			usecase := &mockUsecase{
				activateUser: func(ctx context.Context, got uuid.UUID) (*model.ActiveUser, error) {
					assert.Equal(t, token, got)
					if test.usecaseErr != nil {
						return nil, test.usecaseErr
					}
					return &model.ActiveUser{ID: 42}, nil
				},
			}

			req := httptest.NewRequest(http.MethodGet, "/activation?"+test.query, nil)
			rec := serve(t, usecase, req)
			assert.Equal(t, test.expectedCode, rec.Code)
			if test.expectedCode == http.StatusOK {
				assert.Equal(t, "active", decodeBody(t, rec)["type"])
			}
		})
	}
}

func TestHandleListUsers(t *testing.T) {
	t.Run("passes the query parameters through", func(t *testing.T) {
		usecase := &mockUsecase{
			listUsers: func(ctx context.Context, variant model.Variant, req pagination.PageRequest) (*pagination.Page[model.User], error) {
				assert.Equal(t, model.VariantActive, variant)
				assert.Equal(t, 5, req.PageSize)
				assert.Equal(t, pagination.NavigationPrevious, req.Navigation)
				require.NotNil(t, req.Cursor)
				assert.Equal(t, int64(17), *req.Cursor)
				tail := int64(19)
				return &pagination.Page[model.User]{
					Content:     []model.User{model.ActiveUser{ID: 20}, model.ActiveUser{ID: 19}},
					PageSize:    5,
					HasNext:     true,
					HeadCursor:  func() *int64 { v := int64(20); return &v }(),
					TailCursor:  &tail,
					HasPrevious: false,
				}, nil
			},
		}

		req := httptest.NewRequest(http.MethodGet, "/users?variant=active&size=5&cursor=17&nav=previous", nil)
		rec := serve(t, usecase, req)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["has_next"])
		assert.Equal(t, false, body["has_previous"])
		assert.Equal(t, float64(19), body["tail_cursor"])
		content, ok := body["content"].([]interface{})
		require.True(t, ok)
		assert.Len(t, content, 2)
	})

	t.Run("defaults variant and paging", func(t *testing.T) {
		usecase := &mockUsecase{
			listUsers: func(ctx context.Context, variant model.Variant, req pagination.PageRequest) (*pagination.Page[model.User], error) {
				assert.Equal(t, model.VariantAny, variant)
				assert.Equal(t, defaultPageSize, req.PageSize)
				assert.Equal(t, pagination.NavigationNext, req.Navigation)
				assert.Nil(t, req.Cursor)
				return &pagination.Page[model.User]{PageSize: req.PageSize}, nil
			},
		}

		rec := serve(t, usecase, httptest.NewRequest(http.MethodGet, "/users", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects a malformed cursor", func(t *testing.T) {
		rec := serve(t, &mockUsecase{}, httptest.NewRequest(http.MethodGet, "/users?cursor=abc", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid page size maps to bad request", func(t *testing.T) {
		usecase := &mockUsecase{
			listUsers: func(ctx context.Context, variant model.Variant, req pagination.PageRequest) (*pagination.Page[model.User], error) {
				return nil, fmt.Errorf("page size must be positive: %w", model.ErrInvalidInput)
			},
		}
		rec := serve(t, usecase, httptest.NewRequest(http.MethodGet, "/users?size=-1", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandlePromote(t *testing.T) {
	tests := []struct {
		name         string
		usecaseErr   error
		expectedCode int
	}{
		{
			name:         "promotes an active user",
			expectedCode: http.StatusOK,
		},
		{
			name:         "unknown user",
			usecaseErr:   fmt.Errorf("find: %w", model.ErrNotFound),
			expectedCode: http.StatusNotFound,
		},
		{
			name:         "non-active user",
			usecaseErr:   fmt.Errorf("promote: %w", model.ErrWrongState),
			expectedCode: http.StatusConflict,
		},
		{
			name:         "already admin",
			usecaseErr:   fmt.Errorf("promote: %w", model.ErrInvariantViolation),
			expectedCode: http.StatusConflict,
		},
		{
			name:         "repository failure",
			usecaseErr:   errors.New("connection refused"),
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			usecase := &mockUsecase{
				promoteToAdmin: func(ctx context.Context, userID int64) (*model.ActiveUser, error) {
					assert.Equal(t, int64(42), userID)
					if test.usecaseErr != nil {
						return nil, test.usecaseErr
					}
					return &model.ActiveUser{ID: 42, Admin: true}, nil
				},
			}

			rec := serve(t, usecase, httptest.NewRequest(http.MethodPost, "/users/42/promote", nil))
			assert.Equal(t, test.expectedCode, rec.Code)
			if test.expectedCode == http.StatusOK {
				body := decodeBody(t, rec)
				assert.Equal(t, true, body["is_admin"])
			}
		})
	}

	t.Run("internal failures are not leaked", func(t *testing.T) {
		usecase := &mockUsecase{
			promoteToAdmin: func(ctx context.Context, userID int64) (*model.ActiveUser, error) {
				return nil, errors.New("pq: relation admin_users does not exist")
			},
		}
		rec := serve(t, usecase, httptest.NewRequest(http.MethodPost, "/users/42/promote", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "admin_users")
	})

	t.Run("malformed user id", func(t *testing.T) {
		rec := serve(t, &mockUsecase{}, httptest.NewRequest(http.MethodPost, "/users/abc/promote", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleDelete(t *testing.T) {
	deletedAt := time.Date(2024, 5, 14, 10, 0, 0, 0, time.UTC)
	usecase := &mockUsecase{
		deleteUser: func(ctx context.Context, userID int64) (*model.DeletedUser, error) {
			assert.Equal(t, int64(42), userID)
			return &model.DeletedUser{ID: 42, DeletedAt: deletedAt}, nil
		},
	}

	rec := serve(t, usecase, httptest.NewRequest(http.MethodDelete, "/users/42", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "deleted", body["type"])
	assert.Equal(t, float64(42), body["user_id"])
}

func TestHandleBan(t *testing.T) {
	t.Run("bans with actor and reason", func(t *testing.T) {
		usecase := &mockUsecase{
			banUser: func(ctx context.Context, args model.BanUserArgs) (*model.DeletedUser, error) {
				assert.Equal(t, int64(42), args.UserID)
				assert.Equal(t, int64(7), args.AdminUserID)
				assert.Equal(t, "policy violation", args.Reason)
				return &model.DeletedUser{ID: 42}, nil
			},
		}

		req := httptest.NewRequest(http.MethodPost, "/users/42/ban", strings.NewReader(`{"admin_user_id":7,"reason":"policy violation"}`))
		rec := serve(t, usecase, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects a ban without a reason", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/users/42/ban", strings.NewReader(`{"admin_user_id":7}`))
		rec := serve(t, &mockUsecase{}, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleEmails(t *testing.T) {
	t.Run("adds an email", func(t *testing.T) {
		usecase := &mockUsecase{
			addEmail: func(ctx context.Context, args model.AddEmailArgs) (*model.ActiveUser, error) {
				assert.Equal(t, int64(42), args.UserID)
				assert.Equal(t, "work@example.com", args.Email)
				assert.True(t, args.Primary)
				return &model.ActiveUser{ID: 42}, nil
			},
		}

		req := httptest.NewRequest(http.MethodPost, "/users/42/emails", strings.NewReader(`{"email":"work@example.com","primary":true}`))
		rec := serve(t, usecase, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("removing the primary email conflicts", func(t *testing.T) {
		usecase := &mockUsecase{
			removeEmail: func(ctx context.Context, userID int64, address string) (*model.ActiveUser, error) {
				return nil, fmt.Errorf("primary email: %w", model.ErrInvariantViolation)
			},
		}

		req := httptest.NewRequest(http.MethodDelete, "/users/42/emails", strings.NewReader(`{"email":"jane@example.com"}`))
		rec := serve(t, usecase, req)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("sets the primary email", func(t *testing.T) {
		usecase := &mockUsecase{
			setPrimaryEmail: func(ctx context.Context, userID int64, address string) (*model.ActiveUser, error) {
				assert.Equal(t, "work@example.com", address)
				return &model.ActiveUser{ID: 42, Emails: []model.Email{{Address: "work@example.com", Primary: true}}}, nil
			},
		}

		req := httptest.NewRequest(http.MethodPut, "/users/42/primary-email", strings.NewReader(`{"email":"work@example.com"}`))
		rec := serve(t, usecase, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects an invalid email on all email routes", func(t *testing.T) {
		for _, route := range []struct {
			method string
			path   string
		}{
			{http.MethodPost, "/users/42/emails"},
			{http.MethodDelete, "/users/42/emails"},
			{http.MethodPut, "/users/42/primary-email"},
		} {
			req := httptest.NewRequest(route.method, route.path, strings.NewReader(`{"email":"nope"}`))
			rec := serve(t, &mockUsecase{}, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code, route.path)
		}
	})
}

func TestHealthz(t *testing.T) {
	rec := serve(t, &mockUsecase{}, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
