// Package http is the thin JSON surface over the user lifecycle usecase. It only
// translates requests into usecase calls and domain errors into status codes; no
// lifecycle logic lives here.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"github.com/rbroggi/userdir/internal/core/model"
	"github.com/rbroggi/userdir/internal/core/pagination"
	log "github.com/sirupsen/logrus"
)

// defaultPageSize applies when a listing request carries no size parameter.
const defaultPageSize = 20

type userUsecase interface {
	RegisterUser(ctx context.Context, args model.RegisterUserArgs) (*model.RegisterUserResponse, error)
	ActivateUser(ctx context.Context, token uuid.UUID) (*model.ActiveUser, error)
	PromoteToAdmin(ctx context.Context, userID int64) (*model.ActiveUser, error)
	DeleteUser(ctx context.Context, userID int64) (*model.DeletedUser, error)
	BanUser(ctx context.Context, args model.BanUserArgs) (*model.DeletedUser, error)
	AddEmail(ctx context.Context, args model.AddEmailArgs) (*model.ActiveUser, error)
	RemoveEmail(ctx context.Context, userID int64, address string) (*model.ActiveUser, error)
	SetPrimaryEmail(ctx context.Context, userID int64, address string) (*model.ActiveUser, error)
	ListUsers(ctx context.Context, variant model.Variant, req pagination.PageRequest) (*pagination.Page[model.User], error)
}

// ServerArgs are the mandatory args to instantiate the Server.
type ServerArgs struct {
	// Usecase is the user lifecycle usecase
	Usecase userUsecase
}

// NewServer creates a new Server.
func NewServer(args ServerArgs) *Server {
	s := &Server{usecase: args.Usecase}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	r.Post("/signup", s.handleSignup)
	r.Get("/activation", s.handleActivation)
	r.Get("/users", s.handleListUsers)
	r.Route("/users/{userID}", func(r chi.Router) {
		r.Delete("/", s.handleDelete)
		r.Post("/promote", s.handlePromote)
		r.Post("/ban", s.handleBan)
		r.Post("/emails", s.handleAddEmail)
		r.Delete("/emails", s.handleRemoveEmail)
		r.Put("/primary-email", s.handleSetPrimaryEmail)
	})
	s.router = r

	return s
}

// Server exposes the user lifecycle over HTTP/JSON.
type Server struct {
	usecase userUsecase
	router  chi.Router
}

// Handler returns the http handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

type signupRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

func (r signupRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(3, 64)),
		validation.Field(&r.DisplayName, validation.Required, validation.Length(1, 128)),
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.usecase.RegisterUser(r.Context(), model.RegisterUserArgs{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		BaseURL:     baseURL(r),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, userToJSON(resp.User))
}

func (s *Server) handleActivation(w http.ResponseWriter, r *http.Request) {
	token, err := uuid.Parse(r.URL.Query().Get("token"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed activation token")
		return
	}

	active, err := s.usecase.ActivateUser(r.Context(), token)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userToJSON(*active))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	variant := model.VariantAny
	if v := r.URL.Query().Get("variant"); v != "" {
		variant = model.Variant(v)
	}

	req := pagination.PageRequest{PageSize: defaultPageSize, Navigation: pagination.NavigationNext}
	if v := r.URL.Query().Get("size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "malformed page size")
			return
		}
		req.PageSize = size
	}
	if v := r.URL.Query().Get("cursor"); v != "" {
		cursor, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "malformed cursor")
			return
		}
		req.Cursor = &cursor
	}
	if v := r.URL.Query().Get("nav"); v != "" {
		req.Navigation = pagination.Navigation(v)
	}

	page, err := s.usecase.ListUsers(r.Context(), variant, req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	content := make([]map[string]interface{}, 0, len(page.Content))
	for _, user := range page.Content {
		content = append(content, userToJSON(user))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"content":      content,
		"page_size":    page.PageSize,
		"has_previous": page.HasPrevious,
		"has_next":     page.HasNext,
		"head_cursor":  page.HeadCursor,
		"tail_cursor":  page.TailCursor,
	})
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	active, err := s.usecase.PromoteToAdmin(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userToJSON(*active))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	deleted, err := s.usecase.DeleteUser(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userToJSON(*deleted))
}

type banRequest struct {
	AdminUserID int64  `json:"admin_user_id"`
	Reason      string `json:"reason"`
}

func (r banRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.AdminUserID, validation.Required),
		validation.Field(&r.Reason, validation.Required, validation.Length(1, 1024)),
	)
}

func (s *Server) handleBan(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req banRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	deleted, err := s.usecase.BanUser(r.Context(), model.BanUserArgs{
		UserID:      userID,
		AdminUserID: req.AdminUserID,
		Reason:      req.Reason,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userToJSON(*deleted))
}

type emailRequest struct {
	Email   string `json:"email"`
	Primary bool   `json:"primary"`
}

func (r emailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (s *Server) handleAddEmail(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	active, err := s.usecase.AddEmail(r.Context(), model.AddEmailArgs{
		UserID:  userID,
		Email:   req.Email,
		Primary: req.Primary,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userToJSON(*active))
}

func (s *Server) handleRemoveEmail(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	active, err := s.usecase.RemoveEmail(r.Context(), userID, req.Email)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userToJSON(*active))
}

func (s *Server) handleSetPrimaryEmail(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	active, err := s.usecase.SetPrimaryEmail(r.Context(), userID, req.Email)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userToJSON(*active))
}

func (s *Server) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed user id")
		return 0, false
	}
	return userID, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrExpired):
		writeJSONError(w, http.StatusGone, err.Error())
	case errors.Is(err, model.ErrInvalidInput):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrWrongState), errors.Is(err, model.ErrInvariantViolation):
		writeJSONError(w, http.StatusConflict, err.Error())
	default:
		log.WithError(err).Error("error invoking usecase")
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

// userToJSON renders a user with an explicit type discriminator. The activation
// token is never rendered.
func userToJSON(user model.User) map[string]interface{} {
	switch u := user.(type) {
	case model.PendingUser:
		return map[string]interface{}{
			"type":         "pending",
			"user_id":      u.ID,
			"username":     u.Profile.Username,
			"display_name": u.Profile.DisplayName,
			"emails":       u.Emails,
			"expires_at":   u.ExpiresAt,
		}
	case model.ActiveUser:
		return map[string]interface{}{
			"type":         "active",
			"user_id":      u.ID,
			"username":     u.Profile.Username,
			"display_name": u.Profile.DisplayName,
			"emails":       u.Emails,
			"is_admin":     u.Admin,
		}
	case model.DeletedUser:
		return map[string]interface{}{
			"type":       "deleted",
			"user_id":    u.ID,
			"deleted_at": u.DeletedAt,
		}
	default:
		return map[string]interface{}{"user_id": user.UserID()}
	}
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Error("error encoding response body")
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
