package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/glovelink/glove-core/internal/auth"
)

// minPasswordLength is the minimum accepted password length.
const minPasswordLength = 8

// createUserRequest is the request body for POST /users.
type createUserRequest struct {
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Password string    `json:"password"`
	Role     auth.Role `json:"role"`
}

// updateUserRequest is the request body for PATCH /users/{id}.
// Omitted fields are left unchanged.
type updateUserRequest struct {
	Email  *string          `json:"email"`
	Role   *auth.Role       `json:"role"`
	Status *auth.UserStatus `json:"status"`
}

// changePasswordRequest is the request body for POST /users/{id}/password.
type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// handleListUsers returns all accounts. Admin only.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
}

// handleCreateUser creates a new account. Admin only.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if !auth.IsValidUsername(req.Username) {
		writeBadRequest(w, "invalid username")
		return
	}
	if req.Email == "" {
		writeBadRequest(w, "email is required")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}
	if req.Role == "" {
		req.Role = auth.RoleUser
	}
	if !auth.IsValidUserRole(req.Role) {
		writeBadRequest(w, "invalid role")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeInternalError(w, "failed to hash password")
		return
	}

	now := time.Now().UTC()
	user := &auth.User{
		ID:           "usr-" + uuid.NewString()[:8],
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		Status:       auth.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(r.Context(), user); err != nil {
		switch {
		case errors.Is(err, auth.ErrUsernameExists):
			writeConflict(w, "username already exists")
		case errors.Is(err, auth.ErrEmailExists):
			writeConflict(w, "email already exists")
		default:
			s.logger.Error("user create failed", "error", err)
			writeInternalError(w, "failed to create user")
		}
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// handleGetUser returns a single account. Users can fetch their own
// account; admins can fetch any.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !canAccessUser(claimsFromContext(r.Context()), id) {
		writeForbidden(w, "cannot access another user's account")
		return
	}

	user, err := s.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to get user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleUpdateUser applies partial updates to an account. Admin only;
// role and status changes on the caller's own account are refused so an
// admin cannot lock themselves out.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	claims := claimsFromContext(r.Context())
	if claims != nil && claims.Subject == id && (req.Role != nil || req.Status != nil) {
		writeForbidden(w, "cannot change own role or status")
		return
	}

	user, err := s.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to get user")
		return
	}

	if req.Email != nil {
		if *req.Email == "" {
			writeBadRequest(w, "email cannot be empty")
			return
		}
		user.Email = *req.Email
	}
	if req.Role != nil {
		if !auth.IsValidUserRole(*req.Role) {
			writeBadRequest(w, "invalid role")
			return
		}
		user.Role = *req.Role
	}
	if req.Status != nil {
		if *req.Status != auth.StatusActive && *req.Status != auth.StatusInactive {
			writeBadRequest(w, "invalid status")
			return
		}
		user.Status = *req.Status
	}
	user.UpdatedAt = time.Now().UTC()

	if err := s.users.Update(r.Context(), user); err != nil {
		if errors.Is(err, auth.ErrEmailExists) {
			writeConflict(w, "email already exists")
			return
		}
		writeInternalError(w, "failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleDeleteUser removes an account. Admin only; self-deletion is refused.
// Historical bindings, telemetry and learning records keep the user id.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	claims := claimsFromContext(r.Context())
	if claims != nil && claims.Subject == id {
		writeForbidden(w, "cannot delete own account")
		return
	}

	if err := s.users.Delete(r.Context(), id); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleChangePassword updates an account password. Users change their own
// password and must present the current one; admins can reset any password
// without it.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	claims := claimsFromContext(r.Context())
	if !canAccessUser(claims, id) {
		writeForbidden(w, "cannot change another user's password")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}

	user, err := s.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to get user")
		return
	}

	selfChange := claims != nil && claims.Subject == id && claims.Role != auth.RoleAdmin
	if selfChange {
		match, verifyErr := auth.VerifyPassword(req.CurrentPassword, user.PasswordHash)
		if verifyErr != nil {
			writeInternalError(w, "failed to verify password")
			return
		}
		if !match {
			writeUnauthorized(w, "current password is incorrect")
			return
		}
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		writeInternalError(w, "failed to hash password")
		return
	}
	if err := s.users.UpdatePassword(r.Context(), id, hash); err != nil {
		writeInternalError(w, "failed to update password")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
