package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/Makar0n1/art-automation/pkg/storage"
	"github.com/Makar0n1/art-automation/pkg/types"
	"github.com/Makar0n1/art-automation/pkg/vault"
)

// credentialStatus is the non-secret view of one provider credential.
type credentialStatus struct {
	Configured  bool       `json:"configured"`
	Valid       bool       `json:"valid"`
	LastChecked *time.Time `json:"lastChecked,omitempty"`
}

func credentialStatuses(user *types.User) map[types.Provider]credentialStatus {
	out := make(map[types.Provider]credentialStatus, len(types.Providers()))
	for _, p := range types.Providers() {
		status := credentialStatus{}
		if cred, ok := user.Credentials[p]; ok && cred != nil && cred.Value != "" {
			status.Configured = true
			status.Valid = cred.Valid
			status.LastChecked = cred.LastChecked
		}
		out[p] = status
	}
	return out
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, errBadRequest("email and password are required"))
		return
	}

	user, err := s.store.GetUserByEmail(req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, errUnauthorized("invalid email or password"))
			return
		}
		respondError(w, err)
		return
	}
	if !vault.CompareSecret(req.Password, user.PasswordHash) {
		respondError(w, errUnauthorized("invalid email or password"))
		return
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"token":       token,
		"user":        user,
		"credentials": credentialStatuses(user),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUser(userID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"user":        user,
		"credentials": credentialStatuses(user),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token, err := s.tokens.Issue(userID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"token": token})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if len(req.NewPassword) < 8 {
		respondError(w, errBadRequest("new password must be at least 8 characters"))
		return
	}

	user, err := s.store.GetUser(userID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	if !vault.CompareSecret(req.CurrentPassword, user.PasswordHash) {
		respondError(w, errUnauthorized("current password is incorrect"))
		return
	}

	hash, err := vault.HashSecret(req.NewPassword)
	if err != nil {
		respondError(w, err)
		return
	}
	user.PasswordHash = hash
	user.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateUser(user); err != nil {
		respondError(w, err)
		return
	}
	respondMessage(w, "password updated")
}

func (s *Server) handleSetPin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPin string `json:"currentPin"`
		Password   string `json:"password"`
		NewPin     string `json:"newPin"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if len(req.NewPin) < 4 {
		respondError(w, errBadRequest("pin must be at least 4 characters"))
		return
	}

	user, err := s.store.GetUser(userID(r))
	if err != nil {
		respondError(w, err)
		return
	}

	// Rotation requires the current PIN; first-time setup requires the
	// password instead.
	if user.HasPin() {
		if !vault.CompareSecret(req.CurrentPin, user.PinHash) {
			respondError(w, errUnauthorized("current pin is incorrect"))
			return
		}
	} else if !vault.CompareSecret(req.Password, user.PasswordHash) {
		respondError(w, errUnauthorized("password is incorrect"))
		return
	}

	hash, err := vault.HashSecret(req.NewPin)
	if err != nil {
		respondError(w, err)
		return
	}
	user.PinHash = hash
	user.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateUser(user); err != nil {
		respondError(w, err)
		return
	}
	respondMessage(w, "pin updated")
}

func (s *Server) handlePinStatus(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUser(userID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"hasPinConfigured": user.HasPin()})
}
