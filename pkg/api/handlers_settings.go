package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Makar0n1/art-automation/pkg/providers"
	"github.com/Makar0n1/art-automation/pkg/types"
	"github.com/Makar0n1/art-automation/pkg/vault"
)

const testKeyTimeout = 30 * time.Second

// maskedCredential is the settings view of one credential.
type maskedCredential struct {
	Configured  bool       `json:"configured"`
	Masked      string     `json:"masked,omitempty"`
	Valid       bool       `json:"valid"`
	LastChecked *time.Time `json:"lastChecked,omitempty"`
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUser(userID(r))
	if err != nil {
		respondError(w, err)
		return
	}

	out := make(map[types.Provider]maskedCredential, len(types.Providers()))
	for _, p := range types.Providers() {
		view := maskedCredential{}
		if cred, ok := user.Credentials[p]; ok && cred != nil && cred.Value != "" {
			plain, err := s.vault.Decrypt(cred.Value)
			if err != nil {
				respondError(w, err)
				return
			}
			view.Configured = true
			view.Masked = vault.Mask(plain)
			view.Valid = cred.Valid
			view.LastChecked = cred.LastChecked
		}
		out[p] = view
	}
	respondData(w, http.StatusOK, out)
}

func (s *Server) handleVerifyPin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pin string `json:"pin"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	user, err := s.store.GetUser(userID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	if !user.HasPin() {
		respondError(w, errBadRequest("no pin configured"))
		return
	}

	ip := clientIP(r, s.trustedProxy)
	remaining, err := s.vault.VerifyPin(ip, user.ID, req.Pin, user.PinHash)
	if err != nil {
		if errors.Is(err, vault.ErrPinBlocked) {
			respond(w, http.StatusForbidden, envelope{
				Success:   false,
				Error:     "pin verification blocked",
				IsBlocked: true,
			})
			return
		}
		respond(w, http.StatusForbidden, envelope{
			Success:           false,
			Error:             "invalid pin",
			AttemptsRemaining: &remaining,
		})
		return
	}
	respond(w, http.StatusOK, envelope{Success: true, Message: "pin verified"})
}

// requirePin enforces the PIN gate on credential writes when one is
// configured. The attempt counter and block flag apply here too.
func (s *Server) requirePin(r *http.Request, user *types.User, pin string) error {
	if !user.HasPin() {
		return nil
	}
	ip := clientIP(r, s.trustedProxy)
	if _, err := s.vault.VerifyPin(ip, user.ID, pin, user.PinHash); err != nil {
		if errors.Is(err, vault.ErrPinBlocked) {
			return errForbidden("pin verification blocked")
		}
		return errForbidden("invalid pin")
	}
	return nil
}

func parseProvider(r *http.Request) (types.Provider, error) {
	p := types.Provider(chi.URLParam(r, "provider"))
	for _, known := range types.Providers() {
		if p == known {
			return p, nil
		}
	}
	return "", errBadRequest("unknown provider %q", p)
}

func (s *Server) handleSetKey(w http.ResponseWriter, r *http.Request) {
	provider, err := parseProvider(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		Key string `json:"key"`
		Pin string `json:"pin"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Key == "" {
		respondError(w, errBadRequest("key is required"))
		return
	}

	user, err := s.store.GetUser(userID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	if err := s.requirePin(r, user, req.Pin); err != nil {
		respondError(w, err)
		return
	}

	encrypted, err := s.vault.Encrypt(req.Key)
	if err != nil {
		respondError(w, err)
		return
	}
	if user.Credentials == nil {
		user.Credentials = make(map[types.Provider]*types.Credential)
	}
	user.Credentials[provider] = &types.Credential{Value: encrypted}
	user.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateUser(user); err != nil {
		respondError(w, err)
		return
	}

	respondData(w, http.StatusOK, map[string]any{
		"provider": provider,
		"masked":   vault.Mask(req.Key),
	})
}

func (s *Server) handleTestKey(w http.ResponseWriter, r *http.Request) {
	provider, err := parseProvider(r)
	if err != nil {
		respondError(w, err)
		return
	}

	user, err := s.store.GetUser(userID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	cred, ok := user.Credentials[provider]
	if !ok || cred == nil || cred.Value == "" {
		respondError(w, errBadRequest("%s credential is not configured", provider))
		return
	}
	plain, err := s.vault.Decrypt(cred.Value)
	if err != nil {
		respondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), testKeyTimeout)
	defer cancel()

	var pingErr error
	switch provider {
	case types.ProviderFirecrawl:
		pingErr = providers.NewSearchClient(plain, "").Ping(ctx)
	case types.ProviderOpenRouter:
		pingErr = providers.NewLLMClient(plain, "", s.llmModel).Ping(ctx)
	case types.ProviderSupabase:
		llmKey := ""
		if llmCred, ok := user.Credentials[types.ProviderOpenRouter]; ok && llmCred != nil {
			llmKey, _ = s.vault.Decrypt(llmCred.Value)
		}
		pingErr = providers.NewVectorClient(s.vectorStoreURL, plain, llmKey, "").Ping(ctx)
	}

	now := time.Now().UTC()
	cred.Valid = pingErr == nil
	cred.LastChecked = &now
	if err := s.store.UpdateUser(user); err != nil {
		respondError(w, err)
		return
	}

	result := map[string]any{"provider": provider, "valid": cred.Valid}
	if pingErr != nil {
		result["error"] = pingErr.Error()
	}
	respondData(w, http.StatusOK, result)
}
