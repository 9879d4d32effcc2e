package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Makar0n1/art-automation/pkg/storage"
	"github.com/Makar0n1/art-automation/pkg/types"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type generationRequest struct {
	MainKeyword   string               `json:"mainKeyword"`
	ArticleType   types.ArticleType    `json:"articleType"`
	Keywords      []string             `json:"keywords"`
	Language      string               `json:"language"`
	Region        string               `json:"region"`
	LSIKeywords   []string             `json:"lsiKeywords"`
	StyleComment  string               `json:"styleComment"`
	Continuous    bool                 `json:"continuous"`
	InternalLinks []types.InternalLink `json:"internalLinks"`
}

func (g *generationRequest) validate() error {
	if g.MainKeyword == "" {
		return errBadRequest("mainKeyword is required")
	}
	if g.Language == "" {
		g.Language = "en"
	}
	if g.Region == "" {
		g.Region = "us"
	}
	if g.ArticleType == "" {
		g.ArticleType = types.ArticleInformational
	} else {
		known := false
		for _, t := range types.ArticleTypes() {
			if g.ArticleType == t {
				known = true
				break
			}
		}
		if !known {
			return errBadRequest("unknown article type %q", g.ArticleType)
		}
	}
	for i := range g.InternalLinks {
		if g.InternalLinks[i].URL == "" {
			return errBadRequest("internal link %d is missing its url", i)
		}
		if g.InternalLinks[i].Position == "" {
			g.InternalLinks[i].Position = types.LinkPositionAny
		}
		if g.InternalLinks[i].DisplayType == "" {
			g.InternalLinks[i].DisplayType = types.LinkDisplayInline
		}
	}
	return nil
}

func (s *Server) handleCreateGeneration(w http.ResponseWriter, r *http.Request) {
	project, err := s.ownedProject(r, chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}

	var req generationRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, err)
		return
	}

	gen := &types.Generation{
		ID:            uuid.NewString(),
		ProjectID:     project.ID,
		UserID:        userID(r),
		MainKeyword:   req.MainKeyword,
		ArticleType:   req.ArticleType,
		Keywords:      req.Keywords,
		Language:      req.Language,
		Region:        req.Region,
		LSIKeywords:   req.LSIKeywords,
		StyleComment:  req.StyleComment,
		Continuous:    req.Continuous,
		InternalLinks: req.InternalLinks,
		Status:        types.StatusQueued,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.CreateGeneration(gen); err != nil {
		respondError(w, err)
		return
	}
	if err := s.queue.Enqueue(r.Context(), gen.ID, gen.UserID, ""); err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusCreated, gen)
}

func (s *Server) handleListProjectGenerations(w http.ResponseWriter, r *http.Request) {
	project, err := s.ownedProject(r, chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	gens, err := s.store.ListGenerationsByProject(project.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, gens)
}

func (s *Server) handleListGenerations(w http.ResponseWriter, r *http.Request) {
	opts := storage.ListOptions{
		Status: types.GenerationStatus(r.URL.Query().Get("status")),
		Page:   1,
		Limit:  defaultPageLimit,
	}
	if p := r.URL.Query().Get("page"); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			opts.Page = n
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			opts.Limit = min(n, maxPageLimit)
		}
	}

	gens, total, err := s.store.ListGenerationsByUser(userID(r), opts)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"generations": gens,
		"total":       total,
		"page":        opts.Page,
		"limit":       opts.Limit,
	})
}

// ownedGeneration loads a generation scoped to the caller. Foreign jobs
// are indistinguishable from missing ones.
func (s *Server) ownedGeneration(r *http.Request) (*types.Generation, error) {
	gen, err := s.store.GetGenerationForUser(chi.URLParam(r, "id"), userID(r))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errNotFound("generation not found")
		}
		return nil, err
	}
	return gen, nil
}

func (s *Server) handleGetGeneration(w http.ResponseWriter, r *http.Request) {
	gen, err := s.ownedGeneration(r)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, gen)
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	gen, err := s.ownedGeneration(r)
	if err != nil {
		respondError(w, err)
		return
	}

	logs := gen.Logs
	if since := r.URL.Query().Get("since"); since != "" {
		cutoff, err := time.Parse(time.RFC3339, since)
		if err != nil {
			respondError(w, errBadRequest("since must be an RFC 3339 timestamp"))
			return
		}
		filtered := make([]types.LogEntry, 0, len(logs))
		for _, entry := range logs {
			if entry.Timestamp.After(cutoff) {
				filtered = append(filtered, entry)
			}
		}
		logs = filtered
	}
	respondData(w, http.StatusOK, map[string]any{
		"logs":   logs,
		"status": gen.Status,
	})
}

func (s *Server) handleContinueGeneration(w http.ResponseWriter, r *http.Request) {
	gen, err := s.ownedGeneration(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if !gen.Status.IsPaused() {
		respondError(w, errBadRequest("generation is not paused"))
		return
	}

	// Flip the status inside the store transaction so a concurrent continue
	// request cannot enqueue the same resume twice.
	resumeFrom := gen.Status
	if err := s.store.UpdateGeneration(gen.ID, func(g *types.Generation) error {
		if !g.Status.IsPaused() {
			return errBadRequest("generation is not paused")
		}
		resumeFrom = g.Status
		g.Status = types.StatusQueued
		return nil
	}); err != nil {
		respondError(w, err)
		return
	}
	if err := s.queue.Enqueue(r.Context(), gen.ID, gen.UserID, resumeFrom); err != nil {
		respondError(w, err)
		return
	}
	respondMessage(w, "generation resumed")
}

func (s *Server) handleDeleteGeneration(w http.ResponseWriter, r *http.Request) {
	gen, err := s.ownedGeneration(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := s.store.DeleteGeneration(gen.ID); err != nil {
		respondError(w, err)
		return
	}
	respondMessage(w, "generation deleted")
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.checker.Check(r.Context())
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	respondData(w, status, report)
}
