package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Makar0n1/art-automation/pkg/storage"
	"github.com/Makar0n1/art-automation/pkg/types"
)

const (
	maxProjectNameLen        = 100
	maxProjectDescriptionLen = 500
)

type projectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (p *projectRequest) validate() error {
	if p.Name == "" {
		return errBadRequest("name is required")
	}
	if len(p.Name) > maxProjectNameLen {
		return errBadRequest("name must be at most %d characters", maxProjectNameLen)
	}
	if len(p.Description) > maxProjectDescriptionLen {
		return errBadRequest("description must be at most %d characters", maxProjectDescriptionLen)
	}
	return nil
}

// ownedProject loads a project and enforces ownership. Foreign projects
// are indistinguishable from missing ones.
func (s *Server) ownedProject(r *http.Request, id string) (*types.Project, error) {
	project, err := s.store.GetProject(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errNotFound("project not found")
		}
		return nil, err
	}
	if project.UserID != userID(r) {
		return nil, errNotFound("project not found")
	}
	return project, nil
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, err)
		return
	}

	now := time.Now().UTC()
	project := &types.Project{
		ID:          uuid.NewString(),
		UserID:      userID(r),
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateProject(project); err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusCreated, project)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjectsByUser(userID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, projects)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.ownedProject(r, chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, project)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.ownedProject(r, chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}

	var req projectRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, err)
		return
	}

	project.Name = req.Name
	project.Description = req.Description
	project.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateProject(project); err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, project)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.ownedProject(r, chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	// Cascade: all generations under the project go with it.
	if err := s.store.DeleteProject(project.ID); err != nil {
		respondError(w, err)
		return
	}
	respondMessage(w, "project deleted")
}
