package storage

import (
	"errors"

	"github.com/Makar0n1/art-automation/pkg/types"
)

// ErrNotFound is returned when a record does not exist. Ownership misses
// are reported the same way so callers cannot distinguish the two.
var ErrNotFound = errors.New("not found")

// ListOptions narrows generation listings.
type ListOptions struct {
	Status types.GenerationStatus // empty = all
	Page   int                    // 1-based; 0 = no pagination
	Limit  int
}

// Store defines the durable state interface shared by the api and worker
// roles. All mutations are atomic with respect to concurrent readers.
type Store interface {
	// Users
	CreateUser(user *types.User) error
	GetUser(id string) (*types.User, error)
	GetUserByEmail(email string) (*types.User, error)
	UpdateUser(user *types.User) error

	// Projects
	CreateProject(project *types.Project) error
	GetProject(id string) (*types.Project, error)
	ListProjectsByUser(userID string) ([]*types.Project, error)
	UpdateProject(project *types.Project) error
	// DeleteProject removes the project and every generation under it.
	DeleteProject(id string) error

	// Generations
	CreateGeneration(gen *types.Generation) error
	GetGeneration(id string) (*types.Generation, error)
	// GetGenerationForUser returns ErrNotFound unless the generation exists
	// and belongs to the given user.
	GetGenerationForUser(id, userID string) (*types.Generation, error)
	ListGenerationsByProject(projectID string) ([]*types.Generation, error)
	ListGenerationsByUser(userID string, opts ListOptions) ([]*types.Generation, int, error)
	DeleteGeneration(id string) error

	// AppendLog atomically appends one entry to the generation's log.
	AppendLog(id string, entry types.LogEntry) error
	// UpdateGeneration atomically applies mutate to the current record.
	UpdateGeneration(id string, mutate func(*types.Generation) error) error

	// PIN attempt counters, keyed by (client IP, user).
	GetPinAttempt(ip, userID string) (*types.PinAttempt, error)
	// RecordPinFailure increments the counter, setting the blocked flag once
	// attempts reach threshold. Returns the updated record.
	RecordPinFailure(ip, userID string, threshold int) (*types.PinAttempt, error)
	// ClearPinAttempts removes the counter after a successful verification.
	ClearPinAttempts(ip, userID string) error

	// Utility
	Ping() error
	Close() error
}
