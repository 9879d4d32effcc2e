package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Makar0n1/art-automation/pkg/types"
)

var (
	// Bucket names
	bucketUsers       = []byte("users")
	bucketProjects    = []byte("projects")
	bucketGenerations = []byte("generations")
	bucketPinAttempts = []byte("pin_attempts")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database file under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "artgen.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{bucketUsers, bucketProjects, bucketGenerations, bucketPinAttempts}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database handle is usable.
func (s *BoltStore) Ping() error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketUsers) == nil {
			return fmt.Errorf("users bucket missing")
		}
		return nil
	})
}

// User operations

func (s *BoltStore) CreateUser(user *types.User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		return b.Put([]byte(user.ID), data)
	})
}

func (s *BoltStore) GetUser(id string) (*types.User, error) {
	var user types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *BoltStore) GetUserByEmail(email string) (*types.User, error) {
	var found *types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var user types.User
			if err := json.Unmarshal(v, &user); err != nil {
				return err
			}
			if user.Email == email {
				found = &user
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	return found, nil
}

func (s *BoltStore) UpdateUser(user *types.User) error {
	user.UpdatedAt = time.Now()
	return s.CreateUser(user)
}

// Project operations

func (s *BoltStore) CreateProject(project *types.Project) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		data, err := json.Marshal(project)
		if err != nil {
			return err
		}
		return b.Put([]byte(project.ID), data)
	})
}

func (s *BoltStore) GetProject(id string) (*types.Project, error) {
	var project types.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketProjects).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("project %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &project)
	})
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *BoltStore) ListProjectsByUser(userID string) ([]*types.Project, error) {
	var projects []*types.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProjects).ForEach(func(k, v []byte) error {
			var project types.Project
			if err := json.Unmarshal(v, &project); err != nil {
				return err
			}
			if project.UserID == userID {
				projects = append(projects, &project)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
	return projects, nil
}

func (s *BoltStore) UpdateProject(project *types.Project) error {
	project.UpdatedAt = time.Now()
	return s.CreateProject(project)
}

// DeleteProject removes the project and cascades to its generations in the
// same transaction.
func (s *BoltStore) DeleteProject(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		gens := tx.Bucket(bucketGenerations)
		var doomed [][]byte
		err := gens.ForEach(func(k, v []byte) error {
			var gen types.Generation
			if err := json.Unmarshal(v, &gen); err != nil {
				return err
			}
			if gen.ProjectID == id {
				key := make([]byte, len(k))
				copy(key, k)
				doomed = append(doomed, key)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range doomed {
			if err := gens.Delete(key); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketProjects).Delete([]byte(id))
	})
}

// Generation operations

func (s *BoltStore) CreateGeneration(gen *types.Generation) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGenerations)
		data, err := json.Marshal(gen)
		if err != nil {
			return err
		}
		return b.Put([]byte(gen.ID), data)
	})
}

func (s *BoltStore) GetGeneration(id string) (*types.Generation, error) {
	var gen types.Generation
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketGenerations).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("generation %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &gen)
	})
	if err != nil {
		return nil, err
	}
	return &gen, nil
}

func (s *BoltStore) GetGenerationForUser(id, userID string) (*types.Generation, error) {
	gen, err := s.GetGeneration(id)
	if err != nil {
		return nil, err
	}
	if gen.UserID != userID {
		return nil, fmt.Errorf("generation %s: %w", id, ErrNotFound)
	}
	return gen, nil
}

func (s *BoltStore) ListGenerationsByProject(projectID string) ([]*types.Generation, error) {
	var gens []*types.Generation
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketGenerations).ForEach(func(k, v []byte) error {
			var gen types.Generation
			if err := json.Unmarshal(v, &gen); err != nil {
				return err
			}
			if gen.ProjectID == projectID {
				gens = append(gens, &gen)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortGenerations(gens)
	return gens, nil
}

func (s *BoltStore) ListGenerationsByUser(userID string, opts ListOptions) ([]*types.Generation, int, error) {
	var gens []*types.Generation
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketGenerations).ForEach(func(k, v []byte) error {
			var gen types.Generation
			if err := json.Unmarshal(v, &gen); err != nil {
				return err
			}
			if gen.UserID != userID {
				return nil
			}
			if opts.Status != "" && gen.Status != opts.Status {
				return nil
			}
			gens = append(gens, &gen)
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}
	sortGenerations(gens)

	total := len(gens)
	if opts.Page > 0 && opts.Limit > 0 {
		start := (opts.Page - 1) * opts.Limit
		if start >= total {
			return []*types.Generation{}, total, nil
		}
		end := start + opts.Limit
		if end > total {
			end = total
		}
		gens = gens[start:end]
	}
	return gens, total, nil
}

func (s *BoltStore) DeleteGeneration(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketGenerations).Delete([]byte(id))
	})
}

// AppendLog appends one entry to the generation's log in its own
// transaction, independent of status/progress writes.
func (s *BoltStore) AppendLog(id string, entry types.LogEntry) error {
	return s.UpdateGeneration(id, func(gen *types.Generation) error {
		gen.Logs = append(gen.Logs, entry)
		return nil
	})
}

// UpdateGeneration reads, mutates and rewrites the record inside one
// transaction so concurrent readers never observe a partial write.
func (s *BoltStore) UpdateGeneration(id string, mutate func(*types.Generation) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGenerations)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("generation %s: %w", id, ErrNotFound)
		}
		var gen types.Generation
		if err := json.Unmarshal(data, &gen); err != nil {
			return err
		}
		if err := mutate(&gen); err != nil {
			return err
		}
		updated, err := json.Marshal(&gen)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), updated)
	})
}

// PIN attempt operations

func pinKey(ip, userID string) []byte {
	return []byte(ip + "|" + userID)
}

func (s *BoltStore) GetPinAttempt(ip, userID string) (*types.PinAttempt, error) {
	var attempt types.PinAttempt
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPinAttempts).Get(pinKey(ip, userID))
		if data == nil {
			return fmt.Errorf("pin attempt: %w", ErrNotFound)
		}
		return json.Unmarshal(data, &attempt)
	})
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// RecordPinFailure performs an atomic increment-or-create; once attempts
// reach threshold the blocked flag is set and stays set.
func (s *BoltStore) RecordPinFailure(ip, userID string, threshold int) (*types.PinAttempt, error) {
	attempt := &types.PinAttempt{IP: ip, UserID: userID}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPinAttempts)
		key := pinKey(ip, userID)
		if data := b.Get(key); data != nil {
			if err := json.Unmarshal(data, attempt); err != nil {
				return err
			}
		}
		attempt.Attempts++
		attempt.LastAttempt = time.Now()
		if attempt.Attempts >= threshold {
			attempt.Blocked = true
		}
		data, err := json.Marshal(attempt)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
	if err != nil {
		return nil, err
	}
	return attempt, nil
}

func (s *BoltStore) ClearPinAttempts(ip, userID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPinAttempts).Delete(pinKey(ip, userID))
	})
}

func sortGenerations(gens []*types.Generation) {
	sort.Slice(gens, func(i, j int) bool {
		return gens[i].CreatedAt.After(gens[j].CreatedAt)
	})
}
