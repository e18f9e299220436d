package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ArowuTest/lottery-odds/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MemoryStore keeps runs and users in process memory. The server falls back
// to it when no database is configured; nothing survives a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	runs  map[uuid.UUID]*models.SimulationRun
	users map[string]*models.AdminUser
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:  make(map[uuid.UUID]*models.SimulationRun),
		users: make(map[string]*models.AdminUser),
	}
}

func (s *MemoryStore) CreateRun(_ context.Context, run *models.SimulationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return errors.Errorf("run %s already exists", run.ID)
	}
	now := time.Now()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run *models.SimulationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return errors.Wrapf(models.ErrRunNotFound, "run %s", run.ID)
	}
	run.UpdatedAt = time.Now()
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id uuid.UUID) (*models.SimulationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, errors.Wrapf(models.ErrRunNotFound, "run %s", id)
	}
	cp := cloneRun(run)
	sort.Slice(cp.Classes, func(i, j int) bool { return cp.Classes[i].Tickets < cp.Classes[j].Tickets })
	return cp, nil
}

func (s *MemoryStore) ListRuns(_ context.Context, limit int) ([]models.SimulationRun, error) {
	s.mu.RLock()
	out := make([]models.SimulationRun, 0, len(s.runs))
	for _, run := range s.runs {
		cp := *run
		cp.Classes = nil
		out = append(out, cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) FindUser(_ context.Context, username string) (*models.AdminUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, user *models.AdminUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Username]; ok {
		return errors.Errorf("user %s already exists", user.Username)
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	cp := *user
	s.users[user.Username] = &cp
	return nil
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]models.AdminUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AdminUser, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}
