// Package store archives simulation runs and admin accounts.
package store

import (
	"context"

	"github.com/ArowuTest/lottery-odds/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrUserNotFound is returned by FindUser for an unknown username.
var ErrUserNotFound = errors.New("user not found")

// RunStore persists simulation runs. SaveRun replaces the run's class rows.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.SimulationRun) error
	SaveRun(ctx context.Context, run *models.SimulationRun) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.SimulationRun, error)
	ListRuns(ctx context.Context, limit int) ([]models.SimulationRun, error)
}

// UserStore persists admin accounts.
type UserStore interface {
	FindUser(ctx context.Context, username string) (*models.AdminUser, error)
	CreateUser(ctx context.Context, user *models.AdminUser) error
	ListUsers(ctx context.Context) ([]models.AdminUser, error)
}

func cloneRun(run *models.SimulationRun) *models.SimulationRun {
	cp := *run
	cp.Classes = append([]models.WeightClassResult(nil), run.Classes...)
	if run.FinishedAt != nil {
		t := *run.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}
