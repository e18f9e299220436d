package store

import (
	"context"

	"github.com/ArowuTest/lottery-odds/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps runs and users in PostgreSQL.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open connection. Call models.Migrate first.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreateRun(ctx context.Context, run *models.SimulationRun) error {
	assignClassIDs(run)
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return errors.Wrapf(err, "failed to create run %s", run.ID)
	}
	return nil
}

func (s *GormStore) SaveRun(ctx context.Context, run *models.SimulationRun) error {
	assignClassIDs(run)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(run).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", run.ID).Delete(&models.WeightClassResult{}).Error; err != nil {
			return err
		}
		if len(run.Classes) == 0 {
			return nil
		}
		return tx.Create(&run.Classes).Error
	})
	return errors.Wrapf(err, "failed to save run %s", run.ID)
}

func (s *GormStore) GetRun(ctx context.Context, id uuid.UUID) (*models.SimulationRun, error) {
	var run models.SimulationRun
	err := s.db.WithContext(ctx).
		Preload("Classes", func(db *gorm.DB) *gorm.DB {
			return db.Order("tickets asc")
		}).
		First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(models.ErrRunNotFound, "run %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load run %s", id)
	}
	return &run, nil
}

// ListRuns returns the newest runs first, without their class rows.
func (s *GormStore) ListRuns(ctx context.Context, limit int) ([]models.SimulationRun, error) {
	var runs []models.SimulationRun
	q := s.db.WithContext(ctx).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	return runs, nil
}

func (s *GormStore) FindUser(ctx context.Context, username string) (*models.AdminUser, error) {
	var user models.AdminUser
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load user")
	}
	return &user, nil
}

func (s *GormStore) CreateUser(ctx context.Context, user *models.AdminUser) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	return errors.Wrapf(s.db.WithContext(ctx).Create(user).Error, "failed to create user %s", user.Username)
}

func (s *GormStore) ListUsers(ctx context.Context) ([]models.AdminUser, error) {
	var users []models.AdminUser
	if err := s.db.WithContext(ctx).Order("username asc").Find(&users).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list users")
	}
	return users, nil
}

func assignClassIDs(run *models.SimulationRun) {
	for i := range run.Classes {
		if run.Classes[i].ID == uuid.Nil {
			run.Classes[i].ID = uuid.New()
		}
		run.Classes[i].RunID = run.ID
	}
}
