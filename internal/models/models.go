package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AdminUserRole enumerates allowed roles.
type AdminUserRole string

const (
	RoleSuperAdmin AdminUserRole = "SUPERADMIN"
	RoleAdmin      AdminUserRole = "ADMIN"
	RoleViewer     AdminUserRole = "VIEWER"
)

// UserStatus enumerates user account states.
type UserStatus string

const (
	StatusActive   UserStatus = "Active"
	StatusInactive UserStatus = "Inactive"
	StatusLocked   UserStatus = "Locked"
)

// AdminUser can log in to the API and submit simulations.
type AdminUser struct {
	ID           uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	Username     string        `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string        `gorm:"not null" json:"-"`
	Role         AdminUserRole `gorm:"not null" json:"role"`
	Status       UserStatus    `gorm:"not null;default:'Active'" json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Entrant is one lottery participant. Tickets is the relative draw weight.
type Entrant struct {
	Name    string  `json:"name"`
	Tickets float64 `json:"tickets"`
}

// RunStatus is the lifecycle state of a SimulationRun.
type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
	RunCancelled RunStatus = "CANCELLED"
)

// SimulationRun is one archived simulation: its parameters, the pool it ran
// over and, once finished, one WeightClassResult per distinct ticket count.
type SimulationRun struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Status          RunStatus `gorm:"not null;index" json:"status"`
	Iterations      int       `gorm:"not null" json:"iterations"`
	CompletedTrials int       `gorm:"not null;default:0" json:"completed_trials"`
	MainSpots       int       `gorm:"not null" json:"main_spots"`
	WaitlistSpots   int       `gorm:"not null" json:"waitlist_spots"`
	Workers         int       `gorm:"not null" json:"workers"`
	// Seed is stored as its bit pattern; postgres has no unsigned bigint.
	Seed         int64   `gorm:"not null" json:"seed"`
	PoolHash     string  `gorm:"not null;index" json:"pool_hash"`
	EntrantCount int     `gorm:"not null" json:"entrant_count"`
	TotalTickets float64 `gorm:"not null" json:"total_tickets"`
	Error        string  `json:"error,omitempty"`
	CreatedBy    string  `json:"created_by,omitempty"`

	Classes []WeightClassResult `gorm:"foreignKey:RunID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"classes,omitempty"`

	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// WeightClassResult holds the accumulated counters for one ticket count.
type WeightClassResult struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	RunID              uuid.UUID `gorm:"type:uuid;not null;index" json:"-"`
	Tickets            float64   `gorm:"not null" json:"tickets"`
	Entrants           int       `gorm:"not null" json:"entrants"`
	MainSelections     int64     `gorm:"not null" json:"main_selections"`
	WaitlistSelections int64     `gorm:"not null" json:"waitlist_selections"`
}

// Migrate will create/update your tables
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&AdminUser{},
		&SimulationRun{},
		&WeightClassResult{},
	)
}
