// Package user defines learner account entities and their persistence
// interfaces. Session snapshots are handled by the cache layer, not here.
package user

import (
	"context"
	"time"
)

// Learner represents one signed-up account in the system.
type Learner struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"displayName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`        // Never serialize password hash
	Timezone     string    `json:"timezone"` // IANA name, e.g. America/Halifax
	HasPremium   bool      `json:"hasPremium"`
	CreatedAt    time.Time `json:"createdAt"`
	Changed      time.Time `json:"changed"`
}

// Profile is a view of Learner data for frontend consumption.
// This is a derived entity, not persisted directly.
type Profile struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Timezone    string `json:"timezone"`
}

// LearnerRepository defines the operations for persisting Learner entities.
type LearnerRepository interface {
	FindByID(ctx context.Context, id string) (*Learner, error)
	FindByEmail(ctx context.Context, email string) (*Learner, error)
	Store(ctx context.Context, learner *Learner) error
	Update(ctx context.Context, learner *Learner) error
	UpdateTimezone(ctx context.Context, id, timezone string) error
}
