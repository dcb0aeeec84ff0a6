package models

import (
	"time"

	"github.com/google/uuid"
)

// Agent is an MLS member. Unique by MemberKey; contact fields are
// replaced wholesale on every sighting, no history is kept.
type Agent struct {
	ID           uuid.UUID `json:"id" db:"id"`
	MemberKey    string    `json:"member_key" db:"member_key"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	FullName     string    `json:"full_name" db:"full_name"`
	Email        string    `json:"email" db:"email"`
	MlsID        string    `json:"mls_id" db:"mls_id"`
	OfficeName   string    `json:"office_name" db:"office_name"`
	Phone        string    `json:"phone" db:"phone"`
	LastSyncedAt time.Time `json:"last_synced_at" db:"last_synced_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
