package models

import (
	"time"

	"github.com/google/uuid"
)

// StatusEntry is one step in a listing's status history.
type StatusEntry struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Address is the listing's street address, with coordinates filled in
// by geocoding once resolved.
type Address struct {
	Street string   `json:"street" db:"street"`
	City   string   `json:"city" db:"city"`
	State  string   `json:"state" db:"state"`
	Zip    string   `json:"zip" db:"zip"`
	Lat    *float64 `json:"lat" db:"lat"`
	Lng    *float64 `json:"lng" db:"lng"`
}

// Complete reports whether all four address components are present,
// which is the bar for attempting a geocode lookup.
func (a *Address) Complete() bool {
	return a.Street != "" && a.City != "" && a.State != "" && a.Zip != ""
}

// HasCoordinates reports whether the address has already been geocoded.
func (a *Address) HasCoordinates() bool {
	return a.Lat != nil && a.Lng != nil
}

// Listing is a property listing pulled from the MLS feed. Unique by
// ListingKey; StatusHistory is append-only and its last entry always
// matches Status.
type Listing struct {
	ID                    uuid.UUID     `json:"id" db:"id"`
	ListingKey            string        `json:"listing_key" db:"listing_key"`
	ListPrice             *float64      `json:"list_price" db:"list_price"`
	ListAgentKey          string        `json:"list_agent_key" db:"list_agent_key"`
	Address               Address       `json:"address"`
	Status                string        `json:"status" db:"status"`
	StatusHistory         []StatusEntry `json:"status_history" db:"status_history"`
	ModificationTimestamp *time.Time    `json:"modification_timestamp" db:"modification_timestamp"`
	LastSyncedAt          time.Time     `json:"last_synced_at" db:"last_synced_at"`
	CreatedAt             time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at" db:"updated_at"`
}
