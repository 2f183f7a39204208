package models

import (
	"time"
)

// Participant is a member of the event roster.
// TotalPoints and Credits are materialized from the ledger and credit receipts;
// they are only written inside the same database transaction as the rows they summarize.
type Participant struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	ExternalID         string    `gorm:"uniqueIndex;size:128;not null" json:"external_id"` // slug of the name, or the identity service id
	DisplayName        string    `gorm:"index;not null" json:"display_name"`
	IsGroom            bool      `gorm:"default:false" json:"is_groom"`
	AvatarURL          *string   `json:"avatar_url,omitempty"`
	TotalPoints        int64     `gorm:"not null;default:0" json:"total_points"`
	Credits            int64     `gorm:"not null;default:0" json:"credits"`
	WelcomePackGranted bool      `gorm:"default:false" json:"welcome_pack_granted"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`

	Inventory []PackInventory `gorm:"foreignKey:ParticipantID" json:"inventory,omitempty"`
}

// RosterEntry describes one participant as delivered by roster seeding or the identity service.
type RosterEntry struct {
	ExternalID  string  `json:"external_id"`
	DisplayName string  `json:"display_name"`
	IsGroom     bool    `json:"is_groom"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

// DefaultRoster is the fixed guest list seeded on first startup.
var DefaultRoster = []RosterEntry{
	{DisplayName: "Paul C.", IsGroom: true},
	{DisplayName: "Clément P."},
	{DisplayName: "Paul J."},
	{DisplayName: "Hugo F."},
	{DisplayName: "Théo C."},
	{DisplayName: "Antonin M."},
	{DisplayName: "Philippe C."},
	{DisplayName: "Lancelot M."},
	{DisplayName: "Vianney D."},
	{DisplayName: "Thomas S."},
	{DisplayName: "Martin L."},
	{DisplayName: "Guillaume V."},
	{DisplayName: "Adrien M."},
}
