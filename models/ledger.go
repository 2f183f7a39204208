package models

import "time"

// LedgerTransaction is one immutable, signed point movement.
// Rows are only ever inserted; the sum of Amount per participant is the participant's balance.
type LedgerTransaction struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ParticipantID uint      `gorm:"index;not null" json:"participant_id"`
	Amount        int64     `gorm:"not null" json:"amount"`
	Reason        string    `gorm:"type:text;not null" json:"reason"`
	ChallengeID   *string   `gorm:"index;size:36" json:"challenge_id,omitempty"`
	ActorID       string    `gorm:"size:128;not null" json:"actor_id"`
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}

// CreditReceipt marks a ledger transaction as already converted into credits.
// The primary key on TransactionID is what makes crediting idempotent.
type CreditReceipt struct {
	TransactionID uint      `gorm:"primaryKey;autoIncrement:false" json:"transaction_id"`
	ParticipantID uint      `gorm:"index;not null" json:"participant_id"`
	Credits       int64     `gorm:"not null" json:"credits"`
	CreatedAt     time.Time `json:"created_at"`
}

// SystemActor is recorded as the actor of transactions nobody in particular caused.
const SystemActor = "system"
