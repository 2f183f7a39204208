package services

import (
	"fmt"

	"evg-scoreboard/models"
)

// NotFoundError reports an unknown participant, challenge, tier or transaction.
type NotFoundError struct {
	Resource string
	ID       any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Resource, e.ID)
}

// InvalidAmountError reports a zero amount or one the balance policy refuses.
type InvalidAmountError struct {
	Amount int64
	Reason string
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount %d: %s", e.Amount, e.Reason)
}

// ValidationError reports malformed input other than an amount.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type InsufficientCreditsError struct {
	ParticipantID uint
	Balance       int64
	Required      int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("participant %d has %d credits, %d required", e.ParticipantID, e.Balance, e.Required)
}

type NoInventoryError struct {
	ParticipantID uint
	Tier          models.PackTier
}

func (e *NoInventoryError) Error() string {
	return fmt.Sprintf("participant %d has no %s pack to open", e.ParticipantID, e.Tier)
}

// InvalidStateTransitionError reports an action the challenge lifecycle does not allow.
type InvalidStateTransitionError struct {
	ChallengeID string
	From        models.ChallengeStatus
	Action      string
	Reason      string
}

func (e *InvalidStateTransitionError) Error() string {
	msg := fmt.Sprintf("cannot %s challenge %s in status %s", e.Action, e.ChallengeID, e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// ConcurrencyConflictError reports a guarded write that lost a race with another process.
type ConcurrencyConflictError struct {
	Resource string
	ID       any
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrent update on %s %v, retry", e.Resource, e.ID)
}
