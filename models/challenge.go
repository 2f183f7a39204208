package models

import (
	"time"
)

type ChallengeType string

const (
	ChallengeTypeIndividual ChallengeType = "individual"
	ChallengeTypeTeam       ChallengeType = "team"
	ChallengeTypeSecret     ChallengeType = "secret"
)

func (t ChallengeType) Valid() bool {
	switch t {
	case ChallengeTypeIndividual, ChallengeTypeTeam, ChallengeTypeSecret:
		return true
	}
	return false
}

// ChallengeStatus moves pending -> active -> completed | failed.
type ChallengeStatus string

const (
	ChallengeStatusPending   ChallengeStatus = "pending"
	ChallengeStatusActive    ChallengeStatus = "active"
	ChallengeStatusCompleted ChallengeStatus = "completed"
	ChallengeStatusFailed    ChallengeStatus = "failed"
)

// ChallengeStatuses in lifecycle order.
var ChallengeStatuses = []ChallengeStatus{
	ChallengeStatusPending,
	ChallengeStatusActive,
	ChallengeStatusCompleted,
	ChallengeStatusFailed,
}

type Challenge struct {
	ID          string          `gorm:"primaryKey;size:36" json:"id"`
	Title       string          `gorm:"not null" json:"title"`
	Description string          `gorm:"type:text" json:"description"`
	Type        ChallengeType   `gorm:"size:16;not null" json:"type"`
	Points      int64           `gorm:"not null" json:"points"`
	Status      ChallengeStatus `gorm:"size:16;not null;index" json:"status"`
	CreatedBy   string          `gorm:"size:128" json:"created_by"`
	ValidatedBy *string         `gorm:"size:128" json:"validated_by,omitempty"`
	ActivatedAt *time.Time      `json:"activated_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	FailedAt    *time.Time      `json:"failed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`

	Assignments []ChallengeAssignment `gorm:"foreignKey:ChallengeID" json:"-"`
	Completions []ChallengeCompletion `gorm:"foreignKey:ChallengeID" json:"-"`
}

// ChallengeAssignment restricts who may attempt a challenge. No rows means open to all.
type ChallengeAssignment struct {
	ChallengeID   string    `gorm:"primaryKey;size:36" json:"challenge_id"`
	ParticipantID uint      `gorm:"primaryKey;autoIncrement:false" json:"participant_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// ChallengeCompletion links a credited participant to the ledger row it produced.
type ChallengeCompletion struct {
	ChallengeID   string    `gorm:"primaryKey;size:36" json:"challenge_id"`
	ParticipantID uint      `gorm:"primaryKey;autoIncrement:false" json:"participant_id"`
	TransactionID uint      `gorm:"not null" json:"transaction_id"`
	ValidatedBy   string    `gorm:"size:128;not null" json:"validated_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// AssignedIDs returns the participant ids the challenge is restricted to.
func (c *Challenge) AssignedIDs() []uint {
	ids := make([]uint, 0, len(c.Assignments))
	for _, a := range c.Assignments {
		ids = append(ids, a.ParticipantID)
	}
	return ids
}

// CompletedIDs returns the participant ids already credited for the challenge.
func (c *Challenge) CompletedIDs() []uint {
	ids := make([]uint, 0, len(c.Completions))
	for _, cc := range c.Completions {
		ids = append(ids, cc.ParticipantID)
	}
	return ids
}

func (c *Challenge) IsAssignedTo(participantID uint) bool {
	for _, a := range c.Assignments {
		if a.ParticipantID == participantID {
			return true
		}
	}
	return false
}

func (c *Challenge) CompletedBy(participantID uint) bool {
	for _, cc := range c.Completions {
		if cc.ParticipantID == participantID {
			return true
		}
	}
	return false
}

// ChallengeSeed is a challenge created on first startup.
type ChallengeSeed struct {
	Title       string
	Description string
	Type        ChallengeType
	Points      int64
}

var DefaultChallenges = []ChallengeSeed{
	{"Convince a stranger you're a Red Bull sales rep", "Approach a stranger and convince them you work for Red Bull. Must last at least 2 minutes.", ChallengeTypeIndividual, 30},
	{"Win a 1v1 FIFA match against Paul", "Challenge Paul to a FIFA match and win. Best of 3 games.", ChallengeTypeIndividual, 50},
	{"Complete a rugby transformation", "Score a try in the touch rugby game with proper technique.", ChallengeTypeIndividual, 40},
	{"Finish first in go-kart racing", "Win the go-kart race against all other participants.", ChallengeTypeIndividual, 50},
	{"Give a 2-minute speech about why Paul is the best groom", "Deliver an impromptu 2-minute speech praising Paul.", ChallengeTypeIndividual, 35},
	{"Order a shot mimicking Paul's accent", "Order a shot at the bar using Paul's accent without the bartender noticing.", ChallengeTypeIndividual, 25},
	{"Pitch an absurd item to a stranger", "Pitch a ridiculous product to a stranger for 2 minutes.", ChallengeTypeIndividual, 30},
	{"Negotiate a discount at the restaurant", "Negotiate at least a 10% discount on the bill.", ChallengeTypeIndividual, 45},
	{"Win the padel tournament", "Your team must win the padel tournament on Saturday afternoon.", ChallengeTypeTeam, 100},
	{"Win the football match", "Your team must win the football match on Saturday afternoon.", ChallengeTypeTeam, 100},
	{"Finish champagne bottle under 5 minutes", "Your team of 4 must finish a full champagne bottle in under 5 minutes.", ChallengeTypeTeam, 100},
	{"Complete a 5-person karaoke", "Get 5 people to perform a full karaoke song together.", ChallengeTypeTeam, 100},
	{"Make Paul laugh during dinner", "Next person to make Paul genuinely laugh during dinner wins.", ChallengeTypeSecret, 50},
	{"Spot the reference", "First person to notice and mention the hidden Toulouse Stade reference wins.", ChallengeTypeSecret, 75},
	{"Midnight champion", "Last person awake on Friday night wins bonus points.", ChallengeTypeSecret, 100},
}
