package models

import (
	"time"
)

// PackTier is a purchasable reward pack category.
type PackTier string

const (
	PackTierBronze   PackTier = "bronze"
	PackTierSilver   PackTier = "silver"
	PackTierGold     PackTier = "gold"
	PackTierUltimate PackTier = "ultimate"
)

// PackTiers lists every tier from cheapest to most expensive.
var PackTiers = []PackTier{PackTierBronze, PackTierSilver, PackTierGold, PackTierUltimate}

// ParsePackTier reports whether s names a known tier.
func ParsePackTier(s string) (PackTier, bool) {
	for _, t := range PackTiers {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Rarity is a weighted bucket inside a pack tier's reward pool.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Rarities is the fixed walk order used by the weighted draw.
var Rarities = []Rarity{RarityCommon, RarityRare, RarityEpic, RarityLegendary}

// RewardType is the closed set of things a reward can be.
type RewardType string

const (
	RewardTypeShot     RewardType = "shot"
	RewardTypeImmunity RewardType = "immunity"
	RewardTypePower    RewardType = "power"
	RewardTypeWildcard RewardType = "wildcard"
)

// RewardDefinition is a concrete prize in a tier's pool. Static configuration.
type RewardDefinition struct {
	Code        string     `json:"code"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Type        RewardType `json:"type"`
	Rarity      Rarity     `json:"rarity"`
}

// PackInventory counts unopened packs a participant holds for one tier.
// Purchased is the share of Quantity that was paid for with credits.
type PackInventory struct {
	ParticipantID uint      `gorm:"primaryKey;autoIncrement:false" json:"participant_id"`
	Tier          PackTier  `gorm:"primaryKey;size:16" json:"tier"`
	Quantity      int       `gorm:"not null;default:0" json:"quantity"`
	Purchased     int       `gorm:"not null;default:0" json:"purchased"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PackPurchase is the audit row written for every credit spend.
type PackPurchase struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	ParticipantID uint      `gorm:"index;not null" json:"participant_id"`
	Tier          PackTier  `gorm:"size:16;not null" json:"tier"`
	Cost          int64     `gorm:"not null" json:"cost"`
	CreatedAt     time.Time `json:"created_at"`
}

// RewardRecord is appended once per opened pack.
type RewardRecord struct {
	ID                string     `gorm:"primaryKey;size:36" json:"id"`
	ParticipantID     uint       `gorm:"index;not null" json:"participant_id"`
	Tier              PackTier   `gorm:"size:16;not null" json:"tier"`
	RewardCode        string     `gorm:"size:128;not null" json:"reward_code"`
	RewardName        string     `gorm:"not null" json:"reward_name"`
	RewardDescription string     `gorm:"type:text" json:"reward_description"`
	RewardType        RewardType `gorm:"size:16;not null" json:"reward_type"`
	Rarity            Rarity     `gorm:"size:16;not null;index" json:"rarity"`
	CreditsSpent      int64      `gorm:"not null" json:"credits_spent"`
	Claimed           bool       `gorm:"default:false" json:"claimed"`
	CreatedAt         time.Time  `gorm:"index" json:"created_at"`
}
