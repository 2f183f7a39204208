package services

import (
	"evg-scoreboard/models"
)

// TierConfig is the static configuration of one pack tier.
type TierConfig struct {
	Tier    models.PackTier                             `json:"tier"`
	Cost    int64                                       `json:"cost"`
	Weights map[models.Rarity]int                       `json:"weights"`
	Pools   map[models.Rarity][]models.RewardDefinition `json:"-"`
}

// TotalWeight sums the positive rarity weights.
func (c TierConfig) TotalWeight() int {
	total := 0
	for _, r := range models.Rarities {
		if w := c.Weights[r]; w > 0 {
			total += w
		}
	}
	return total
}

// Rewards flattens every pool of the tier in rarity order.
func (c TierConfig) Rewards() []models.RewardDefinition {
	var all []models.RewardDefinition
	for _, r := range models.Rarities {
		all = append(all, c.Pools[r]...)
	}
	return all
}

// Catalog maps each tier to its configuration.
type Catalog map[models.PackTier]TierConfig

func reward(rarity models.Rarity, typ models.RewardType, name, description string) models.RewardDefinition {
	return models.RewardDefinition{Name: name, Description: description, Type: typ, Rarity: rarity}
}

// DefaultCatalog returns the event's pack tiers and reward pools.
func DefaultCatalog() Catalog {
	return Catalog{
		models.PackTierBronze: {
			Tier:    models.PackTierBronze,
			Cost:    100,
			Weights: map[models.Rarity]int{models.RarityCommon: 100},
			Pools: map[models.Rarity][]models.RewardDefinition{
				models.RarityCommon: {
					reward(models.RarityCommon, models.RewardTypeShot, "Shot offert", "Profite d'un shot gratuit !"),
					reward(models.RarityCommon, models.RewardTypeImmunity, "Passe ton tour sur pénalité", "Évite la prochaine pénalité"),
					reward(models.RarityCommon, models.RewardTypePower, "Choisis la musique 1h", "Contrôle la playlist pendant 1 heure"),
					reward(models.RarityCommon, models.RewardTypeShot, "Shot supplémentaire", "Encore un shot gratuit !"),
					reward(models.RarityCommon, models.RewardTypeImmunity, "Évite une corvée", "Passe ton tour sur la prochaine corvée"),
				},
			},
		},
		models.PackTierSilver: {
			Tier:    models.PackTierSilver,
			Cost:    200,
			Weights: map[models.Rarity]int{models.RarityCommon: 60, models.RarityRare: 40},
			Pools: map[models.Rarity][]models.RewardDefinition{
				models.RarityCommon: {
					reward(models.RarityCommon, models.RewardTypePower, "Désigne un gage", "Choisis un gage pour un autre participant"),
					reward(models.RarityCommon, models.RewardTypePower, "Double points prochain défi", "x2 points sur ton prochain défi complété"),
					reward(models.RarityCommon, models.RewardTypePower, "Paul te sert 2h", "Paul doit te servir tes boissons pendant 2 heures"),
				},
				models.RarityRare: {
					reward(models.RarityRare, models.RewardTypeShot, "Triple shot", "Distribue 3 shots à qui tu veux"),
					reward(models.RarityRare, models.RewardTypeImmunity, "Immunité totale 1h", "Immunisé contre tous les gages et pénalités pendant 1 heure"),
				},
			},
		},
		models.PackTierGold: {
			Tier:    models.PackTierGold,
			Cost:    300,
			Weights: map[models.Rarity]int{models.RarityRare: 50, models.RarityEpic: 50},
			Pools: map[models.Rarity][]models.RewardDefinition{
				models.RarityRare: {
					reward(models.RarityRare, models.RewardTypeImmunity, "Immunité dimanche matin", "Pas de corvée dimanche matin, tu peux rester au lit !"),
					reward(models.RarityRare, models.RewardTypePower, "Choisis activité bonus", "Propose une activité bonus pour le groupe"),
					reward(models.RarityRare, models.RewardTypePower, "Paul fait ton lit", "Paul doit faire ton lit demain matin"),
				},
				models.RarityEpic: {
					reward(models.RarityEpic, models.RewardTypeWildcard, "Bouteille premium", "Reçois une bouteille premium offerte par le groupe"),
					reward(models.RarityEpic, models.RewardTypeWildcard, "Échange de points", "Échange tes points avec un autre participant"),
				},
			},
		},
		models.PackTierUltimate: {
			Tier:    models.PackTierUltimate,
			Cost:    500,
			Weights: map[models.Rarity]int{models.RarityEpic: 30, models.RarityLegendary: 70},
			Pools: map[models.Rarity][]models.RewardDefinition{
				models.RarityEpic: {
					reward(models.RarityEpic, models.RewardTypeWildcard, "Cadeau mystère premium", "Un cadeau de grande valeur t'attend !"),
					reward(models.RarityEpic, models.RewardTypePower, "Paul porte ton maillot 1h", "Paul doit porter ton maillot ou accessoire pendant 1 heure"),
				},
				models.RarityLegendary: {
					reward(models.RarityLegendary, models.RewardTypeWildcard, "Wildcard annulation ultime", "Annule n'importe quel gage pour n'importe qui"),
					reward(models.RarityLegendary, models.RewardTypeWildcard, "Carte cadeau 100€", "Une carte cadeau de 100€ à utiliser comme tu veux"),
					reward(models.RarityLegendary, models.RewardTypeWildcard, "Trophée du champion", "Trophée collector + immunité permanente dimanche"),
				},
			},
		},
	}
}
