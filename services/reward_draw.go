package services

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"evg-scoreboard/models"

	"github.com/gosimple/slug"
)

// RandomSource is the subset of *rand.Rand the draw needs.
type RandomSource interface {
	IntN(n int) int
}

// RewardDrawEngine picks rewards by weighted rarity, then uniformly within the rarity pool.
type RewardDrawEngine struct {
	catalog Catalog

	mu  sync.Mutex
	rng RandomSource
}

// NewRewardDrawEngine validates the catalog and assigns reward codes.
// A nil rng gets a randomly seeded PCG source.
func NewRewardDrawEngine(catalog Catalog, rng RandomSource) (*RewardDrawEngine, error) {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	normalized := make(Catalog, len(catalog))
	for _, tier := range models.PackTiers {
		cfg, ok := catalog[tier]
		if !ok {
			return nil, fmt.Errorf("catalog: tier %s missing", tier)
		}
		if cfg.Cost <= 0 {
			return nil, fmt.Errorf("catalog: tier %s has non-positive cost %d", tier, cfg.Cost)
		}
		if cfg.TotalWeight() <= 0 {
			return nil, fmt.Errorf("catalog: tier %s has no positive rarity weight", tier)
		}
		if len(cfg.Rewards()) == 0 {
			return nil, fmt.Errorf("catalog: tier %s has no rewards", tier)
		}

		pools := make(map[models.Rarity][]models.RewardDefinition, len(cfg.Pools))
		for rarity, pool := range cfg.Pools {
			defs := make([]models.RewardDefinition, len(pool))
			for i, def := range pool {
				if def.Code == "" {
					def.Code = string(tier) + "-" + slug.Make(def.Name)
				}
				def.Rarity = rarity
				defs[i] = def
			}
			pools[rarity] = defs
		}
		cfg.Tier = tier
		cfg.Pools = pools
		normalized[tier] = cfg
	}

	return &RewardDrawEngine{catalog: normalized, rng: rng}, nil
}

func (e *RewardDrawEngine) Tier(tier models.PackTier) (TierConfig, error) {
	cfg, ok := e.catalog[tier]
	if !ok {
		return TierConfig{}, &NotFoundError{Resource: "pack tier", ID: tier}
	}
	return cfg, nil
}

// Tiers returns every tier configuration, cheapest first.
func (e *RewardDrawEngine) Tiers() []TierConfig {
	out := make([]TierConfig, 0, len(models.PackTiers))
	for _, t := range models.PackTiers {
		out = append(out, e.catalog[t])
	}
	return out
}

func (e *RewardDrawEngine) Cost(tier models.PackTier) (int64, error) {
	cfg, err := e.Tier(tier)
	if err != nil {
		return 0, err
	}
	return cfg.Cost, nil
}

func (e *RewardDrawEngine) intN(n int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.IntN(n)
}

// pickRarity walks the cumulative weights in fixed rarity order.
// Rarities with weight <= 0 occupy no interval and can never be returned.
func pickRarity(weights map[models.Rarity]int, roll int) (models.Rarity, bool) {
	cum := 0
	for _, r := range models.Rarities {
		w := weights[r]
		if w <= 0 {
			continue
		}
		cum += w
		if roll < cum {
			return r, true
		}
	}
	return "", false
}

// DrawRarity selects only the rarity class for tier.
func (e *RewardDrawEngine) DrawRarity(tier models.PackTier) (models.Rarity, error) {
	cfg, err := e.Tier(tier)
	if err != nil {
		return "", err
	}
	rarity, ok := pickRarity(cfg.Weights, e.intN(cfg.TotalWeight()))
	if !ok {
		return "", fmt.Errorf("draw %s: roll outside weight table", tier)
	}
	return rarity, nil
}

// Draw selects a concrete reward for tier. When the drawn rarity has an empty pool
// the pick falls back to every reward of the tier.
func (e *RewardDrawEngine) Draw(tier models.PackTier) (models.RewardDefinition, error) {
	rarity, err := e.DrawRarity(tier)
	if err != nil {
		return models.RewardDefinition{}, err
	}
	cfg := e.catalog[tier]
	pool := cfg.Pools[rarity]
	if len(pool) == 0 {
		pool = cfg.Rewards()
	}
	return pool[e.intN(len(pool))], nil
}
