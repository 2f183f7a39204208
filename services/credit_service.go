package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"evg-scoreboard/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Wallet is the spendable side of a participant.
type Wallet struct {
	ParticipantID uint                    `json:"participant_id"`
	TotalPoints   int64                   `json:"total_points"`
	Credits       int64                   `json:"credits"`
	Inventory     map[models.PackTier]int `json:"inventory"`
}

type RewardPage struct {
	Rewards []models.RewardRecord `json:"rewards"`
	Total   int64                 `json:"total"`
	Skip    int                   `json:"skip"`
	Limit   int                   `json:"limit"`
}

// PurchaseResult is returned by PurchasePack.
type PurchaseResult struct {
	Purchase  models.PackPurchase  `json:"purchase"`
	Credits   int64                `json:"credits"`
	Inventory models.PackInventory `json:"inventory"`
}

var (
	// MorningFreePacks and EveningFreePacks are the scheduled daily gifts.
	MorningFreePacks = map[models.PackTier]int{models.PackTierBronze: 2}
	EveningFreePacks = map[models.PackTier]int{models.PackTierBronze: 1, models.PackTierSilver: 1}
)

// CreditService converts positive ledger transactions into credits exactly once and
// runs the pack economy on top of them: purchases debit credits, opens consume inventory.
type CreditService struct {
	DB    *gorm.DB
	Clock clockwork.Clock
	Locks *KeyedLocker
	Draws *RewardDrawEngine
}

func NewCreditService(db *gorm.DB, clock clockwork.Clock, locks *KeyedLocker, draws *RewardDrawEngine) *CreditService {
	return &CreditService{DB: db, Clock: clock, Locks: locks, Draws: draws}
}

// creditInTx converts txn into credits unless a receipt for it already exists.
func (s *CreditService) creditInTx(tx *gorm.DB, txn *models.LedgerTransaction, now time.Time) (bool, error) {
	if txn.Amount <= 0 {
		return false, nil
	}
	receipt := models.CreditReceipt{
		TransactionID: txn.ID,
		ParticipantID: txn.ParticipantID,
		Credits:       txn.Amount,
		CreatedAt:     now,
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transaction_id"}},
		DoNothing: true,
	}).Create(&receipt)
	if res.Error != nil {
		return false, fmt.Errorf("write credit receipt for transaction %d: %w", txn.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if err := tx.Model(&models.Participant{}).
		Where("id = ?", txn.ParticipantID).
		Update("credits", gorm.Expr("credits + ?", txn.Amount)).Error; err != nil {
		return false, fmt.Errorf("credit participant %d: %w", txn.ParticipantID, err)
	}
	return true, nil
}

// ProcessTransaction delivers a ledger transaction to the credit economy again.
// It reports whether credits were granted by this call.
func (s *CreditService) ProcessTransaction(ctx context.Context, transactionID uint) (bool, error) {
	var txn models.LedgerTransaction
	if err := s.DB.WithContext(ctx).First(&txn, transactionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, &NotFoundError{Resource: "transaction", ID: transactionID}
		}
		return false, fmt.Errorf("load transaction %d: %w", transactionID, err)
	}

	release := s.Locks.Lock(participantKey(txn.ParticipantID))
	defer release()

	var credited bool
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockParticipant(tx, txn.ParticipantID); err != nil {
			return err
		}
		var err error
		credited, err = s.creditInTx(tx, &txn, s.Clock.Now().UTC())
		return err
	})
	if err != nil {
		return false, err
	}
	if credited {
		log.Printf("🪙 [CREDITS] transaction %d credited %d to participant %d", txn.ID, txn.Amount, txn.ParticipantID)
	}
	return credited, nil
}

// ReconcileCredits processes every positive transaction that has no receipt yet.
func (s *CreditService) ReconcileCredits(ctx context.Context) (int, error) {
	var ids []uint
	if err := s.DB.WithContext(ctx).
		Model(&models.LedgerTransaction{}).
		Joins("LEFT JOIN credit_receipts ON credit_receipts.transaction_id = ledger_transactions.id").
		Where("ledger_transactions.amount > 0 AND credit_receipts.transaction_id IS NULL").
		Order("ledger_transactions.id").
		Pluck("ledger_transactions.id", &ids).Error; err != nil {
		return 0, fmt.Errorf("find unprocessed transactions: %w", err)
	}

	processed := 0
	for _, id := range ids {
		ok, err := s.ProcessTransaction(ctx, id)
		if err != nil {
			return processed, err
		}
		if ok {
			processed++
		}
	}
	if processed > 0 {
		log.Printf("🪙 [CREDITS] reconciled %d transaction(s)", processed)
	}
	return processed, nil
}

// Wallet returns points, credits and inventory for one participant.
func (s *CreditService) Wallet(ctx context.Context, participantID uint) (*Wallet, error) {
	var p models.Participant
	err := readSnapshot(ctx, s.DB, func(tx *gorm.DB) error {
		return tx.Preload("Inventory").First(&p, participantID).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "participant", ID: participantID}
		}
		return nil, fmt.Errorf("load wallet %d: %w", participantID, err)
	}

	w := &Wallet{
		ParticipantID: p.ID,
		TotalPoints:   p.TotalPoints,
		Credits:       p.Credits,
		Inventory:     make(map[models.PackTier]int, len(models.PackTiers)),
	}
	for _, t := range models.PackTiers {
		w.Inventory[t] = 0
	}
	for _, inv := range p.Inventory {
		w.Inventory[inv.Tier] = inv.Quantity
	}
	return w, nil
}

// ensureInventory creates the inventory row for (participant, tier) when missing.
func ensureInventory(tx *gorm.DB, participantID uint, tier models.PackTier, now time.Time) error {
	row := models.PackInventory{ParticipantID: participantID, Tier: tier, UpdatedAt: now}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "participant_id"}, {Name: "tier"}},
		DoNothing: true,
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("ensure %s inventory for participant %d: %w", tier, participantID, err)
	}
	return nil
}

func loadInventory(tx *gorm.DB, participantID uint, tier models.PackTier) (*models.PackInventory, error) {
	var inv models.PackInventory
	err := tx.Where("participant_id = ? AND tier = ?", participantID, tier).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s inventory for participant %d: %w", tier, participantID, err)
	}
	return &inv, nil
}

// addInventory increments a tier's quantity; purchased marks the units as paid for.
func addInventory(tx *gorm.DB, participantID uint, tier models.PackTier, count int, purchased bool, now time.Time) (*models.PackInventory, error) {
	if err := ensureInventory(tx, participantID, tier, now); err != nil {
		return nil, err
	}
	updates := map[string]any{
		"quantity":   gorm.Expr("quantity + ?", count),
		"updated_at": now,
	}
	if purchased {
		updates["purchased"] = gorm.Expr("purchased + ?", count)
	}
	if err := tx.Model(&models.PackInventory{}).
		Where("participant_id = ? AND tier = ?", participantID, tier).
		Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("add %s inventory for participant %d: %w", tier, participantID, err)
	}
	return loadInventory(tx, participantID, tier)
}

// PurchasePack debits the tier cost and adds one unit to the participant's inventory.
func (s *CreditService) PurchasePack(ctx context.Context, participantID uint, tier models.PackTier) (*PurchaseResult, error) {
	cost, err := s.Draws.Cost(tier)
	if err != nil {
		return nil, err
	}

	release := s.Locks.Lock(participantKey(participantID))
	defer release()

	now := s.Clock.Now().UTC()
	var result PurchaseResult
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lockParticipant(tx, participantID)
		if err != nil {
			return err
		}
		if p.Credits < cost {
			return &InsufficientCreditsError{ParticipantID: participantID, Balance: p.Credits, Required: cost}
		}

		res := tx.Model(&models.Participant{}).
			Where("id = ? AND credits >= ?", participantID, cost).
			Update("credits", gorm.Expr("credits - ?", cost))
		if res.Error != nil {
			return fmt.Errorf("debit credits for participant %d: %w", participantID, res.Error)
		}
		if res.RowsAffected == 0 {
			return &ConcurrencyConflictError{Resource: "participant credits", ID: participantID}
		}

		inv, err := addInventory(tx, participantID, tier, 1, true, now)
		if err != nil {
			return err
		}

		purchase := models.PackPurchase{
			ID:            uuid.NewString(),
			ParticipantID: participantID,
			Tier:          tier,
			Cost:          cost,
			CreatedAt:     now,
		}
		if err := tx.Create(&purchase).Error; err != nil {
			return fmt.Errorf("record purchase: %w", err)
		}

		result = PurchaseResult{Purchase: purchase, Credits: p.Credits - cost, Inventory: *inv}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("🛒 [PACKS] participant %d bought %s pack for %d credits (left: %d)", participantID, tier, cost, result.Credits)
	return &result, nil
}

// OpenPack consumes one unit of tier and records the drawn reward in the same transaction.
// Purchased units are consumed before free ones.
func (s *CreditService) OpenPack(ctx context.Context, participantID uint, tier models.PackTier) (*models.RewardRecord, error) {
	cfg, err := s.Draws.Tier(tier)
	if err != nil {
		return nil, err
	}

	release := s.Locks.Lock(participantKey(participantID))
	defer release()

	now := s.Clock.Now().UTC()
	var record models.RewardRecord
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockParticipant(tx, participantID); err != nil {
			return err
		}
		inv, err := loadInventory(tx, participantID, tier)
		if err != nil {
			return err
		}
		if inv == nil || inv.Quantity < 1 {
			return &NoInventoryError{ParticipantID: participantID, Tier: tier}
		}

		def, err := s.Draws.Draw(tier)
		if err != nil {
			return err
		}

		purchased := inv.Purchased
		spent := int64(0)
		if purchased > 0 {
			purchased--
			spent = cfg.Cost
		}
		res := tx.Model(&models.PackInventory{}).
			Where("participant_id = ? AND tier = ? AND quantity = ?", participantID, tier, inv.Quantity).
			Updates(map[string]any{
				"quantity":   inv.Quantity - 1,
				"purchased":  purchased,
				"updated_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("consume %s inventory for participant %d: %w", tier, participantID, res.Error)
		}
		if res.RowsAffected == 0 {
			return &ConcurrencyConflictError{Resource: "pack inventory", ID: participantID}
		}

		record = models.RewardRecord{
			ID:                uuid.NewString(),
			ParticipantID:     participantID,
			Tier:              tier,
			RewardCode:        def.Code,
			RewardName:        def.Name,
			RewardDescription: def.Description,
			RewardType:        def.Type,
			Rarity:            def.Rarity,
			CreditsSpent:      spent,
			CreatedAt:         now,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("record reward: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("🎁 [PACKS] participant %d opened %s pack: %s (%s)", participantID, tier, record.RewardName, record.Rarity)
	return &record, nil
}

// GrantPacks adds free units of tier to one participant.
func (s *CreditService) GrantPacks(ctx context.Context, participantID uint, tier models.PackTier, count int, reason string) (*models.PackInventory, error) {
	if _, err := s.Draws.Tier(tier); err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, &ValidationError{Field: "count", Message: "must be at least 1"}
	}

	release := s.Locks.Lock(participantKey(participantID))
	defer release()

	var inv *models.PackInventory
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockParticipant(tx, participantID); err != nil {
			return err
		}
		var err error
		inv, err = addInventory(tx, participantID, tier, count, false, s.Clock.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🎁 [PACKS] granted %d %s pack(s) to participant %d (%s)", count, tier, participantID, reason)
	return inv, nil
}

// DistributeFreePacks grants the same packs to every participant and returns how many were served.
func (s *CreditService) DistributeFreePacks(ctx context.Context, grants map[models.PackTier]int, reason string) (int, error) {
	var ids []uint
	if err := s.DB.WithContext(ctx).Model(&models.Participant{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("list participants: %w", err)
	}

	served := 0
	for _, id := range ids {
		for _, tier := range models.PackTiers {
			count := grants[tier]
			if count <= 0 {
				continue
			}
			if _, err := s.GrantPacks(ctx, id, tier, count, reason); err != nil {
				return served, err
			}
		}
		served++
	}
	log.Printf("📦 [PACKS] %s distribution done for %d participant(s)", reason, served)
	return served, nil
}

// GrantWelcomePacks gives one silver pack to each participant that never received it.
func (s *CreditService) GrantWelcomePacks(ctx context.Context) (int, error) {
	var ids []uint
	if err := s.DB.WithContext(ctx).Model(&models.Participant{}).
		Where("welcome_pack_granted = ?", false).
		Order("id").Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("list participants without welcome pack: %w", err)
	}

	granted := 0
	for _, id := range ids {
		flagged := false
		release := s.Locks.Lock(participantKey(id))
		err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.Participant{}).
				Where("id = ? AND welcome_pack_granted = ?", id, false).
				Update("welcome_pack_granted", true)
			if res.Error != nil {
				return fmt.Errorf("flag welcome pack for participant %d: %w", id, res.Error)
			}
			if res.RowsAffected == 0 {
				return nil
			}
			flagged = true
			_, err := addInventory(tx, id, models.PackTierSilver, 1, false, s.Clock.Now().UTC())
			return err
		})
		release()
		if err != nil {
			return granted, err
		}
		if flagged {
			granted++
		}
	}
	if granted > 0 {
		log.Printf("🎉 [PACKS] welcome pack granted to %d participant(s)", granted)
	}
	return granted, nil
}

// RewardHistory lists opened packs, newest first.
func (s *CreditService) RewardHistory(ctx context.Context, participantID uint, page Page) (*RewardPage, error) {
	page, err := page.normalize()
	if err != nil {
		return nil, err
	}
	db := s.DB.WithContext(ctx)
	if err := participantExists(db, participantID); err != nil {
		return nil, err
	}

	out := &RewardPage{Skip: page.Skip, Limit: page.Limit}
	if err := db.Model(&models.RewardRecord{}).Where("participant_id = ?", participantID).Count(&out.Total).Error; err != nil {
		return nil, fmt.Errorf("count rewards: %w", err)
	}
	if err := db.Where("participant_id = ?", participantID).
		Order("created_at DESC").Order("id DESC").
		Offset(page.Skip).Limit(page.Limit).
		Find(&out.Rewards).Error; err != nil {
		return nil, fmt.Errorf("load rewards: %w", err)
	}
	return out, nil
}

// PurchaseHistory lists credit spends, newest first.
func (s *CreditService) PurchaseHistory(ctx context.Context, participantID uint, limit int) ([]models.PackPurchase, error) {
	page, err := Page{Limit: limit}.normalize()
	if err != nil {
		return nil, err
	}
	db := s.DB.WithContext(ctx)
	if err := participantExists(db, participantID); err != nil {
		return nil, err
	}
	var purchases []models.PackPurchase
	if err := db.Where("participant_id = ?", participantID).
		Order("created_at DESC").
		Limit(page.Limit).
		Find(&purchases).Error; err != nil {
		return nil, fmt.Errorf("load purchases: %w", err)
	}
	return purchases, nil
}
