package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"evg-scoreboard/models"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// BalancePolicy optionally refuses transactions that would take a balance below Floor.
type BalancePolicy struct {
	FloorEnabled bool
	Floor        int64
}

// RecordRequest describes one point movement.
type RecordRequest struct {
	ParticipantID uint
	Amount        int64
	Reason        string
	ActorID       string
	ChallengeID   *string
}

type HistoryPage struct {
	Transactions []models.LedgerTransaction `json:"transactions"`
	Total        int64                      `json:"total"`
	Skip         int                        `json:"skip"`
	Limit        int                        `json:"limit"`
}

// BalanceDrift is a participant whose stored balance disagrees with its replayed log.
type BalanceDrift struct {
	ParticipantID uint  `json:"participant_id"`
	Stored        int64 `json:"stored"`
	Replayed      int64 `json:"replayed"`
}

// LedgerService owns point truth: an append-only transaction log plus the
// materialized balance on each participant, always written together.
type LedgerService struct {
	DB          *gorm.DB
	Clock       clockwork.Clock
	Locks       *KeyedLocker
	Credits     *CreditService
	Leaderboard *LeaderboardService
	Policy      BalancePolicy
}

func NewLedgerService(db *gorm.DB, clock clockwork.Clock, locks *KeyedLocker, credits *CreditService, leaderboard *LeaderboardService, policy BalancePolicy) *LedgerService {
	return &LedgerService{
		DB:          db,
		Clock:       clock,
		Locks:       locks,
		Credits:     credits,
		Leaderboard: leaderboard,
		Policy:      policy,
	}
}

func validateRecord(req RecordRequest) error {
	if req.Amount == 0 {
		return &InvalidAmountError{Amount: 0, Reason: "amount must be nonzero"}
	}
	if strings.TrimSpace(req.Reason) == "" {
		return &ValidationError{Field: "reason", Message: "must not be empty"}
	}
	return nil
}

// RecordTransaction appends a transaction and updates the balance atomically.
// Positive amounts are credited to the credit economy in the same database transaction.
func (s *LedgerService) RecordTransaction(ctx context.Context, req RecordRequest) (*models.LedgerTransaction, error) {
	if err := validateRecord(req); err != nil {
		return nil, err
	}
	if req.ActorID == "" {
		req.ActorID = models.SystemActor
	}

	release := s.Locks.Lock(participantKey(req.ParticipantID))
	var txn *models.LedgerTransaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		txn, err = s.appendInTx(tx, req, s.Clock.Now().UTC())
		return err
	})
	release()
	if err != nil {
		return nil, err
	}

	log.Printf("💰 [LEDGER] participant=%d amount=%+d balance=%d reason=%q actor=%s",
		txn.ParticipantID, txn.Amount, txn.BalanceAfter, txn.Reason, txn.ActorID)

	s.refreshLeaderboard(ctx)
	return txn, nil
}

// appendInTx is the single write path for ledger rows. Callers hold the participant lock.
func (s *LedgerService) appendInTx(tx *gorm.DB, req RecordRequest, now time.Time) (*models.LedgerTransaction, error) {
	if err := validateRecord(req); err != nil {
		return nil, err
	}
	p, err := lockParticipant(tx, req.ParticipantID)
	if err != nil {
		return nil, err
	}

	newBalance := p.TotalPoints + req.Amount
	if s.Policy.FloorEnabled && req.Amount < 0 && newBalance < s.Policy.Floor {
		return nil, &InvalidAmountError{
			Amount: req.Amount,
			Reason: fmt.Sprintf("balance would drop to %d, below floor %d", newBalance, s.Policy.Floor),
		}
	}

	txn := &models.LedgerTransaction{
		ParticipantID: req.ParticipantID,
		Amount:        req.Amount,
		Reason:        strings.TrimSpace(req.Reason),
		ChallengeID:   req.ChallengeID,
		ActorID:       req.ActorID,
		BalanceAfter:  newBalance,
		CreatedAt:     now,
	}
	if err := tx.Create(txn).Error; err != nil {
		return nil, fmt.Errorf("append ledger transaction: %w", err)
	}
	if err := tx.Model(&models.Participant{}).
		Where("id = ?", req.ParticipantID).
		Update("total_points", gorm.Expr("total_points + ?", req.Amount)).Error; err != nil {
		return nil, fmt.Errorf("update balance for participant %d: %w", req.ParticipantID, err)
	}

	if s.Credits != nil {
		if _, err := s.Credits.creditInTx(tx, txn, now); err != nil {
			return nil, err
		}
	}
	return txn, nil
}

func (s *LedgerService) refreshLeaderboard(ctx context.Context) {
	if s.Leaderboard == nil {
		return
	}
	if _, err := s.Leaderboard.Recompute(ctx); err != nil {
		log.Printf("❌ [LEDGER] leaderboard refresh failed after commit: %v", err)
	}
}

// History returns a participant's transactions, newest first.
func (s *LedgerService) History(ctx context.Context, participantID uint, page Page) (*HistoryPage, error) {
	page, err := page.normalize()
	if err != nil {
		return nil, err
	}
	db := s.DB.WithContext(ctx)
	if err := participantExists(db, participantID); err != nil {
		return nil, err
	}

	out := &HistoryPage{Skip: page.Skip, Limit: page.Limit}
	if err := db.Model(&models.LedgerTransaction{}).
		Where("participant_id = ?", participantID).
		Count(&out.Total).Error; err != nil {
		return nil, fmt.Errorf("count history: %w", err)
	}
	if err := db.Where("participant_id = ?", participantID).
		Order("created_at DESC").Order("id DESC").
		Offset(page.Skip).Limit(page.Limit).
		Find(&out.Transactions).Error; err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return out, nil
}

// Recent returns the newest transactions across all participants.
func (s *LedgerService) Recent(ctx context.Context, limit int) ([]models.LedgerTransaction, error) {
	page, err := Page{Limit: limit}.normalize()
	if err != nil {
		return nil, err
	}
	var txns []models.LedgerTransaction
	if err := s.DB.WithContext(ctx).
		Order("created_at DESC").Order("id DESC").
		Limit(page.Limit).
		Find(&txns).Error; err != nil {
		return nil, fmt.Errorf("load recent transactions: %w", err)
	}
	return txns, nil
}

// ReplayBalance sums the log for one participant.
func (s *LedgerService) ReplayBalance(ctx context.Context, participantID uint) (int64, error) {
	db := s.DB.WithContext(ctx)
	if err := participantExists(db, participantID); err != nil {
		return 0, err
	}
	var sum int64
	if err := db.Model(&models.LedgerTransaction{}).
		Where("participant_id = ?", participantID).
		Select("CAST(COALESCE(SUM(amount), 0) AS BIGINT)").
		Scan(&sum).Error; err != nil {
		return 0, fmt.Errorf("replay balance: %w", err)
	}
	return sum, nil
}

// VerifyBalances compares every stored balance with the replayed log in one snapshot.
func (s *LedgerService) VerifyBalances(ctx context.Context) ([]BalanceDrift, error) {
	type sumRow struct {
		ParticipantID uint
		Total         int64
	}
	var participants []models.Participant
	var sums []sumRow

	err := readSnapshot(ctx, s.DB, func(tx *gorm.DB) error {
		if err := tx.Select("id", "total_points").Order("id").Find(&participants).Error; err != nil {
			return fmt.Errorf("load participants: %w", err)
		}
		if err := tx.Model(&models.LedgerTransaction{}).
			Select("participant_id, CAST(COALESCE(SUM(amount), 0) AS BIGINT) AS total").
			Group("participant_id").
			Scan(&sums).Error; err != nil {
			return fmt.Errorf("sum ledger: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	replayed := make(map[uint]int64, len(sums))
	for _, row := range sums {
		replayed[row.ParticipantID] = row.Total
	}

	var drifts []BalanceDrift
	for _, p := range participants {
		if p.TotalPoints != replayed[p.ID] {
			drifts = append(drifts, BalanceDrift{ParticipantID: p.ID, Stored: p.TotalPoints, Replayed: replayed[p.ID]})
		}
	}
	if len(drifts) > 0 {
		log.Printf("❌ [LEDGER] audit found %d balance drift(s): %+v", len(drifts), drifts)
	}
	return drifts, nil
}
