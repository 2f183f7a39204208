package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"evg-scoreboard/models"
	"evg-scoreboard/utils"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChallengeInput is used to create or update a challenge.
type ChallengeInput struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Type        models.ChallengeType `json:"type"`
	Points      int64                `json:"points"`
}

func (in ChallengeInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return &ValidationError{Field: "title", Message: "must not be empty"}
	}
	if !in.Type.Valid() {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown challenge type %q", in.Type)}
	}
	if in.Points <= 0 {
		return &InvalidAmountError{Amount: in.Points, Reason: "challenge points must be positive"}
	}
	return nil
}

// ValidationResult reports what a validate call changed.
type ValidationResult struct {
	Challenge    *models.Challenge          `json:"challenge"`
	Credited     []uint                     `json:"credited"`
	Skipped      []uint                     `json:"skipped"`
	Transactions []models.LedgerTransaction `json:"transactions"`
}

// ChallengeService runs the challenge lifecycle. Validation goes through the ledger's
// write path so the completion rows and point transactions commit together.
type ChallengeService struct {
	DB     *gorm.DB
	Clock  clockwork.Clock
	Locks  *KeyedLocker
	Ledger *LedgerService
}

func NewChallengeService(db *gorm.DB, clock clockwork.Clock, locks *KeyedLocker, ledger *LedgerService) *ChallengeService {
	return &ChallengeService{DB: db, Clock: clock, Locks: locks, Ledger: ledger}
}

func loadChallenge(tx *gorm.DB, id string, forUpdate bool) (*models.Challenge, error) {
	q := tx.Preload("Assignments").Preload("Completions")
	if forUpdate && utils.IsPostgres(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var c models.Challenge
	if err := q.Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "challenge", ID: id}
		}
		return nil, fmt.Errorf("load challenge %s: %w", id, err)
	}
	return &c, nil
}

func (s *ChallengeService) Get(ctx context.Context, id string) (*models.Challenge, error) {
	return loadChallenge(s.DB.WithContext(ctx), id, false)
}

// List returns challenges, optionally filtered by status, oldest first.
func (s *ChallengeService) List(ctx context.Context, status models.ChallengeStatus) ([]models.Challenge, error) {
	q := s.DB.WithContext(ctx).Preload("Assignments").Preload("Completions").Order("created_at").Order("id")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.Challenge
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	return out, nil
}

// ListVisible hides secret challenges until they are assigned to the participant or revealed by activation.
func (s *ChallengeService) ListVisible(ctx context.Context, participantID uint) ([]models.Challenge, error) {
	all, err := s.List(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([]models.Challenge, 0, len(all))
	for _, c := range all {
		if c.Type == models.ChallengeTypeSecret && c.Status == models.ChallengeStatusPending && !c.IsAssignedTo(participantID) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// CountByStatus returns how many challenges sit in each status.
func (s *ChallengeService) CountByStatus(ctx context.Context) (map[models.ChallengeStatus]int64, error) {
	type row struct {
		Status models.ChallengeStatus
		Count  int64
	}
	var rows []row
	if err := s.DB.WithContext(ctx).Model(&models.Challenge{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count challenges: %w", err)
	}
	out := make(map[models.ChallengeStatus]int64, len(models.ChallengeStatuses))
	for _, st := range models.ChallengeStatuses {
		out[st] = 0
	}
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

func (s *ChallengeService) Create(ctx context.Context, in ChallengeInput, adminID string) (*models.Challenge, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.Clock.Now().UTC()
	c := &models.Challenge{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Type:        in.Type,
		Points:      in.Points,
		Status:      models.ChallengeStatusPending,
		CreatedBy:   adminID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.DB.WithContext(ctx).Create(c).Error; err != nil {
		return nil, fmt.Errorf("create challenge: %w", err)
	}
	log.Printf("🆕 [CHALLENGE] %q created by %s (%d pts, %s)", c.Title, adminID, c.Points, c.Type)
	return c, nil
}

// Update edits a challenge that has not reached a terminal status.
func (s *ChallengeService) Update(ctx context.Context, id string, in ChallengeInput) (*models.Challenge, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	release := s.Locks.Lock(challengeKey(id))
	defer release()

	var c *models.Challenge
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		c, err = loadChallenge(tx, id, true)
		if err != nil {
			return err
		}
		if c.Status == models.ChallengeStatusCompleted || c.Status == models.ChallengeStatusFailed {
			return &InvalidStateTransitionError{ChallengeID: id, From: c.Status, Action: "update"}
		}
		c.Title = strings.TrimSpace(in.Title)
		c.Description = in.Description
		c.Type = in.Type
		c.Points = in.Points
		c.UpdatedAt = s.Clock.Now().UTC()
		if err := tx.Model(&models.Challenge{}).Where("id = ?", id).Updates(map[string]any{
			"title":       c.Title,
			"description": c.Description,
			"type":        c.Type,
			"points":      c.Points,
			"updated_at":  c.UpdatedAt,
		}).Error; err != nil {
			return fmt.Errorf("update challenge: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a challenge that never left pending.
func (s *ChallengeService) Delete(ctx context.Context, id string) error {
	release := s.Locks.Lock(challengeKey(id))
	defer release()

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := loadChallenge(tx, id, true)
		if err != nil {
			return err
		}
		if c.Status != models.ChallengeStatusPending {
			return &InvalidStateTransitionError{ChallengeID: id, From: c.Status, Action: "delete", Reason: "only pending challenges can be deleted"}
		}
		if err := tx.Where("challenge_id = ?", id).Delete(&models.ChallengeAssignment{}).Error; err != nil {
			return fmt.Errorf("delete assignments: %w", err)
		}
		if err := tx.Delete(&models.Challenge{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("delete challenge: %w", err)
		}
		log.Printf("🗑️ [CHALLENGE] %q deleted", c.Title)
		return nil
	})
}

// Assign replaces the set of participants allowed to attempt the challenge.
// An empty list opens the challenge to everyone.
func (s *ChallengeService) Assign(ctx context.Context, id string, participantIDs []uint) (*models.Challenge, error) {
	release := s.Locks.Lock(challengeKey(id))
	defer release()

	var c *models.Challenge
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		c, err = loadChallenge(tx, id, true)
		if err != nil {
			return err
		}
		if c.Status == models.ChallengeStatusCompleted || c.Status == models.ChallengeStatusFailed {
			return &InvalidStateTransitionError{ChallengeID: id, From: c.Status, Action: "assign"}
		}
		ids := uniqueIDs(participantIDs)
		for _, pid := range ids {
			if err := participantExists(tx, pid); err != nil {
				return err
			}
		}
		if err := tx.Where("challenge_id = ?", id).Delete(&models.ChallengeAssignment{}).Error; err != nil {
			return fmt.Errorf("clear assignments: %w", err)
		}
		now := s.Clock.Now().UTC()
		rows := make([]models.ChallengeAssignment, 0, len(ids))
		for _, pid := range ids {
			rows = append(rows, models.ChallengeAssignment{ChallengeID: id, ParticipantID: pid, CreatedAt: now})
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("assign participants: %w", err)
			}
		}
		c.Assignments = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("📋 [CHALLENGE] %q assigned to %v", c.Title, c.AssignedIDs())
	return c, nil
}

// Attempt moves a pending challenge to active on behalf of a participant.
// Attempting an active challenge again is a no-op.
func (s *ChallengeService) Attempt(ctx context.Context, id string, participantID uint) (*models.Challenge, error) {
	release := s.Locks.Lock(challengeKey(id))
	defer release()

	var c *models.Challenge
	changed := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := participantExists(tx, participantID); err != nil {
			return err
		}
		var err error
		c, err = loadChallenge(tx, id, true)
		if err != nil {
			return err
		}
		if len(c.Assignments) > 0 && !c.IsAssignedTo(participantID) {
			return &InvalidStateTransitionError{ChallengeID: id, From: c.Status, Action: "attempt", Reason: "challenge is not assigned to this participant"}
		}
		switch c.Status {
		case models.ChallengeStatusActive:
			return nil
		case models.ChallengeStatusPending:
		default:
			return &InvalidStateTransitionError{ChallengeID: id, From: c.Status, Action: "attempt"}
		}

		now := s.Clock.Now().UTC()
		res := tx.Model(&models.Challenge{}).
			Where("id = ? AND status = ?", id, models.ChallengeStatusPending).
			Updates(map[string]any{"status": models.ChallengeStatusActive, "activated_at": now, "updated_at": now})
		if res.Error != nil {
			return fmt.Errorf("activate challenge: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return &ConcurrencyConflictError{Resource: "challenge", ID: id}
		}
		c.Status = models.ChallengeStatusActive
		c.ActivatedAt = &now
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		log.Printf("▶️ [CHALLENGE] %q activated by participant %d", c.Title, participantID)
	}
	return c, nil
}

// Validate completes the challenge for the named participants, writing one ledger
// transaction each. Participants already credited for this challenge are skipped.
// A completed challenge can be validated again for new participants; pending and
// failed ones cannot.
func (s *ChallengeService) Validate(ctx context.Context, id string, participantIDs []uint, adminID string) (*ValidationResult, error) {
	ids := uniqueIDs(participantIDs)
	if len(ids) == 0 {
		return nil, &ValidationError{Field: "participant_ids", Message: "at least one participant is required"}
	}
	if strings.TrimSpace(adminID) == "" {
		return nil, &ValidationError{Field: "admin_id", Message: "must not be empty"}
	}

	keys := []string{challengeKey(id)}
	for _, pid := range ids {
		keys = append(keys, participantKey(pid))
	}
	release := s.Locks.LockMany(keys...)

	result := &ValidationResult{}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := loadChallenge(tx, id, true)
		if err != nil {
			return err
		}
		if c.Status != models.ChallengeStatusActive && c.Status != models.ChallengeStatusCompleted {
			return &InvalidStateTransitionError{ChallengeID: id, From: c.Status, Action: "validate"}
		}

		now := s.Clock.Now().UTC()
		challengeID := c.ID
		for _, pid := range ids {
			if c.CompletedBy(pid) {
				result.Skipped = append(result.Skipped, pid)
				continue
			}
			txn, err := s.Ledger.appendInTx(tx, RecordRequest{
				ParticipantID: pid,
				Amount:        c.Points,
				Reason:        "Challenge: " + c.Title,
				ActorID:       adminID,
				ChallengeID:   &challengeID,
			}, now)
			if err != nil {
				return err
			}
			completion := models.ChallengeCompletion{
				ChallengeID:   c.ID,
				ParticipantID: pid,
				TransactionID: txn.ID,
				ValidatedBy:   adminID,
				CreatedAt:     now,
			}
			if err := tx.Create(&completion).Error; err != nil {
				return fmt.Errorf("record completion: %w", err)
			}
			c.Completions = append(c.Completions, completion)
			result.Credited = append(result.Credited, pid)
			result.Transactions = append(result.Transactions, *txn)
		}

		if len(result.Credited) > 0 {
			updates := map[string]any{
				"status":       models.ChallengeStatusCompleted,
				"validated_by": adminID,
				"updated_at":   now,
			}
			if c.CompletedAt == nil {
				updates["completed_at"] = now
				c.CompletedAt = &now
			}
			if err := tx.Model(&models.Challenge{}).Where("id = ?", c.ID).Updates(updates).Error; err != nil {
				return fmt.Errorf("complete challenge: %w", err)
			}
			c.Status = models.ChallengeStatusCompleted
			c.ValidatedBy = &adminID
		}
		result.Challenge = c
		return nil
	})
	release()
	if err != nil {
		return nil, err
	}

	if len(result.Credited) > 0 {
		log.Printf("✅ [CHALLENGE] %q validated by %s: credited %v, skipped %v",
			result.Challenge.Title, adminID, result.Credited, result.Skipped)
		s.Ledger.refreshLeaderboard(ctx)
	}
	return result, nil
}

// Fail closes an active challenge without awarding points.
func (s *ChallengeService) Fail(ctx context.Context, id string, adminID string) (*models.Challenge, error) {
	return s.transition(ctx, id, adminID, "fail", models.ChallengeStatusActive, models.ChallengeStatusFailed)
}

// Reopen returns a failed challenge to active. It is the only way out of failed.
func (s *ChallengeService) Reopen(ctx context.Context, id string, adminID string) (*models.Challenge, error) {
	return s.transition(ctx, id, adminID, "reopen", models.ChallengeStatusFailed, models.ChallengeStatusActive)
}

func (s *ChallengeService) transition(ctx context.Context, id, adminID, action string, from, to models.ChallengeStatus) (*models.Challenge, error) {
	release := s.Locks.Lock(challengeKey(id))
	defer release()

	var c *models.Challenge
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		c, err = loadChallenge(tx, id, true)
		if err != nil {
			return err
		}
		if c.Status != from {
			return &InvalidStateTransitionError{ChallengeID: id, From: c.Status, Action: action}
		}
		now := s.Clock.Now().UTC()
		updates := map[string]any{"status": to, "updated_at": now}
		switch to {
		case models.ChallengeStatusFailed:
			updates["failed_at"] = now
			updates["validated_by"] = adminID
			c.FailedAt = &now
			c.ValidatedBy = &adminID
		case models.ChallengeStatusActive:
			updates["failed_at"] = nil
			c.FailedAt = nil
		}
		res := tx.Model(&models.Challenge{}).Where("id = ? AND status = ?", id, from).Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("%s challenge: %w", action, res.Error)
		}
		if res.RowsAffected == 0 {
			return &ConcurrencyConflictError{Resource: "challenge", ID: id}
		}
		c.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🔁 [CHALLENGE] %q %s by %s (%s -> %s)", c.Title, action, adminID, from, to)
	return c, nil
}

// SeedChallenges creates the default challenges when none exist yet.
func (s *ChallengeService) SeedChallenges(ctx context.Context, seeds []models.ChallengeSeed) (int, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Challenge{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count challenges: %w", err)
	}
	if count > 0 {
		return 0, nil
	}
	base := s.Clock.Now().UTC()
	for i, seed := range seeds {
		now := base.Add(time.Duration(i) * time.Millisecond)
		c := models.Challenge{
			ID:          uuid.NewString(),
			Title:       seed.Title,
			Description: seed.Description,
			Type:        seed.Type,
			Points:      seed.Points,
			Status:      models.ChallengeStatusPending,
			CreatedBy:   models.SystemActor,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.DB.WithContext(ctx).Create(&c).Error; err != nil {
			return i, fmt.Errorf("seed challenge %q: %w", seed.Title, err)
		}
	}
	log.Printf("🌱 [CHALLENGE] seeded %d challenge(s)", len(seeds))
	return len(seeds), nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
