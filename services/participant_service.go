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

	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ParticipantService manages the roster. Participants are never deleted.
type ParticipantService struct {
	DB          *gorm.DB
	Clock       clockwork.Clock
	Leaderboard *LeaderboardService
}

func NewParticipantService(db *gorm.DB, clock clockwork.Clock, leaderboard *LeaderboardService) *ParticipantService {
	return &ParticipantService{DB: db, Clock: clock, Leaderboard: leaderboard}
}

// ExternalIDFor derives a stable external id from a display name ("Théo C." -> "theo-c").
func ExternalIDFor(displayName string) string {
	return slug.MakeLang(displayName, "fr")
}

func validateRoster(roster []models.RosterEntry) error {
	if len(roster) == 0 {
		return &ValidationError{Field: "roster", Message: "must not be empty"}
	}
	grooms := 0
	seen := make(map[string]bool, len(roster))
	for _, e := range roster {
		if strings.TrimSpace(e.DisplayName) == "" {
			return &ValidationError{Field: "display_name", Message: "must not be empty"}
		}
		id := e.ExternalID
		if id == "" {
			id = ExternalIDFor(e.DisplayName)
		}
		if seen[id] {
			return &ValidationError{Field: "external_id", Message: fmt.Sprintf("duplicate %q", id)}
		}
		seen[id] = true
		if e.IsGroom {
			grooms++
		}
	}
	if grooms != 1 {
		return &ValidationError{Field: "is_groom", Message: fmt.Sprintf("exactly one groom required, got %d", grooms)}
	}
	return nil
}

// SeedRoster creates the roster once. It does nothing when participants already exist.
func (s *ParticipantService) SeedRoster(ctx context.Context, roster []models.RosterEntry) (int, error) {
	if err := validateRoster(roster); err != nil {
		return 0, err
	}

	created := 0
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Participant{}).Count(&count).Error; err != nil {
			return fmt.Errorf("count participants: %w", err)
		}
		if count > 0 {
			return nil
		}
		now := s.Clock.Now().UTC()
		for _, e := range roster {
			if _, err := createParticipant(tx, e, now); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if created > 0 {
		log.Printf("🌱 [ROSTER] seeded %d participant(s)", created)
		s.refresh(ctx)
	}
	return created, nil
}

func createParticipant(tx *gorm.DB, e models.RosterEntry, now time.Time) (*models.Participant, error) {
	externalID := e.ExternalID
	if externalID == "" {
		externalID = ExternalIDFor(e.DisplayName)
	}
	p := &models.Participant{
		ExternalID:  externalID,
		DisplayName: strings.TrimSpace(e.DisplayName),
		IsGroom:     e.IsGroom,
		AvatarURL:   e.AvatarURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.Create(p).Error; err != nil {
		return nil, fmt.Errorf("create participant %q: %w", e.DisplayName, err)
	}
	for _, tier := range models.PackTiers {
		if err := ensureInventory(tx, p.ID, tier, now); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// UpsertRoster applies roster changes from the identity service. Unknown external ids are
// created, known ones get their display name, avatar and groom flag updated. When an entry
// is flagged groom the flag is cleared everywhere else in the same transaction.
func (s *ParticipantService) UpsertRoster(ctx context.Context, entries []models.RosterEntry) (created, updated int, err error) {
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.Clock.Now().UTC()
		for _, e := range entries {
			if strings.TrimSpace(e.DisplayName) == "" {
				return &ValidationError{Field: "display_name", Message: "must not be empty"}
			}
			if e.ExternalID == "" {
				e.ExternalID = ExternalIDFor(e.DisplayName)
			}

			q := tx
			if utils.IsPostgres(tx) {
				q = q.Clauses(clause.Locking{Strength: "UPDATE"})
			}
			var existing models.Participant
			err := q.Where("external_id = ?", e.ExternalID).First(&existing).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("lookup participant %q: %w", e.ExternalID, err)
			}

			if e.IsGroom {
				if err := tx.Model(&models.Participant{}).
					Where("is_groom = ? AND external_id <> ?", true, e.ExternalID).
					Update("is_groom", false).Error; err != nil {
					return fmt.Errorf("clear groom flag: %w", err)
				}
			}

			if errors.Is(err, gorm.ErrRecordNotFound) {
				if _, err := createParticipant(tx, e, now); err != nil {
					return err
				}
				created++
				continue
			}

			if err := tx.Model(&models.Participant{}).Where("id = ?", existing.ID).Updates(map[string]any{
				"display_name": strings.TrimSpace(e.DisplayName),
				"avatar_url":   e.AvatarURL,
				"is_groom":     e.IsGroom,
				"updated_at":   now,
			}).Error; err != nil {
				return fmt.Errorf("update participant %q: %w", e.ExternalID, err)
			}
			updated++
		}

		var grooms int64
		if err := tx.Model(&models.Participant{}).Where("is_groom = ?", true).Count(&grooms).Error; err != nil {
			return fmt.Errorf("count grooms: %w", err)
		}
		if grooms != 1 {
			return &ValidationError{Field: "is_groom", Message: fmt.Sprintf("roster must keep exactly one groom, got %d", grooms)}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	if created+updated > 0 {
		s.refresh(ctx)
	}
	return created, updated, nil
}

func (s *ParticipantService) refresh(ctx context.Context) {
	if s.Leaderboard == nil {
		return
	}
	if _, err := s.Leaderboard.Recompute(ctx); err != nil {
		log.Printf("❌ [ROSTER] leaderboard refresh failed: %v", err)
	}
}

func (s *ParticipantService) Get(ctx context.Context, id uint) (*models.Participant, error) {
	var p models.Participant
	if err := s.DB.WithContext(ctx).Preload("Inventory").First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "participant", ID: id}
		}
		return nil, fmt.Errorf("load participant %d: %w", id, err)
	}
	return &p, nil
}

func (s *ParticipantService) GetByExternalID(ctx context.Context, externalID string) (*models.Participant, error) {
	var p models.Participant
	if err := s.DB.WithContext(ctx).Where("external_id = ?", externalID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "participant", ID: externalID}
		}
		return nil, fmt.Errorf("load participant %q: %w", externalID, err)
	}
	return &p, nil
}

// Groom returns the participant carrying the groom flag.
func (s *ParticipantService) Groom(ctx context.Context) (*models.Participant, error) {
	var p models.Participant
	if err := s.DB.WithContext(ctx).Where("is_groom = ?", true).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "groom", ID: "-"}
		}
		return nil, fmt.Errorf("load groom: %w", err)
	}
	return &p, nil
}

// List returns the roster sorted by display name using French collation,
// optionally filtered by a case-insensitive substring.
func (s *ParticipantService) List(ctx context.Context, query string) ([]models.Participant, error) {
	db := s.DB.WithContext(ctx).Model(&models.Participant{})
	if q := strings.TrimSpace(query); q != "" {
		db = db.Where("LOWER(display_name) LIKE ?", "%"+strings.ToLower(q)+"%")
	}
	var participants []models.Participant
	if err := db.Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	col := collate.New(language.French, collate.IgnoreCase)
	sort.SliceStable(participants, func(i, j int) bool {
		return col.CompareString(participants[i].DisplayName, participants[j].DisplayName) < 0
	})
	return participants, nil
}
