package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"evg-scoreboard/models"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// SnapshotPublisher receives every freshly computed snapshot.
type SnapshotPublisher interface {
	Publish(snap *models.LeaderboardSnapshot)
}

// LeaderboardService derives the ranking from participant balances and today's ledger rows.
// It caches the last snapshot; every ledger mutation calls Recompute before it is acknowledged,
// so the cache never trails an acknowledged write.
//
// Ranking is a strict total order: points descending, equal points by lower participant id.
type LeaderboardService struct {
	DB        *gorm.DB
	Clock     clockwork.Clock
	Location  *time.Location
	Publisher SnapshotPublisher

	mu        sync.Mutex
	cached    *models.LeaderboardSnapshot
	cachedDay time.Time
	version   uint64
	prevRanks map[uint]int
}

func NewLeaderboardService(db *gorm.DB, clock clockwork.Clock, loc *time.Location, publisher SnapshotPublisher) *LeaderboardService {
	if loc == nil {
		loc = time.UTC
	}
	return &LeaderboardService{
		DB:        db,
		Clock:     clock,
		Location:  loc,
		Publisher: publisher,
		prevRanks: make(map[uint]int),
	}
}

// StartOfDay is local midnight of t in the event timezone.
func (s *LeaderboardService) StartOfDay(t time.Time) time.Time {
	local := t.In(s.Location)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.Location)
}

// Recompute rebuilds the snapshot from storage, caches it and publishes it.
func (s *LeaderboardService) Recompute(ctx context.Context) (*models.LeaderboardSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
	return s.recomputeLocked(ctx)
}

type pointsRow struct {
	ParticipantID uint
	Total         int64
}

func (s *LeaderboardService) recomputeLocked(ctx context.Context) (*models.LeaderboardSnapshot, error) {
	now := s.Clock.Now()
	day := s.StartOfDay(now)

	var participants []models.Participant
	var today []pointsRow
	err := readSnapshot(ctx, s.DB, func(tx *gorm.DB) error {
		if err := tx.Select("id", "display_name", "is_groom", "total_points").Find(&participants).Error; err != nil {
			return fmt.Errorf("load participants: %w", err)
		}
		if err := tx.Model(&models.LedgerTransaction{}).
			Select("participant_id, CAST(COALESCE(SUM(amount), 0) AS BIGINT) AS total").
			Where("created_at >= ?", day.UTC()).
			Group("participant_id").
			Scan(&today).Error; err != nil {
			return fmt.Errorf("sum today's points: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recompute leaderboard: %w", err)
	}

	todayByID := make(map[uint]int64, len(today))
	for _, row := range today {
		todayByID[row.ParticipantID] = row.Total
	}

	entries := make([]models.LeaderboardEntry, 0, len(participants))
	for _, p := range participants {
		entries = append(entries, models.LeaderboardEntry{
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			IsGroom:       p.IsGroom,
			TotalPoints:   p.TotalPoints,
			PointsToday:   todayByID[p.ID],
		})
	}
	rankEntries(entries)

	ranks := make(map[uint]int, len(entries))
	for i := range entries {
		entries[i].PreviousRank = s.prevRanks[entries[i].ParticipantID]
		ranks[entries[i].ParticipantID] = entries[i].Rank
	}

	s.version++
	snap := &models.LeaderboardSnapshot{
		Version:     s.version,
		GeneratedAt: now.UTC(),
		Entries:     entries,
	}
	s.cached = snap
	s.cachedDay = day
	s.prevRanks = ranks

	if s.Publisher != nil {
		s.Publisher.Publish(snap)
	}
	return snap, nil
}

// rankEntries sorts by points descending then participant id ascending and assigns ranks 1..N.
func rankEntries(entries []models.LeaderboardEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalPoints != entries[j].TotalPoints {
			return entries[i].TotalPoints > entries[j].TotalPoints
		}
		return entries[i].ParticipantID < entries[j].ParticipantID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}

// Snapshot returns the cached ranking, recomputing when it was invalidated or the day rolled over.
func (s *LeaderboardService) Snapshot(ctx context.Context) (*models.LeaderboardSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil && s.StartOfDay(s.Clock.Now()).Equal(s.cachedDay) {
		return s.cached, nil
	}
	return s.recomputeLocked(ctx)
}

// Rank returns one participant's entry.
func (s *LeaderboardService) Rank(ctx context.Context, participantID uint) (models.LeaderboardEntry, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return models.LeaderboardEntry{}, err
	}
	entry, ok := snap.Find(participantID)
	if !ok {
		return models.LeaderboardEntry{}, &NotFoundError{Resource: "participant", ID: participantID}
	}
	return entry, nil
}

// Top returns the first n entries, or all of them when fewer exist.
func (s *LeaderboardService) Top(ctx context.Context, n int) ([]models.LeaderboardEntry, error) {
	if n < 1 {
		return nil, &ValidationError{Field: "n", Message: "must be at least 1"}
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if n > len(snap.Entries) {
		n = len(snap.Entries)
	}
	out := make([]models.LeaderboardEntry, n)
	copy(out, snap.Entries[:n])
	return out, nil
}

// DailyLeader is the participant with the most points today. Equal days go to the better overall rank.
func (s *LeaderboardService) DailyLeader(ctx context.Context) (models.LeaderboardEntry, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return models.LeaderboardEntry{}, err
	}
	if len(snap.Entries) == 0 {
		return models.LeaderboardEntry{}, &NotFoundError{Resource: "daily leader", ID: "today"}
	}
	best := snap.Entries[0]
	for _, e := range snap.Entries[1:] {
		if e.PointsToday > best.PointsToday {
			best = e
		}
	}
	return best, nil
}

func (s *LeaderboardService) Stats(ctx context.Context) (models.LeaderboardStats, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return models.LeaderboardStats{}, err
	}
	var stats models.LeaderboardStats
	stats.TotalParticipants = len(snap.Entries)
	if stats.TotalParticipants == 0 {
		return stats, nil
	}
	stats.HighestPoints = snap.Entries[0].TotalPoints
	stats.LowestPoints = snap.Entries[len(snap.Entries)-1].TotalPoints
	for _, e := range snap.Entries {
		stats.TotalDistributed += e.TotalPoints
	}
	stats.AveragePoints = float64(stats.TotalDistributed) / float64(stats.TotalParticipants)
	return stats, nil
}

// LogStandings prints the current podium; used by the scheduler.
func (s *LeaderboardService) LogStandings(ctx context.Context) {
	top, err := s.Top(ctx, 3)
	if err != nil {
		log.Printf("❌ [LEADERBOARD] standings unavailable: %v", err)
		return
	}
	for _, e := range top {
		log.Printf("🏆 [LEADERBOARD] #%d %s (%d pts, %+d today)", e.Rank, e.DisplayName, e.TotalPoints, e.PointsToday)
	}
}
