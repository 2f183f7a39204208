package services

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"
	_ "time/tzdata"

	"evg-scoreboard/models"
	"evg-scoreboard/testutil"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// testRoster seeds ids 1 (Paul C., groom), 2 (Hugo F.) and 3 (Théo C.).
var testRoster = []models.RosterEntry{
	{DisplayName: "Paul C.", IsGroom: true},
	{DisplayName: "Hugo F."},
	{DisplayName: "Théo C."},
}

const (
	paul uint = 1
	hugo uint = 2
	theo uint = 3
)

type testEnv struct {
	db           *gorm.DB
	clock        *clockwork.FakeClock
	loc          *time.Location
	locks        *KeyedLocker
	hub          *BroadcastHub
	draws        *RewardDrawEngine
	leaderboard  *LeaderboardService
	credits      *CreditService
	ledger       *LedgerService
	challenges   *ChallengeService
	participants *ParticipantService
}

func paris(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

// newTestEnv wires every service over a fresh sqlite database seeded with testRoster.
// The clock starts on 2026-06-12 at 10:00 Paris time.
func newTestEnv(t *testing.T, policy BalancePolicy) *testEnv {
	t.Helper()
	loc := paris(t)
	env := &testEnv{
		db:    testutil.NewDB(t),
		clock: clockwork.NewFakeClockAt(time.Date(2026, 6, 12, 10, 0, 0, 0, loc)),
		loc:   loc,
		locks: NewKeyedLocker(),
		hub:   NewBroadcastHub(1),
	}
	draws, err := NewRewardDrawEngine(DefaultCatalog(), rand.New(rand.NewPCG(1, 2)))
	if err != nil {
		t.Fatalf("draw engine: %v", err)
	}
	env.draws = draws
	env.leaderboard = NewLeaderboardService(env.db, env.clock, loc, env.hub)
	env.hub.SetSource(env.leaderboard)
	env.credits = NewCreditService(env.db, env.clock, env.locks, draws)
	env.ledger = NewLedgerService(env.db, env.clock, env.locks, env.credits, env.leaderboard, policy)
	env.challenges = NewChallengeService(env.db, env.clock, env.locks, env.ledger)
	env.participants = NewParticipantService(env.db, env.clock, env.leaderboard)
	t.Cleanup(env.hub.Close)

	if _, err := env.participants.SeedRoster(context.Background(), testRoster); err != nil {
		t.Fatalf("seed roster: %v", err)
	}
	return env
}

func (e *testEnv) record(t *testing.T, participantID uint, amount int64, reason string) *models.LedgerTransaction {
	t.Helper()
	txn, err := e.ledger.RecordTransaction(context.Background(), RecordRequest{
		ParticipantID: participantID,
		Amount:        amount,
		Reason:        reason,
		ActorID:       "admin-1",
	})
	if err != nil {
		t.Fatalf("record %+d for %d: %v", amount, participantID, err)
	}
	return txn
}

func (e *testEnv) participant(t *testing.T, id uint) models.Participant {
	t.Helper()
	var p models.Participant
	if err := e.db.First(&p, id).Error; err != nil {
		t.Fatalf("load participant %d: %v", id, err)
	}
	return p
}

func (e *testEnv) inventory(t *testing.T, id uint, tier models.PackTier) models.PackInventory {
	t.Helper()
	var inv models.PackInventory
	if err := e.db.Where("participant_id = ? AND tier = ?", id, tier).First(&inv).Error; err != nil {
		t.Fatalf("load %s inventory for %d: %v", tier, id, err)
	}
	return inv
}

// wantErr fails unless err matches target's type.
func wantErr[T error](t *testing.T, err error) T {
	t.Helper()
	var target T
	if !errors.As(err, &target) {
		t.Fatalf("expected %T, got %v", target, err)
	}
	return target
}
