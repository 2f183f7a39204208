package services

import (
	"context"
	"testing"
	"time"

	"evg-scoreboard/models"
)

func TestRankEntriesStrictOrder(t *testing.T) {
	entries := []models.LeaderboardEntry{
		{ParticipantID: 4, TotalPoints: 10},
		{ParticipantID: 2, TotalPoints: 30},
		{ParticipantID: 3, TotalPoints: 10},
		{ParticipantID: 1, TotalPoints: -5},
		{ParticipantID: 5, TotalPoints: 30},
	}
	rankEntries(entries)

	wantIDs := []uint{2, 5, 3, 4, 1}
	for i, e := range entries {
		if e.ParticipantID != wantIDs[i] || e.Rank != i+1 {
			t.Errorf("position %d: got participant %d rank %d, want participant %d rank %d",
				i, e.ParticipantID, e.Rank, wantIDs[i], i+1)
		}
	}
}

func TestRecomputeIsDeterministic(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{})
	ctx := context.Background()
	env.record(t, theo, 20, "a")
	env.record(t, hugo, 20, "b")

	first, err := env.leaderboard.Recompute(ctx)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	second, err := env.leaderboard.Recompute(ctx)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if second.Version <= first.Version {
		t.Errorf("versions must increase, got %d then %d", first.Version, second.Version)
	}
	for i := range first.Entries {
		a, b := first.Entries[i], second.Entries[i]
		if a.ParticipantID != b.ParticipantID || a.Rank != b.Rank {
			t.Errorf("position %d differs: %+v vs %+v", i, a, b)
		}
	}
	if first.Entries[0].ParticipantID != hugo || first.Entries[1].ParticipantID != theo {
		t.Errorf("equal totals must rank the lower id first, got %+v", first.Entries)
	}
}

func TestPointsTodayUsesEventTimezone(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{})
	ctx := context.Background()

	// 23:30 in Paris, still 12 June.
	env.clock.Advance(13*time.Hour + 30*time.Minute)
	env.record(t, hugo, 20, "late night")

	// 00:30 in Paris on 13 June, though still 12 June in UTC.
	env.clock.Advance(time.Hour)
	env.record(t, hugo, 5, "after midnight")
	env.record(t, hugo, -2, "penalty")

	entry, err := env.leaderboard.Rank(ctx, hugo)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if entry.TotalPoints != 23 {
		t.Errorf("expected 23 total, got %d", entry.TotalPoints)
	}
	if entry.PointsToday != 3 {
		t.Errorf("expected 3 points today, got %d", entry.PointsToday)
	}
}

func TestSnapshotRecomputesOnDayRollover(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{})
	ctx := context.Background()
	env.record(t, paul, 10, "morning")

	before, err := env.leaderboard.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if e, _ := before.Find(paul); e.PointsToday != 10 {
		t.Fatalf("expected 10 today, got %d", e.PointsToday)
	}

	env.clock.Advance(24 * time.Hour)
	after, err := env.leaderboard.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if after.Version == before.Version {
		t.Fatal("expected a fresh snapshot after midnight")
	}
	if e, _ := after.Find(paul); e.PointsToday != 0 || e.TotalPoints != 10 {
		t.Errorf("expected 10 total and 0 today, got %+v", e)
	}
}

func TestPreviousRankTracksMovement(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{})
	ctx := context.Background()
	if _, err := env.leaderboard.Recompute(ctx); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	env.record(t, theo, 10, "climb")

	snap, err := env.leaderboard.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	theoEntry, _ := snap.Find(theo)
	paulEntry, _ := snap.Find(paul)
	if theoEntry.Rank != 1 || theoEntry.PreviousRank != 3 {
		t.Errorf("theo: expected rank 1 from 3, got %d from %d", theoEntry.Rank, theoEntry.PreviousRank)
	}
	if paulEntry.Rank != 2 || paulEntry.PreviousRank != 1 {
		t.Errorf("paul: expected rank 2 from 1, got %d from %d", paulEntry.Rank, paulEntry.PreviousRank)
	}
}

func TestTopDailyLeaderAndStats(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{})
	ctx := context.Background()

	env.record(t, paul, 100, "yesterday")
	env.clock.Advance(24 * time.Hour)
	env.record(t, hugo, 15, "today")
	env.record(t, theo, 5, "today")

	top, err := env.leaderboard.Top(ctx, 2)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 || top[0].ParticipantID != paul || top[1].ParticipantID != hugo {
		t.Errorf("unexpected top 2: %+v", top)
	}
	all, err := env.leaderboard.Top(ctx, 10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("top beyond roster size should return everyone, got %d", len(all))
	}
	_, err = env.leaderboard.Top(ctx, 0)
	wantErr[*ValidationError](t, err)

	leader, err := env.leaderboard.DailyLeader(ctx)
	if err != nil {
		t.Fatalf("daily leader: %v", err)
	}
	if leader.ParticipantID != hugo || leader.PointsToday != 15 {
		t.Errorf("expected hugo with 15 today, got %+v", leader)
	}

	stats, err := env.leaderboard.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := models.LeaderboardStats{
		TotalParticipants: 3,
		AveragePoints:     40,
		HighestPoints:     100,
		LowestPoints:      5,
		TotalDistributed:  120,
	}
	if stats != want {
		t.Errorf("stats: got %+v, want %+v", stats, want)
	}
}

func TestRankUnknownParticipant(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{})
	_, err := env.leaderboard.Rank(context.Background(), 404)
	wantErr[*NotFoundError](t, err)
}

func TestStartOfDay(t *testing.T) {
	loc := paris(t)
	lb := NewLeaderboardService(nil, nil, loc, nil)
	got := lb.StartOfDay(time.Date(2026, 6, 12, 22, 30, 0, 0, time.UTC))
	want := time.Date(2026, 6, 13, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
