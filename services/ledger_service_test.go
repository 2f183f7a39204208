package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"evg-scoreboard/models"
)

// --- RecordTransaction ---

func TestRecordTransactionUpdatesBalanceAndCredits(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{})

	txn := env.record(t, hugo, 50, "Challenge: padel")
	if txn.BalanceAfter != 50 {
		t.Errorf("expected balance_after 50, got %d", txn.BalanceAfter)
	}
	if txn.ActorID != "admin-1" {
		t.Errorf("expected actor admin-1, got %q", txn.ActorID)
	}

	p := env.participant(t, hugo)
	if p.TotalPoints != 50 {
		t.Errorf("expected 50 points, got %d", p.TotalPoints)
	}
	if p.Credits != 50 {
		t.Errorf("expected 50 credits, got %d", p.Credits)
	}

	latest := env.hub.Latest()
	if latest == nil {
		t.Fatal("expected a published snapshot")
	}
	entry, ok := latest.Find(hugo)
	if !ok || entry.TotalPoints != 50 {
		t.Errorf("expected published snapshot to show 50 for hugo, got %+v", entry)
	}
}

func TestRecordTransactionDefaultsActorToSystem(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{})
	txn, err := env.ledger.RecordTransaction(context.Background(), RecordRequest{
		ParticipantID: paul, Amount: 5, Reason: "morning bonus",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if txn.ActorID != models.SystemActor {
		t.Errorf("expected actor %q, got %q", models.SystemActor, txn.ActorID)
	}
}

func TestRecordTransactionErrors(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{})
	ctx := context.Background()

	_, err := env.ledger.RecordTransaction(ctx, RecordRequest{ParticipantID: hugo, Amount: 0, Reason: "nothing"})
	wantErr[*InvalidAmountError](t, err)

	_, err = env.ledger.RecordTransaction(ctx, RecordRequest{ParticipantID: hugo, Amount: 10, Reason: "  "})
	wantErr[*ValidationError](t, err)

	_, err = env.ledger.RecordTransaction(ctx, RecordRequest{ParticipantID: 99, Amount: 10, Reason: "ghost"})
	nf := wantErr[*NotFoundError](t, err)
	if nf.Resource != "participant" {
		t.Errorf("expected participant resource, got %q", nf.Resource)
	}

	var count int64
	env.db.Model(&models.LedgerTransaction{}).Count(&count)
	if count != 0 {
		t.Errorf("failed calls must not append, found %d rows", count)
	}
}

func TestPenaltyMayDriveBalanceNegative(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{})
	env.record(t, theo, 20, "karaoke")
	txn := env.record(t, theo, -50, "penalty")

	if txn.BalanceAfter != -30 {
		t.Errorf("expected balance_after -30, got %d", txn.BalanceAfter)
	}
	p := env.participant(t, theo)
	if p.TotalPoints != -30 {
		t.Errorf("expected -30 points, got %d", p.TotalPoints)
	}
	if p.Credits != 20 {
		t.Errorf("penalties must not claw back credits, got %d", p.Credits)
	}
}

func TestBalanceFloorPolicy(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{FloorEnabled: true, Floor: 0})
	ctx := context.Background()
	env.record(t, paul, 10, "toast")

	_, err := env.ledger.RecordTransaction(ctx, RecordRequest{ParticipantID: paul, Amount: -20, Reason: "penalty"})
	floorErr := wantErr[*InvalidAmountError](t, err)
	if !strings.Contains(floorErr.Error(), "drop to -10") {
		t.Errorf("expected the resulting balance in the error, got %q", floorErr.Error())
	}

	txn := env.record(t, paul, -10, "penalty")
	if txn.BalanceAfter != 0 {
		t.Errorf("expected penalty down to the floor to pass, got %d", txn.BalanceAfter)
	}
}

// --- Sum invariant ---

func TestConcurrentWritersKeepSumInvariant(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{})
	ctx := context.Background()

	amounts := []int64{10, -3, 25, -7, 1, 40, -15, 8}
	var wg sync.WaitGroup
	for _, pid := range []uint{paul, hugo, theo} {
		for _, amount := range amounts {
			wg.Add(1)
			go func(pid uint, amount int64) {
				defer wg.Done()
				if _, err := env.ledger.RecordTransaction(ctx, RecordRequest{
					ParticipantID: pid, Amount: amount, Reason: "stress",
				}); err != nil {
					t.Errorf("record: %v", err)
				}
			}(pid, amount)
		}
	}
	wg.Wait()

	var want int64
	for _, a := range amounts {
		want += a
	}
	for _, pid := range []uint{paul, hugo, theo} {
		replayed, err := env.ledger.ReplayBalance(ctx, pid)
		if err != nil {
			t.Fatalf("replay: %v", err)
		}
		stored := env.participant(t, pid).TotalPoints
		if replayed != stored || stored != want {
			t.Errorf("participant %d: stored %d replayed %d want %d", pid, stored, replayed, want)
		}
	}

	drifts, err := env.ledger.VerifyBalances(ctx)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(drifts) != 0 {
		t.Errorf("expected no drift, got %+v", drifts)
	}
	if env.locks.size() != 0 {
		t.Errorf("expected all participant locks released, %d left", env.locks.size())
	}
}

func TestVerifyBalancesReportsDrift(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{})
	env.record(t, hugo, 30, "padel")
	env.db.Model(&models.Participant{}).Where("id = ?", hugo).Update("total_points", 31)

	drifts, err := env.ledger.VerifyBalances(context.Background())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(drifts) != 1 || drifts[0].ParticipantID != hugo || drifts[0].Stored != 31 || drifts[0].Replayed != 30 {
		t.Errorf("unexpected drift report: %+v", drifts)
	}
}

// --- History ---

func TestHistoryIsNewestFirstAndPaged(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{})
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		env.record(t, hugo, int64(i), "step")
		env.clock.Advance(time.Minute)
	}
	env.record(t, paul, 100, "other participant")

	page, err := env.ledger.History(ctx, hugo, Page{Skip: 1, Limit: 2})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if page.Total != 5 {
		t.Errorf("expected total 5, got %d", page.Total)
	}
	if len(page.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(page.Transactions))
	}
	if page.Transactions[0].Amount != 4 || page.Transactions[1].Amount != 3 {
		t.Errorf("expected amounts 4,3 got %d,%d", page.Transactions[0].Amount, page.Transactions[1].Amount)
	}

	all, err := env.ledger.History(ctx, hugo, Page{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if all.Limit != defaultPageLimit || len(all.Transactions) != 5 {
		t.Errorf("expected default limit and 5 rows, got limit %d rows %d", all.Limit, len(all.Transactions))
	}
}

func TestHistoryErrors(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{})
	ctx := context.Background()

	_, err := env.ledger.History(ctx, 42, Page{})
	wantErr[*NotFoundError](t, err)

	_, err = env.ledger.History(ctx, hugo, Page{Skip: -1})
	wantErr[*ValidationError](t, err)
}

func TestRecentSpansParticipants(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{})
	env.record(t, paul, 1, "a")
	env.clock.Advance(time.Second)
	env.record(t, hugo, 2, "b")
	env.clock.Advance(time.Second)
	env.record(t, theo, 3, "c")

	txns, err := env.ledger.Recent(context.Background(), 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(txns) != 2 || txns[0].ParticipantID != theo || txns[1].ParticipantID != hugo {
		t.Errorf("unexpected recent transactions: %+v", txns)
	}
}
