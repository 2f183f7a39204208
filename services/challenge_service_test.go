package services

import (
	"context"
	"testing"

	"evg-scoreboard/models"
)

func createChallenge(t *testing.T, env *testEnv, typ models.ChallengeType, points int64) *models.Challenge {
	t.Helper()
	c, err := env.challenges.Create(context.Background(), ChallengeInput{
		Title: "Win the padel tournament", Type: typ, Points: points,
	}, "admin-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return c
}

func TestChallengeLifecycle(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{})
	ctx := context.Background()
	c := createChallenge(t, env, models.ChallengeTypeTeam, 30)
	if c.Status != models.ChallengeStatusPending {
		t.Fatalf("expected pending, got %s", c.Status)
	}

	_, err := env.challenges.Validate(ctx, c.ID, []uint{paul}, "admin-1")
	bad := wantErr[*InvalidStateTransitionError](t, err)
	if bad.From != models.ChallengeStatusPending {
		t.Errorf("expected transition error from pending, got %s", bad.From)
	}

	active, err := env.challenges.Attempt(ctx, c.ID, hugo)
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if active.Status != models.ChallengeStatusActive || active.ActivatedAt == nil {
		t.Fatalf("expected active with activated_at, got %+v", active)
	}
	if _, err := env.challenges.Attempt(ctx, c.ID, theo); err != nil {
		t.Errorf("attempting an active challenge should be a no-op, got %v", err)
	}

	res, err := env.challenges.Validate(ctx, c.ID, []uint{paul, hugo, paul}, "admin-1")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(res.Credited) != 2 || len(res.Transactions) != 2 || len(res.Skipped) != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Challenge.Status != models.ChallengeStatusCompleted || res.Challenge.CompletedAt == nil {
		t.Errorf("expected completed, got %+v", res.Challenge)
	}
	for _, txn := range res.Transactions {
		if txn.ChallengeID == nil || *txn.ChallengeID != c.ID || txn.Amount != 30 {
			t.Errorf("transaction not linked to challenge: %+v", txn)
		}
	}

	// Completed challenges accept new participants; repeats are skipped.
	res, err = env.challenges.Validate(ctx, c.ID, []uint{hugo, theo}, "admin-2")
	if err != nil {
		t.Fatalf("revalidate: %v", err)
	}
	if len(res.Credited) != 1 || res.Credited[0] != theo {
		t.Errorf("expected only theo credited, got %v", res.Credited)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != hugo {
		t.Errorf("expected hugo skipped, got %v", res.Skipped)
	}

	for _, pid := range []uint{paul, hugo, theo} {
		if p := env.participant(t, pid); p.TotalPoints != 30 || p.Credits != 30 {
			t.Errorf("participant %d: expected 30/30, got %d/%d", pid, p.TotalPoints, p.Credits)
		}
	}

	got, err := env.challenges.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.CompletedIDs()) != 3 {
		t.Errorf("expected 3 completions, got %v", got.CompletedIDs())
	}
}

func TestValidateOnlyRepeatsIsNoop(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{})
	ctx := context.Background()
	c := createChallenge(t, env, models.ChallengeTypeIndividual, 10)
	if _, err := env.challenges.Attempt(ctx, c.ID, paul); err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if _, err := env.challenges.Validate(ctx, c.ID, []uint{paul}, "admin-1"); err != nil {
		t.Fatalf("validate: %v", err)
	}
	version := env.hub.Latest().Version

	res, err := env.challenges.Validate(ctx, c.ID, []uint{paul}, "admin-1")
	if err != nil {
		t.Fatalf("revalidate: %v", err)
	}
	if len(res.Credited) != 0 || len(res.Skipped) != 1 {
		t.Errorf("expected a pure skip, got %+v", res)
	}
	if env.participant(t, paul).TotalPoints != 10 {
		t.Error("repeat validation must not credit again")
	}
	if env.hub.Latest().Version != version {
		t.Error("a no-op validation should not publish")
	}
}

func TestValidateFailuresLeaveNoTrace(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{})
	ctx := context.Background()
	c := createChallenge(t, env, models.ChallengeTypeIndividual, 10)
	if _, err := env.challenges.Attempt(ctx, c.ID, paul); err != nil {
		t.Fatalf("attempt: %v", err)
	}

	_, err := env.challenges.Validate(ctx, c.ID, []uint{paul, 99}, "admin-1")
	wantErr[*NotFoundError](t, err)
	if env.participant(t, paul).TotalPoints != 0 {
		t.Error("a failed validation must roll back every credit")
	}

	_, err = env.challenges.Validate(ctx, c.ID, nil, "admin-1")
	wantErr[*ValidationError](t, err)
	_, err = env.challenges.Validate(ctx, "missing", []uint{paul}, "admin-1")
	wantErr[*NotFoundError](t, err)
}

func TestFailAndReopen(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{})
	ctx := context.Background()
	c := createChallenge(t, env, models.ChallengeTypeIndividual, 25)

	_, err := env.challenges.Fail(ctx, c.ID, "admin-1")
	wantErr[*InvalidStateTransitionError](t, err)

	if _, err := env.challenges.Attempt(ctx, c.ID, hugo); err != nil {
		t.Fatalf("attempt: %v", err)
	}
	failed, err := env.challenges.Fail(ctx, c.ID, "admin-1")
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if failed.Status != models.ChallengeStatusFailed || failed.FailedAt == nil {
		t.Errorf("expected failed, got %+v", failed)
	}

	_, err = env.challenges.Validate(ctx, c.ID, []uint{hugo}, "admin-1")
	wantErr[*InvalidStateTransitionError](t, err)
	_, err = env.challenges.Attempt(ctx, c.ID, hugo)
	wantErr[*InvalidStateTransitionError](t, err)

	reopened, err := env.challenges.Reopen(ctx, c.ID, "admin-1")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Status != models.ChallengeStatusActive || reopened.FailedAt != nil {
		t.Errorf("expected active again, got %+v", reopened)
	}

	var txns int64
	env.db.Model(&models.LedgerTransaction{}).Count(&txns)
	if txns != 0 {
		t.Errorf("fail and reopen must not touch the ledger, found %d rows", txns)
	}
}

func TestAttemptRespectsAssignments(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{})
	ctx := context.Background()
	c := createChallenge(t, env, models.ChallengeTypeIndividual, 10)

	if _, err := env.challenges.Assign(ctx, c.ID, []uint{theo, theo}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	_, err := env.challenges.Attempt(ctx, c.ID, paul)
	bad := wantErr[*InvalidStateTransitionError](t, err)
	if bad.Reason == "" {
		t.Error("expected a reason on the assignment refusal")
	}
	if _, err := env.challenges.Attempt(ctx, c.ID, theo); err != nil {
		t.Errorf("assigned participant should be able to attempt: %v", err)
	}

	_, err = env.challenges.Assign(ctx, c.ID, []uint{404})
	wantErr[*NotFoundError](t, err)
	_, err = env.challenges.Attempt(ctx, c.ID, 404)
	wantErr[*NotFoundError](t, err)
}

func TestListVisibleHidesUnassignedSecrets(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{})
	ctx := context.Background()
	open := createChallenge(t, env, models.ChallengeTypeIndividual, 10)
	secret := createChallenge(t, env, models.ChallengeTypeSecret, 50)
	if _, err := env.challenges.Assign(ctx, secret.ID, []uint{hugo}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	visible := func(pid uint) map[string]bool {
		list, err := env.challenges.ListVisible(ctx, pid)
		if err != nil {
			t.Fatalf("list visible: %v", err)
		}
		ids := make(map[string]bool)
		for _, c := range list {
			ids[c.ID] = true
		}
		return ids
	}

	if v := visible(paul); !v[open.ID] || v[secret.ID] {
		t.Errorf("paul should see only the open challenge, got %v", v)
	}
	if v := visible(hugo); !v[secret.ID] {
		t.Errorf("hugo should see the secret assigned to him, got %v", v)
	}

	if _, err := env.challenges.Attempt(ctx, secret.ID, hugo); err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if v := visible(paul); !v[secret.ID] {
		t.Error("an active secret challenge is revealed to everyone")
	}
}

func TestCreateUpdateDelete(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{})
	ctx := context.Background()

	_, err := env.challenges.Create(ctx, ChallengeInput{Title: "x", Type: models.ChallengeTypeTeam, Points: 0}, "admin-1")
	wantErr[*InvalidAmountError](t, err)
	_, err = env.challenges.Create(ctx, ChallengeInput{Title: "x", Type: "duel", Points: 5}, "admin-1")
	wantErr[*ValidationError](t, err)
	_, err = env.challenges.Create(ctx, ChallengeInput{Title: " ", Type: models.ChallengeTypeTeam, Points: 5}, "admin-1")
	wantErr[*ValidationError](t, err)

	c := createChallenge(t, env, models.ChallengeTypeIndividual, 10)
	updated, err := env.challenges.Update(ctx, c.ID, ChallengeInput{Title: "Renamed", Type: models.ChallengeTypeTeam, Points: 15})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Renamed" || updated.Points != 15 || updated.Type != models.ChallengeTypeTeam {
		t.Errorf("unexpected update: %+v", updated)
	}

	if _, err := env.challenges.Attempt(ctx, c.ID, paul); err != nil {
		t.Fatalf("attempt: %v", err)
	}
	err = env.challenges.Delete(ctx, c.ID)
	wantErr[*InvalidStateTransitionError](t, err)

	pending := createChallenge(t, env, models.ChallengeTypeIndividual, 10)
	if err := env.challenges.Delete(ctx, pending.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = env.challenges.Get(ctx, pending.ID)
	wantErr[*NotFoundError](t, err)
}

func TestCountByStatusAndSeed(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{})
	ctx := context.Background()

	n, err := env.challenges.SeedChallenges(ctx, models.DefaultChallenges)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if n != len(models.DefaultChallenges) {
		t.Errorf("expected %d seeded, got %d", len(models.DefaultChallenges), n)
	}
	if n, _ := env.challenges.SeedChallenges(ctx, models.DefaultChallenges); n != 0 {
		t.Errorf("second seed should do nothing, got %d", n)
	}

	list, err := env.challenges.List(ctx, models.ChallengeStatusPending)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list[0].Title != models.DefaultChallenges[0].Title {
		t.Errorf("expected seed order preserved, first is %q", list[0].Title)
	}
	if _, err := env.challenges.Attempt(ctx, list[0].ID, paul); err != nil {
		t.Fatalf("attempt: %v", err)
	}

	counts, err := env.challenges.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[models.ChallengeStatusPending] != int64(len(models.DefaultChallenges)-1) ||
		counts[models.ChallengeStatusActive] != 1 ||
		counts[models.ChallengeStatusCompleted] != 0 {
		t.Errorf("unexpected counts: %v", counts)
	}
}
