package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// SchedulerConfig controls the recurring jobs. Cron expressions are read in Location.
type SchedulerConfig struct {
	Location         *time.Location
	Clock            clockwork.Clock
	FreePacksEnabled bool
	MorningCron      string
	EveningCron      string
	AuditInterval    time.Duration
	ArchiveCron      string
	RolloverCron     string
}

// EventJobs holds the work the scheduler triggers. Each method is safe to call directly.
type EventJobs struct {
	Credits     *CreditService
	Ledger      *LedgerService
	Leaderboard *LeaderboardService
	Archiver    *StandingsArchiver
	Timeout     time.Duration
}

func (j *EventJobs) context() (context.Context, context.CancelFunc) {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return context.WithTimeout(context.Background(), timeout)
}

func (j *EventJobs) MorningPacks() {
	ctx, cancel := j.context()
	defer cancel()
	if _, err := j.Credits.DistributeFreePacks(ctx, MorningFreePacks, "morning free packs"); err != nil {
		log.Printf("❌ [SCHEDULER] morning packs failed: %v", err)
	}
}

func (j *EventJobs) EveningPacks() {
	ctx, cancel := j.context()
	defer cancel()
	if _, err := j.Credits.DistributeFreePacks(ctx, EveningFreePacks, "evening free packs"); err != nil {
		log.Printf("❌ [SCHEDULER] evening packs failed: %v", err)
	}
}

func (j *EventJobs) AuditLedger() {
	ctx, cancel := j.context()
	defer cancel()
	drifts, err := j.Ledger.VerifyBalances(ctx)
	if err != nil {
		log.Printf("❌ [SCHEDULER] ledger audit failed: %v", err)
		return
	}
	if len(drifts) == 0 {
		log.Printf("✅ [SCHEDULER] ledger audit clean")
	}
}

// RolloverLeaderboard recomputes at the start of the event day so connected viewers
// see points_today reset without waiting for the next write.
func (j *EventJobs) RolloverLeaderboard() {
	ctx, cancel := j.context()
	defer cancel()
	snap, err := j.Leaderboard.Recompute(ctx)
	if err != nil {
		log.Printf("❌ [SCHEDULER] leaderboard rollover failed: %v", err)
		return
	}
	log.Printf("🌅 [SCHEDULER] new event day, leaderboard v%d published", snap.Version)
}

func (j *EventJobs) ArchiveStandings() {
	if j.Archiver == nil {
		return
	}
	ctx, cancel := j.context()
	defer cancel()
	j.Leaderboard.LogStandings(ctx)
	if _, err := j.Archiver.Archive(ctx); err != nil {
		log.Printf("❌ [SCHEDULER] standings archive failed: %v", err)
	}
}

// NewEventScheduler registers the recurring jobs without starting them.
func NewEventScheduler(cfg SchedulerConfig, jobs *EventJobs) (gocron.Scheduler, error) {
	opts := []gocron.SchedulerOption{}
	if cfg.Location != nil {
		opts = append(opts, gocron.WithLocation(cfg.Location))
	}
	if cfg.Clock != nil {
		opts = append(opts, gocron.WithClock(cfg.Clock))
	}
	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	fail := func(err error) (gocron.Scheduler, error) {
		_ = sched.Shutdown()
		return nil, err
	}

	if cfg.FreePacksEnabled {
		if _, err := sched.NewJob(
			gocron.CronJob(cfg.MorningCron, false),
			gocron.NewTask(jobs.MorningPacks),
			gocron.WithName("morning-free-packs"),
		); err != nil {
			return fail(fmt.Errorf("schedule morning packs: %w", err))
		}
		if _, err := sched.NewJob(
			gocron.CronJob(cfg.EveningCron, false),
			gocron.NewTask(jobs.EveningPacks),
			gocron.WithName("evening-free-packs"),
		); err != nil {
			return fail(fmt.Errorf("schedule evening packs: %w", err))
		}
	}

	if cfg.AuditInterval > 0 {
		if _, err := sched.NewJob(
			gocron.DurationJob(cfg.AuditInterval),
			gocron.NewTask(jobs.AuditLedger),
			gocron.WithName("ledger-audit"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return fail(fmt.Errorf("schedule ledger audit: %w", err))
		}
	}

	if jobs.Leaderboard != nil {
		rollover := cfg.RolloverCron
		if rollover == "" {
			rollover = "0 0 * * *"
		}
		if _, err := sched.NewJob(
			gocron.CronJob(rollover, false),
			gocron.NewTask(jobs.RolloverLeaderboard),
			gocron.WithName("leaderboard-rollover"),
		); err != nil {
			return fail(fmt.Errorf("schedule leaderboard rollover: %w", err))
		}
	}

	if jobs.Archiver != nil && cfg.ArchiveCron != "" {
		if _, err := sched.NewJob(
			gocron.CronJob(cfg.ArchiveCron, false),
			gocron.NewTask(jobs.ArchiveStandings),
			gocron.WithName("standings-archive"),
		); err != nil {
			return fail(fmt.Errorf("schedule standings archive: %w", err))
		}
	}

	return sched, nil
}
