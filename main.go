package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"evg-scoreboard/config"
	"evg-scoreboard/handlers"
	"evg-scoreboard/middleware"
	"evg-scoreboard/models"
	"evg-scoreboard/services"
	"evg-scoreboard/utils"
	"evg-scoreboard/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	db, err := utils.OpenDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	if err := models.Migrate(db); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	locks := services.NewKeyedLocker()

	draws, err := services.NewRewardDrawEngine(services.DefaultCatalog(), nil)
	if err != nil {
		log.Fatal("invalid reward catalog:", err)
	}

	hub := services.NewBroadcastHub(cfg.HubBuffer)
	defer hub.Close()
	leaderboardService := services.NewLeaderboardService(db, clock, cfg.Location(), hub)
	hub.SetSource(leaderboardService)

	creditService := services.NewCreditService(db, clock, locks, draws)
	ledgerService := services.NewLedgerService(db, clock, locks, creditService, leaderboardService, services.BalancePolicy{
		FloorEnabled: cfg.BalanceFloorEnabled,
		Floor:        cfg.BalanceFloor,
	})
	challengeService := services.NewChallengeService(db, clock, locks, ledgerService)
	participantService := services.NewParticipantService(db, clock, leaderboardService)

	if cfg.SeedOnStartup {
		if _, err := participantService.SeedRoster(ctx, models.DefaultRoster); err != nil {
			log.Fatal("failed to seed roster:", err)
		}
		if _, err := challengeService.SeedChallenges(ctx, models.DefaultChallenges); err != nil {
			log.Fatal("failed to seed challenges:", err)
		}
	}
	if _, err := creditService.GrantWelcomePacks(ctx); err != nil {
		log.Fatal("failed to grant welcome packs:", err)
	}
	if _, err := creditService.ReconcileCredits(ctx); err != nil {
		log.Fatal("failed to reconcile credits:", err)
	}
	if _, err := leaderboardService.Recompute(ctx); err != nil {
		log.Fatal("failed to compute leaderboard:", err)
	}
	leaderboardService.LogStandings(ctx)

	var archiver *services.StandingsArchiver
	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Client(ctx, cfg.R2.AccountID, cfg.R2.AccessKeyID, cfg.R2.AccessKeySecret)
		if err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		archiver = &services.StandingsArchiver{
			Store:       r2,
			Bucket:      cfg.R2.Bucket,
			Leaderboard: leaderboardService,
			Clock:       clock,
		}
	}

	sched, err := services.NewEventScheduler(services.SchedulerConfig{
		Location:         cfg.Location(),
		Clock:            clock,
		FreePacksEnabled: cfg.FreePacksEnabled,
		MorningCron:      cfg.FreePacksMorningCron,
		EveningCron:      cfg.FreePacksEveningCron,
		AuditInterval:    cfg.LedgerAuditInterval,
		ArchiveCron:      cfg.ArchiveCron,
		RolloverCron:     cfg.DayRolloverCron,
	}, &services.EventJobs{
		Credits:     creditService,
		Ledger:      ledgerService,
		Leaderboard: leaderboardService,
		Archiver:    archiver,
	})
	if err != nil {
		log.Fatal("failed to create scheduler:", err)
	}
	sched.Start()
	defer func() {
		if err := sched.Shutdown(); err != nil {
			log.Printf("⚠️  [SCHEDULER] shutdown: %v", err)
		}
	}()

	if cfg.RosterSyncURL != "" {
		rosterWorker := workers.NewRosterSyncWorker(participantService, cfg.RosterSyncURL, cfg.RosterSyncPath, cfg.RosterSyncToken, cfg.RosterSyncInterval)
		go func() {
			log.Println("Starting Roster Sync Worker...")
			rosterWorker.Start(ctx)
		}()
	}

	var authClient *services.AuthServiceClient
	if cfg.AuthServiceURL != "" {
		authClient = services.NewAuthServiceClient(cfg.AuthServiceURL, cfg.AuthServiceToken)
	}

	app := fiber.New(fiber.Config{
		AppName: "evg-scoreboard",
	})
	app.Use(recover.New())

	// Only Gateway requests allowed, health probes excepted.
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken, "/health"))

	allowedOrigins := strings.Join(cfg.AllowedOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, X-User-ID, X-User-Roles",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "viewers": hub.Count()})
	})

	handlers.SetupParticipantRoutes(app, participantService, ledgerService, creditService)
	handlers.SetupLeaderboardRoutes(app, leaderboardService)
	handlers.SetupStreamRoutes(app, hub, leaderboardService, authClient, cfg.SSEKeepAlive)
	handlers.SetupPackRoutes(app, creditService)
	handlers.SetupChallengeRoutes(app, challengeService, cfg.AdminRole)

	admin := app.Group("/admin", middleware.UserContextMiddleware(), middleware.RequireRole(cfg.AdminRole))
	handlers.SetupLedgerAdminRoutes(admin, ledgerService, creditService)
	handlers.SetupPackAdminRoutes(admin, creditService)
	handlers.SetupChallengeAdminRoutes(admin, challengeService)

	addr := fmt.Sprintf(":%d", cfg.Port)
	go func() {
		if err := app.Listen(addr); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost%s", addr)
	log.Printf("✅ Event timezone %s, %d scheduled jobs", cfg.Location(), len(sched.Jobs()))
	log.Printf("✅ CORS configured for origins: %s", allowedOrigins)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
