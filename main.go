package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"habit-wars/config"
	"habit-wars/handlers"
	"habit-wars/middleware"
	"habit-wars/models"
	"habit-wars/services"
	"habit-wars/utils"
	"habit-wars/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	job := flag.String("job", "", "run one settlement job and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	utils.InitLogger(cfg.LogFile)
	defer func() { _ = utils.Logger.Sync() }()

	eco, err := config.LoadEconomy(cfg.EconomyFile)
	if err != nil {
		utils.Logger.Fatal("failed to load economy", zap.Error(err))
	}
	loc, _ := cfg.Location()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		utils.Logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		utils.Logger.Fatal("failed to migrate database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger := services.NewLedgerService(db, eco.ParticipationPercent)
	scoreboard := services.NewChallengeScoreboard(db)
	wars := services.NewWarService(db, ledger, services.NewFundingPolicy(eco), scoreboard, eco.WarExpiry)
	if cfg.TauntServiceURL != "" {
		wars.Taunts = services.NewTauntServiceClient(cfg.TauntServiceURL, cfg.TauntServiceToken)
	}
	sabotage := services.NewSabotageService(db)
	streaks := services.NewStreakService(db, loc, eco.MilestoneMultiplier)
	habits := services.NewHabitService(db, streaks, eco.CompletionPoints)
	challenges := services.NewChallengeService(db)
	miniWars := services.NewMiniWarService(db, ledger, eco.MiniWarDuration, eco.MiniWarMaxParticipants, eco.CompletionPoints)
	settlement := services.NewSettlementService(db, ledger, streaks, wars)

	if cfg.R2Enabled() {
		archiver, err := utils.NewR2Archiver(ctx, cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2AccessKeySecret, cfg.R2Bucket)
		if err != nil {
			utils.Logger.Fatal("failed to initialize R2 client", zap.Error(err))
		}
		settlement.Archiver = archiver
	}

	if *job != "" {
		if err := settlement.RunJob(ctx, *job); err != nil {
			utils.Logger.Fatal("job failed", zap.String("job", *job), zap.Error(err))
		}
		return
	}

	var notifier services.Notifier = services.LogNotifier{}
	if cfg.RedisAddr != "" {
		redisNotifier, err := services.NewRedisNotifier(ctx, cfg.RedisAddr)
		if err != nil {
			utils.Logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisNotifier.Close()
		notifier = redisNotifier
	}
	workers.NewNotificationRelay(db, notifier, cfg.OutboxPollInterval).Start(ctx)

	if cfg.SyncServiceURL != "" {
		syncWorker := workers.NewUserSyncWorker(db, cfg.SyncServiceURL, cfg.SyncServiceToken, cfg.UserSyncInterval, eco.StartingBalance)
		syncWorker.Start(ctx)
	} else {
		utils.Logger.Warn("SYNC_SERVICE_URL not set, user sync disabled")
	}

	scheduler, err := services.NewScheduler(settlement, loc)
	if err != nil {
		utils.Logger.Fatal("failed to create scheduler", zap.Error(err))
	}
	scheduler.Start(ctx)

	app := fiber.New()
	app.Use(recover.New())
	app.Use(middleware.RequestLogger())

	// Only Gateway requests allowed, except probes and scrapes
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, "/healthz", "/metrics"))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.Origins(), ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupOpsRoutes(app, db)

	secured := app.Group("/", middleware.UserContextMiddleware())
	handlers.SetupWarRoutes(secured, wars, sabotage)
	handlers.SetupMiniWarRoutes(secured, miniWars)
	handlers.SetupHabitRoutes(secured, habits, challenges)
	handlers.SetupRewardRoutes(secured, ledger)
	handlers.SetupAdminRoutes(secured.Group("/admin", middleware.RequireRole(middleware.RoleAdmin)), ledger, settlement)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			utils.Logger.Error("server error", zap.Error(err))
		}
	}()

	utils.Logger.Info("server started",
		zap.String("port", cfg.Port),
		zap.Strings("origins", cfg.Origins()),
		zap.String("timezone", loc.String()),
		zap.String("funding_policy", eco.FundingPolicy),
	)

	<-ctx.Done()
	utils.Logger.Info("shutting down")

	if err := scheduler.Shutdown(); err != nil {
		utils.Logger.Warn("scheduler shutdown", zap.Error(err))
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		utils.Logger.Warn("server shutdown", zap.Error(err))
	}
}
