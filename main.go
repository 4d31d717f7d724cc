package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"os/signal"
	"syscall"

	"options-core/internal/api"
	"options-core/internal/approval"
	"options-core/internal/authz"
	"options-core/internal/events"
	"options-core/internal/ledger"
	"options-core/internal/monitor"
	"options-core/internal/oracle"
	"options-core/internal/settings"
	"options-core/internal/settlement"
	"options-core/pkg/config"
	"options-core/pkg/db"
	"options-core/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// seedAdmin bootstraps the superadmin account from the environment so a fresh
// deployment has someone able to review withdrawals. No-op when unset or when
// the email is already registered.
func seedAdmin(ctx context.Context, database *db.Database, cfg *config.Config) {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return
	}
	existing, err := database.GetUserByEmail(ctx, cfg.AdminEmail)
	if err != nil {
		zap.L().Fatal("admin lookup failed", zap.Error(err))
	}
	if existing != nil {
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		zap.L().Fatal("admin password hash failed", zap.Error(err))
	}
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		zap.L().Fatal("admin wallet generation failed", zap.Error(err))
	}
	u := db.User{
		ID:            uuid.NewString(),
		Email:         cfg.AdminEmail,
		PasswordHash:  string(hash),
		Role:          authz.RoleSuperAdmin,
		WalletAddress: "0x" + hex.EncodeToString(buf),
	}
	if err := database.CreateUser(ctx, u); err != nil {
		zap.L().Fatal("admin seed failed", zap.Error(err))
	}
	zap.L().Info("superadmin seeded", zap.String("email", cfg.AdminEmail))
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger.Init(cfg.Env)
	defer logger.Sync()

	zap.L().Info("starting options core",
		zap.String("port", cfg.Port),
		zap.String("db", cfg.DBPath),
		zap.Bool("mock_oracle", cfg.UseMockOracle))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		zap.L().Fatal("database init failed", zap.Error(err))
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		zap.L().Fatal("database migrations failed", zap.Error(err))
	}

	if cfg.TierSeedPath != "" {
		if tiers, err := config.LoadTierSeed(cfg.TierSeedPath); err != nil {
			zap.L().Warn("tier seed not loaded", zap.Error(err))
		} else {
			for _, t := range tiers {
				if err := database.UpsertTier(ctx, t); err != nil {
					zap.L().Fatal("tier seed failed", zap.Error(err))
				}
			}
			zap.L().Info("tier seed applied", zap.Int("tiers", len(tiers)))
		}
	}

	seedAdmin(ctx, database, cfg)

	// Core services
	bus := events.NewBus()
	lgr := ledger.New(database)
	settingsStore := settings.NewStore(database, cfg.SettingsCacheTTL)
	metrics := monitor.NewSystemMetrics()

	var priceOracle oracle.PriceOracle
	if cfg.UseMockOracle {
		mock := oracle.NewMockOracle()
		mock.Step = 5
		mock.SetPrice("BTCUSDT", 50000)
		mock.SetPrice("ETHUSDT", 3000)
		priceOracle = mock
		zap.L().Info("using mock price oracle")
	} else {
		priceOracle = oracle.NewRESTOracle(cfg.OracleBaseURL, cfg.OracleCacheTTL)
		zap.L().Info("using REST price oracle", zap.String("base_url", cfg.OracleBaseURL))
	}

	engine := settlement.NewEngine(database, lgr, priceOracle, settingsStore, bus)
	engine.SetMetrics(metrics)

	approvals := approval.NewService(database, lgr, bus)
	approvals.SetMetrics(metrics)

	sweeper := settlement.NewSweeper(engine, cfg.SweepInterval)
	if err := sweeper.Start(ctx); err != nil {
		zap.L().Fatal("sweeper start failed", zap.Error(err))
	}
	defer sweeper.Stop()

	server := api.NewServer(bus, database, lgr, engine, approvals, settingsStore, metrics, cfg.JWTSecret)
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			zap.L().Fatal("api server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	zap.L().Info("shutting down")
}
