package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/hongminglow/cuecast-be/internal/accounts"
	"github.com/hongminglow/cuecast-be/internal/auth"
	"github.com/hongminglow/cuecast-be/internal/config"
	"github.com/hongminglow/cuecast-be/internal/http/handlers"
	"github.com/hongminglow/cuecast-be/internal/identity"
	"github.com/hongminglow/cuecast-be/internal/logging"
	"github.com/hongminglow/cuecast-be/internal/observability"
	"github.com/hongminglow/cuecast-be/internal/server"
	"github.com/hongminglow/cuecast-be/internal/sessions"
	"github.com/hongminglow/cuecast-be/internal/storage"
	"github.com/hongminglow/cuecast-be/internal/storage/postgres"
	"github.com/hongminglow/cuecast-be/internal/storage/sqlite"
)

func main() {
	envLoaded := godotenv.Load() == nil

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if !envLoaded {
		log.Info("no .env file found; relying on existing environment")
	}

	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	defer store.Close()

	rdb, err := sessions.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatalf("init redis: %v", err)
	}
	defer rdb.Close()

	metrics := observability.NewMetrics()
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL())
	revocations := sessions.NewRevocationList(rdb, "cuecast")
	provider := identity.NewProvider(store, tokens, revocations, log, identity.WithProfileTimeout(cfg.ProfileReadyTimeout))
	svc := accounts.NewService(provider, log, metrics)

	if cfg.BootstrapAdmin() {
		created, err := svc.EnsureAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword, cfg.BootstrapAdminName)
		if err != nil {
			log.Fatalf("bootstrap admin: %v", err)
		}
		if created {
			log.WithField("email", cfg.BootstrapAdminEmail).Info("seeded bootstrap admin")
		}
	}

	srv := server.New(server.Deps{
		Config:   cfg,
		Log:      log,
		Identity: provider,
		Accounts: svc,
		Metrics:  metrics,
		Health:   map[string]handlers.Pinger{"store": store, "redis": revocations},
	})

	go func() {
		log.WithFields(logrus.Fields{"addr": cfg.HTTPAddress(), "store": cfg.StoreDriver}).Info("cuecast backend listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	metricsSrv := server.NewMetricsServer(cfg.MetricsAddr, metrics)
	if metricsSrv != nil {
		go func() {
			log.WithField("addr", cfg.MetricsAddr).Info("metrics listening")
			if err := metricsSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("metrics server error: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Errorf("graceful shutdown error: %v", err)
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctxShutdown); err != nil {
			log.Errorf("metrics shutdown error: %v", err)
		}
	}
}

func openStore(ctx context.Context, cfg config.Config) (storage.UserStore, error) {
	if cfg.StoreDriver == config.DriverSQLite {
		return sqlite.Open(ctx, cfg.SQLitePath)
	}
	return postgres.NewUserStore(ctx, cfg.DatabaseURL)
}
