package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"laroza/backend/internal/cache"
	"laroza/backend/internal/config"
	"laroza/backend/internal/httpapi"
	"laroza/backend/internal/inventory"
	"laroza/backend/internal/logger"
	"laroza/backend/internal/service"
	"laroza/backend/internal/store"
	"laroza/backend/internal/store/memory"
	pgstore "laroza/backend/internal/store/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logg := logger.New(logger.Options{
		ServiceName: "laroza-backend",
		Level:       logger.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
	})
	ctx := context.Background()

	if err := validateSecurityConfig(cfg); err != nil {
		logg.Error(ctx, "invalid security configuration", err)
		os.Exit(1)
	}
	loc, err := cfg.Location()
	if err != nil {
		logg.Error(ctx, "invalid timezone", err)
		os.Exit(1)
	}

	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(startCtx, cfg.DatabaseURL)
		if err != nil {
			logg.Error(ctx, "postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", err)
			os.Exit(1)
		}
		if cfg.AutoMigrate {
			if err := pg.Migrate(startCtx); err != nil {
				logg.Error(ctx, "database migration failed", err)
				os.Exit(1)
			}
		}
		repo = pg
		closers = append(closers, pg.Close)
		logg.Info(logg.WithField(ctx, "repository", "postgres"), "repository ready")
	} else {
		repo = memory.NewSeeded()
		logg.Info(logg.WithField(ctx, "repository", "memory"), "repository ready")
	}

	productCache := cache.ProductCache(cache.NoopProductCache{})
	var locker inventory.Locker = inventory.NewLocalLocker(cfg.LockWait)
	if cfg.RedisAddr != "" {
		rdb := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		redisCache := cache.NewRedisProductCache(rdb)
		if err := redisCache.Ping(startCtx); err != nil {
			logg.Warn(ctx, "redis unavailable, using noop cache and process-local locks", err)
			_ = rdb.Close()
		} else {
			productCache = redisCache
			locker = inventory.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait, logg.Zerolog())
			closers = append(closers, rdb.Close)
			logg.Info(logg.WithField(ctx, "redis", cfg.RedisAddr), "redis cache and locks ready")
		}
	}

	pinHash, err := service.HashManagerPIN(cfg.ManagerPIN)
	if err != nil {
		logg.Error(ctx, "hash manager pin", err)
		os.Exit(1)
	}

	ledger := inventory.NewLedger(repo, locker)
	svc := service.New(repo, ledger, productCache, logg, service.Options{
		StrictExchange: cfg.StrictExchangeStock,
		ManagerPINHash: pinHash,
		Location:       loc,
		CacheTTL:       cfg.ProductCacheTTL,
	})
	sessions := httpapi.NewSessionManager(cfg.SessionSecret, cfg.SessionTTL, cfg.Employees)
	api := httpapi.New(svc, sessions, logg, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"addr":            cfg.Address(),
			"strict_exchange": cfg.StrictExchangeStock,
			"timezone":        loc.String(),
		}), "laroza backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "server error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Warn(ctx, "shutdown error", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logg.Warn(ctx, "close error", err)
		}
	}

	logg.Info(ctx, "server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be set and at least 32 characters")
	}
	if len(cfg.Employees) == 0 {
		return fmt.Errorf("EMPLOYEES must list at least one employee")
	}
	if _, err := cfg.Location(); err != nil {
		return fmt.Errorf("TIMEZONE %q is not a known location: %w", cfg.Timezone, err)
	}
	if cfg.ManagerPIN == "" {
		return nil
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be at least 6 digits")
	}
	for _, r := range cfg.ManagerPIN {
		if r < '0' || r > '9' {
			return fmt.Errorf("MANAGER_PIN must contain digits only")
		}
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit,
// sequential, or from a known-weak list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "111111": true,
		"121212": true, "112233": true, "123123": true, "696969": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
