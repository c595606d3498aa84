package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tillbook/backend/internal/cache"
	"tillbook/backend/internal/config"
	"tillbook/backend/internal/dispatch"
	"tillbook/backend/internal/httpapi"
	"tillbook/backend/internal/service"
	"tillbook/backend/internal/store"
	"tillbook/backend/internal/store/memory"
	"tillbook/backend/internal/store/sqlstore"
)

const driverMemory = "memory"

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	readPolicy, err := service.ParseReadErrorPolicy(cfg.ReadErrorPolicy)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if cfg.SeedAdminPassword == config.DefaultSeedAdminPassword {
		log.Printf("[config] WARN: SEED_ADMIN_PASSWORD is the default; change the admin password after first login")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	adminHash, err := httpapi.HashPassword(cfg.SeedAdminPassword)
	if err != nil {
		log.Fatalf("hash seed admin password: %v", err)
	}

	repo, err := openRepository(ctx, cfg, adminHash)
	if err != nil {
		log.Fatalf("open %s store: %v", cfg.DBDriver, err)
	}
	closers := []func() error{repo.Close}

	productCache := cache.ProductCache(cache.NoopProductCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisProductCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
			_ = redisCache.Close()
		} else {
			productCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	svc := service.New(repo, productCache, service.Options{
		ProductCacheTTL: cfg.ProductCacheTTL(),
		ReadErrorPolicy: readPolicy,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	api := httpapi.New(dispatch.New(svc, auth), auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("tillbook backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func openRepository(ctx context.Context, cfg config.Config, adminHash string) (store.Repository, error) {
	if cfg.DBDriver == driverMemory {
		log.Println("repository: in-memory (data is lost on exit)")
		return memory.NewSeeded(adminHash), nil
	}
	repo, err := sqlstore.Open(ctx, sqlstore.Options{
		Driver:            cfg.DBDriver,
		DSN:               cfg.DatabaseURL,
		AdminPasswordHash: adminHash,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("repository: %s", cfg.DBDriver)
	return repo, nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	switch cfg.DBDriver {
	case sqlstore.DriverSQLite, sqlstore.DriverPostgres, sqlstore.DriverMySQL, driverMemory:
	default:
		return fmt.Errorf("DB_DRIVER %q is not one of sqlite, postgres, mysql, memory", cfg.DBDriver)
	}
	if cfg.DBDriver != driverMemory && cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set for the %s driver", cfg.DBDriver)
	}
	if len(cfg.SeedAdminPassword) < 6 {
		return fmt.Errorf("SEED_ADMIN_PASSWORD must be at least 6 characters")
	}
	if _, err := service.ParseReadErrorPolicy(cfg.ReadErrorPolicy); err != nil {
		return err
	}
	return nil
}
