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

	"tillguard/backend/internal/cache"
	"tillguard/backend/internal/config"
	"tillguard/backend/internal/coupon"
	"tillguard/backend/internal/domain"
	"tillguard/backend/internal/httpapi"
	"tillguard/backend/internal/service"
	"tillguard/backend/internal/session"
	"tillguard/backend/internal/stock"
	"tillguard/backend/internal/store"
	"tillguard/backend/internal/store/memory"
	pgstore "tillguard/backend/internal/store/postgres"
	"tillguard/backend/internal/terminal"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)
	usingMemory := false

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		usingMemory = true
		log.Println("repository: in-memory")
	}

	sessionCache := cache.SessionCache(cache.NoopSessionCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSessionCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop session cache", err)
		} else {
			sessionCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("session cache: redis")
		}
	} else {
		log.Println("session cache: noop")
	}

	sessions := session.NewManager(repo, sessionCache, cfg.PINSecret, time.Duration(cfg.SessionTTLHours)*time.Hour)
	registry := terminal.NewRegistry(repo)
	verifier := terminal.NewVerifier(registry, time.Duration(cfg.ReplayWindowSeconds)*time.Second)
	ledger := stock.NewLedger(repo)
	coupons := coupon.NewEngine(repo)
	svc := service.New(repo, ledger, coupons)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, registry, verifier, sessions, ledger, coupons, cfg.AllowedOrigin)

	if usingMemory {
		seedDemoEmployees(ctx, sessions)
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("POS trust backend listening on %s", cfg.Address())
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

// seedDemoEmployees provisions dev-mode employees through the session
// manager so their PIN hashes are derived from the running secret.
func seedDemoEmployees(ctx context.Context, sessions *session.Manager) {
	demo := []struct {
		number string
		name   string
		pin    string
		role   string
	}{
		{"1001", "Demo Leader", "482915", "leader"},
		{"1002", "Demo Staff", "739154", "staff"},
	}
	for _, e := range demo {
		req := domain.EmployeeCreateRequest{
			EmployeeNumber: e.number,
			DisplayName:    e.name,
			PIN:            e.pin,
			Role:           e.role,
		}
		if _, err := sessions.RegisterEmployee(ctx, req); err != nil {
			log.Printf("seed employee %s skipped: %v", e.number, err)
		}
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.PINSecret) < 32 {
		return fmt.Errorf("POS_PIN_SECRET must be set and at least 32 characters")
	}
	if cfg.PINSecret == cfg.AuthSecret {
		return fmt.Errorf("POS_PIN_SECRET must differ from AUTH_SECRET")
	}
	return nil
}
