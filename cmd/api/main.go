package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/sessions"

	"app-recettes-api/core"
)

func main() {
	cfg := core.Load()
	ctx := context.Background()

	logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	db, err := core.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	// Ensure writable dir for uploaded images
	if cfg.UploadDir == "" {
		log.Fatalf("upload dir path is empty")
	}
	if abs, err := filepath.Abs(cfg.UploadDir); err == nil {
		cfg.UploadDir = abs
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatalf("failed to ensure upload dir %s: %v", cfg.UploadDir, err)
	}

	// Gorilla cookie store carries only the opaque session id.
	store := sessions.NewCookieStore([]byte(cfg.SessionKey))

	userRepo := core.NewPgUserRepository(db)
	authService := core.NewRepositoryAuthService(userRepo)
	sessionStore := core.NewRedisSessionStore(redisClient, time.Duration(cfg.SessionTTLSeconds)*time.Second)

	if err := core.BootstrapAdmin(ctx, userRepo, cfg); err != nil {
		log.Fatalf("bootstrap admin failed: %v", err)
	}
	if err := core.BootstrapSeed(ctx, cfg,
		core.NewPgCategoryRepository(db),
		core.NewPgRecipeRepository(db),
		core.NewPgIngredientRepository(db),
	); err != nil {
		log.Fatalf("seed failed: %v", err)
	}

	router := core.NewRouter(cfg, store, authService, sessionStore, db, redisClient)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("starting api server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
