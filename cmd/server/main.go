package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ArowuTest/lottery-odds/internal/auth"
	"github.com/ArowuTest/lottery-odds/internal/config"
	"github.com/ArowuTest/lottery-odds/internal/handlers"
	"github.com/ArowuTest/lottery-odds/internal/models"
	"github.com/ArowuTest/lottery-odds/internal/store"
)

func main() {
	// Load config & init
	appCfg := config.Load()
	if appCfg.JWTSecret == "" {
		log.Fatalf("JWT_SECRET_KEY must be set")
	}
	auth.Init(appCfg.JWTSecret, appCfg.JWTTTL)

	var runs store.RunStore
	var users store.UserStore
	if appCfg.DatabaseEnabled() {
		db, err := config.InitDB(appCfg)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		if err := models.Migrate(db); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		gs := store.NewGormStore(db)
		runs, users = gs, gs
		log.Printf("Archiving runs in postgres at %s:%s", appCfg.DBHost, appCfg.DBPort)
	} else {
		ms := store.NewMemoryStore()
		runs, users = ms, ms
		log.Println("DB_HOST not set; keeping runs in memory")
	}

	cached, err := store.NewCachedStore(runs, appCfg.RunCacheSize)
	if err != nil {
		log.Fatalf("run cache: %v", err)
	}
	defer cached.Close()

	if err := auth.EnsureAdmin(context.Background(), users, appCfg.AdminUsername, appCfg.AdminPassword); err != nil {
		log.Fatalf("bootstrap admin: %v", err)
	}

	hub := handlers.NewProgressHub()
	sims := handlers.NewSimulationHandler(cached, hub, appCfg.SimulationDefaults())

	router := handlers.SetupRouter(appCfg.FrontendURL, handlers.Dependencies{
		Users:       users,
		Runs:        cached,
		Hub:         hub,
		Simulations: sims,
	})

	srv := &http.Server{
		Addr:    ":" + appCfg.Port,
		Handler: router,
	}

	log.Printf("Server starting on port %s", appCfg.Port)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	// Running simulations are cancelled and archived with their partial counts.
	sims.Shutdown()

	log.Println("Server exiting")
}
