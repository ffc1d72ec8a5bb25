package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aquadoks/sales-backend/config"
	"github.com/aquadoks/sales-backend/database"
	"github.com/aquadoks/sales-backend/hub"
	"github.com/aquadoks/sales-backend/services"
	"github.com/aquadoks/sales-backend/utils"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to load config: %v", err)
	}
	utils.InitLogger(cfg.LogLevel)

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize DB
	db, err := config.InitDB(cfg.DB)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		utils.ErrorLogger.Fatalf("Failed to migrate: %v", err)
	}
	if err := services.SeedCatalog(db, cfg.Reservation.InitialStock); err != nil {
		utils.ErrorLogger.Fatalf("Failed to seed catalog: %v", err)
	}

	app, err := newApplication(cfg, db, hub.Default())
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to start: %v", err)
	}
	app.Relay.Start()
	app.Monitor.Start()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		utils.InfoLogger.Printf("Listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.ErrorLogger.Fatal(err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	utils.InfoLogger.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		utils.ErrorLogger.Errorf("HTTP shutdown: %v", err)
	}
	app.Monitor.Stop()
	app.Relay.Stop()
	if _, err := app.Relay.Flush(ctx); err != nil {
		utils.ErrorLogger.Errorf("Final outbox flush: %v", err)
	}
	if app.Rabbit != nil {
		app.Rabbit.Close()
	}
}
