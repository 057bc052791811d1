package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"tabkeeper-be/internal/bootstrap"
	"tabkeeper-be/internal/config"
	"tabkeeper-be/internal/server"
	"tabkeeper-be/internal/tracer"
	"tabkeeper-be/pkg/database"

	"gorm.io/gorm"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Tracing
	shutdownTracer, err := tracer.InitTracer(ctx, tracer.Options{
		Enabled:     cfg.App.TracingEnabled,
		Endpoint:    cfg.App.OtelEndpoint,
		Environment: cfg.App.Environment,
		SampleRatio: cfg.App.TracingSampleRatio,
	})
	if err != nil {
		log.Printf("[WARN] Tracing disabled: %v", err)
	}

	// 3. Initialize Database
	var gormDB *gorm.DB
	if cfg.Database.Connection != "" {
		var err error
		gormDB, err = database.NewGormDBFromDSN(cfg.Database.Connection, cfg.Database.LogLevel)
		if err != nil {
			log.Fatalf("Unable to connect to GORM DB: %v", err)
		}
	} else if cfg.IsProduction() {
		log.Fatal("DB_CONNECTION_STRING is required in production")
	}

	// 4. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(ctx, gormDB, cfg)
	if err != nil {
		log.Fatalf("Failed to build container: %v", err)
	}

	// 5. Start Background Services
	if err := container.Dispatcher.Run(ctx); err != nil {
		log.Fatalf("Failed to start dispatcher: %v", err)
	}
	container.Scheduler.Start()

	// 6. Ops Server
	srv := server.New(cfg, container)
	go func() {
		if err := srv.Run(); err != nil {
			log.Printf("Ops server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop producing scheduled work first, then drain the workers.
	if err := container.Scheduler.Stop(shutdownCtx); err != nil {
		log.Printf("Scheduler shutdown: %v", err)
	}
	if err := container.Dispatcher.Close(); err != nil {
		log.Printf("Dispatcher shutdown: %v", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Ops server shutdown: %v", err)
	}
	if err := container.Close(); err != nil {
		log.Printf("Container shutdown: %v", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Printf("Tracer shutdown: %v", err)
	}

	log.Println("✅ Worker stopped")
}
