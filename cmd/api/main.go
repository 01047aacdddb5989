package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"guildry.org/internal/config"
	"guildry.org/internal/event"
	"guildry.org/internal/httpapi"
	"guildry.org/internal/obs"
	"guildry.org/internal/registry"
	"guildry.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Postgres when a DSN is set, in-memory otherwise.
	var store registry.Store
	probe := httpapi.ReadyProbe{}
	if cfg.PGDSN != "" {
		pgStore, err := pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
		probe.DB = pgStore.DB()
	} else {
		store = registry.NewMemory()
		log.Println("no GUILDRY_PG_DSN set, using in-memory store")
	}

	stream := event.New()
	reg := registry.NewService(store, registry.WithEvents(stream))

	ctx, cancelBoot := context.WithTimeout(context.Background(), 10*time.Second)
	if cfg.Moderator != "" {
		if err := reg.EnsureModerator(ctx, cfg.Moderator); err != nil {
			cancelBoot()
			log.Fatalf("bootstrap moderator: %v", err)
		}
	}
	cancelBoot()

	api := httpapi.New(reg, stream, probe, version)
	handler := httpapi.RateLimit(
		httpapi.MaxBodyBytes(api.Handler(), 1<<20),
		cfg.RateBurst, cfg.RatePerSec,
	)

	// No WriteTimeout: /v1/events holds its connection open.
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting guildry-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	var grpcSrv *httpapi.GRPCServer
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = httpapi.NewGRPCServer(probe)
		log.Printf("gRPC health on %s", cfg.GRPCAddr)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if grpcSrv != nil {
		grpcSrv.Stop()
	}
	log.Println("Stopped")
}
