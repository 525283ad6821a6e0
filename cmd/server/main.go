package main

import (
	"context"
	"database/sql"
	"deadkm-service/internal/adapters/cache"
	"deadkm-service/internal/adapters/distance"
	"deadkm-service/internal/adapters/progress"
	"deadkm-service/internal/api"
	"deadkm-service/internal/api/handlers"
	"deadkm-service/internal/config"
	"deadkm-service/internal/platform/db"
	"deadkm-service/internal/platform/metrics"
	"deadkm-service/internal/ports"
	"deadkm-service/internal/services"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// main is the application composition root.
// It wires concrete adapters (OSRM, SQL caches, Redis) behind ports and starts the HTTP server.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]handlers.HealthCheck{}

	distanceCache, conn, err := openCache(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	if conn != nil {
		defer conn.Close()
		checks["cache"] = conn.PingContext
	}

	provider, err := newProvider(cfg, distanceCache, checks)
	if err != nil {
		log.Fatal(err)
	}

	store, closeStore, err := newProgressStore(ctx, cfg, checks)
	if err != nil {
		log.Fatal(err)
	}
	defer closeStore()

	tracker := services.NewProgressTracker(store, services.TrackerOptions{
		Retention:  cfg.ProgressRetention,
		StaleAfter: cfg.ProgressStaleAfter,
		AckGrace:   cfg.ProgressAckGrace,
	})
	go tracker.Run(ctx, time.Minute)

	svc := services.NewDeadKMService(provider, tracker, cfg.Constraints, cfg.OptimizeTimeout, cfg.MatrixWorkers)
	router := api.NewRouter(api.Deps{Engine: svc, Constraints: cfg.Constraints, Checks: checks})

	// Write timeout covers a cold-cache matrix build against OSRM.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.OptimizeTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Server listening addr=:%s geo=%s cache=%s", cfg.Port, cfg.GeoProvider, cfg.CacheDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown err=%v", err)
	}
}

func openCache(ctx context.Context, cfg config.Config) (ports.DistanceCache, *sql.DB, error) {
	switch cfg.CacheDriver {
	case "sqlite":
		conn, err := db.OpenSqlite(ctx, cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		if err := cache.InitSchema(ctx, conn); err != nil {
			conn.Close()
			return nil, nil, err
		}
		return cache.NewSqliteDistanceCache(conn), conn, nil
	case "postgres":
		conn, err := db.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := cache.InitSchema(ctx, conn); err != nil {
			conn.Close()
			return nil, nil, err
		}
		return cache.NewSQLDistanceCache(conn), conn, nil
	default:
		return nil, nil, nil
	}
}

func newProvider(cfg config.Config, dc ports.DistanceCache, checks map[string]handlers.HealthCheck) (ports.GeoDistanceProvider, error) {
	var inner ports.GeoDistanceProvider
	switch cfg.GeoProvider {
	case "haversine":
		inner = distance.NewHaversineProvider(cfg.HaversineSpeedKmh)
	default:
		osrm, err := distance.NewOSRMProvider(cfg.OSRMURL, distance.OSRMOptions{
			Timeout:           cfg.GeoTimeout,
			RequestsPerSecond: cfg.OSRMRequestsPerS,
		})
		if err != nil {
			return nil, err
		}
		checks["osrm"] = osrm.Ping
		inner = osrm
	}

	if dc == nil {
		return inner, nil
	}
	cached, err := distance.NewCachedProvider(inner, dc)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

func newProgressStore(ctx context.Context, cfg config.Config, checks map[string]handlers.HealthCheck) (ports.ProgressStore, func(), error) {
	if cfg.RedisURL == "" {
		return progress.NewMemoryStore(), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	store := progress.NewRedisStore(client, "")
	if err := store.Ping(ctx); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	checks["progress"] = store.Ping
	return store, func() { client.Close() }, nil
}
