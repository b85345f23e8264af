package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"civic-cache/internal/cache"
	"civic-cache/internal/common/logging"
	"civic-cache/internal/config"
	"civic-cache/internal/handlers"
	"civic-cache/internal/redis"
	"civic-cache/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logging.InitGlobalLogger()
	defer logging.MustSync()
	logger := logging.GetGlobalLogger()

	redisDB, _ := strconv.Atoi(cfg.RedisDB)
	redisPoolSize, _ := strconv.Atoi(cfg.RedisPoolSize)

	remote, err := redis.NewClient(&redis.Config{
		Address:   cfg.RedisAddress,
		Password:  cfg.RedisPassword,
		DB:        redisDB,
		PoolSize:  redisPoolSize,
		KeyPrefix: cfg.CacheKeyPrefix,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to initialize Redis client: %v", err)
	}
	defer remote.Close()

	fallback := cache.NewMemoryStore(cfg.CacheDefaultTTL, cfg.CacheCleanupInterval)
	unified := cache.NewUnifiedCache(remote, fallback, cfg.CacheDefaultTTL, logger)
	refresher := cache.NewRefresher(unified, logger)

	if cfg.RefreshSchedule != "" {
		if err := refresher.StartSchedule(cfg.RefreshSchedule); err != nil {
			log.Fatalf("Failed to start refresh schedule: %v", err)
		}
		defer refresher.StopSchedule()
	}

	h := handlers.New(unified, refresher, remote, cfg, logger)

	router := mux.NewRouter()
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/cache/stats", h.GetStats).Methods("GET")
	api.HandleFunc("/cache/invalidate", h.InvalidatePattern).Methods("POST")
	api.HandleFunc("/cache/refresh", h.TriggerRefresh).Methods("POST")
	api.HandleFunc("/cache", h.ClearCache).Methods("DELETE")

	srv := server.New(router, cfg.Port)
	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	logger.Info("civic-cache listening", logging.String("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", err)
	}
}
