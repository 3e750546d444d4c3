package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"heartstage/internal/cache"
	"heartstage/internal/config"
	"heartstage/internal/repository"
	"heartstage/internal/service"
	"heartstage/internal/show"
	"heartstage/internal/store"
	"heartstage/internal/transport/rest"
)

func main() {
	log.Println("started")
	ctx := context.Background()

	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// MongoDB connection
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDB.URI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(ctx)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB:", err)
	}
	log.Println("Connected to MongoDB")

	db := mongoClient.Database(cfg.MongoDB.Database)

	// Durable snapshot store and the state engine
	snapshots := store.NewMongoStore(db)
	engine := show.NewEngine(snapshots)
	engine.PollInterval = cfg.Show.PollInterval
	defer engine.Close()

	// Redis is optional: without it streams poll the store directly
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
		})
		defer rdb.Close()

		if _, err := rdb.Ping(ctx).Result(); err != nil {
			log.Printf("Warning: Redis unavailable, version cache disabled: %v", err)
		} else {
			log.Println("Connected to Redis")
			engine.SetVersionCache(cache.NewVersionCache(rdb), cfg.Show.EventID)
		}
	}

	// Hydrate before taking traffic; writes stay blocked until this
	// succeeds or the store is confirmed empty.
	if err := engine.Hydrate(ctx); err != nil {
		// Keep serving reads: a later write will retry hydration
		log.Printf("Warning: %v", err)
	} else {
		log.Printf("Hydrated show state (version %d)", engine.Snapshot().SavedVersion)
	}

	// Initialize repositories and services
	registrations := repository.NewRegistrationRepo(db)
	uploader, err := service.NewGridFSUploader(db)
	if err != nil {
		log.Fatal("Failed to initialize uploads:", err)
	}
	authSvc := service.NewAuthService(cfg.Auth.Username, cfg.Auth.Password, cfg.Auth.JWTSecret)
	rosterSvc := service.NewRosterService(registrations, engine)

	// Create router with container
	container := &rest.Container{
		AuthService:   authSvc,
		RosterService: rosterSvc,
		Uploader:      uploader,
		Registrations: registrations,
		Engine:        engine,
	}

	router := rest.NewRouter(container)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.Server.Port)
		log.Println("Endpoints:")
		log.Println("  POST /v1/auth/login")
		log.Println("  GET  /v1/show")
		log.Println("  GET  /v1/show/stream")
		log.Println("  POST /v1/show/action")
		log.Println("  POST /v1/registrations")
		log.Println("  POST /v1/roster/import")
		log.Println("  POST /v1/uploads")
		log.Println("  WS   /v1/ws/show")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ListenAndServe:", err)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
