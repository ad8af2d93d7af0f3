package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	gintrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gin-gonic/gin"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/JLAD75/FileGuard/cmd/middleware"
	"github.com/JLAD75/FileGuard/internal/api"
	"github.com/JLAD75/FileGuard/internal/api/handlers"
	"github.com/JLAD75/FileGuard/internal/backend"
	"github.com/JLAD75/FileGuard/internal/configuration"
	"github.com/JLAD75/FileGuard/internal/queue"
	"github.com/JLAD75/FileGuard/internal/store"
	"github.com/JLAD75/FileGuard/internal/upload"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := configuration.Load()

	tracer.Start(tracer.WithService("fileguard"))
	defer tracer.Stop()

	st, err := store.NewPostgresStore(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	be, err := backend.Select(cfg.Backend)
	if err != nil {
		log.Fatalf("Failed to initialize storage backend: %v", err)
	}

	jobs, err := queue.Connect(cfg.NATSURL)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer jobs.Close()

	if err := middleware.InitAuth(cfg.KeycloakURL); err != nil {
		log.Fatalf("Failed to initialize auth: %v", err)
	}

	coordinator := upload.NewCoordinator(st, be, jobs)

	r := gin.Default()
	r.Use(gintrace.Middleware("fileguard"))
	api.RegisterRoutes(r, handlers.NewFileHandler(coordinator, st), middleware.RequireAuth())

	log.Printf("Server starting on :%s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
