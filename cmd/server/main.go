package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/authgate/backend/internal/config"
	"github.com/authgate/backend/internal/database"
	"github.com/authgate/backend/internal/handlers"
	"github.com/authgate/backend/internal/middleware"
	"github.com/authgate/backend/internal/services"
	"github.com/authgate/backend/internal/storage"
	"github.com/authgate/backend/pkg/logger"
	"github.com/authgate/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.Session.Secret, cfg.Session.MaxAge)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	avatarStore, err := storage.NewAvatarStore(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	if err := avatarStore.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring avatar bucket: %v", err)
	}

	identityStore := services.NewIdentityStore(db)
	verifier := services.NewCredentialVerifier(identityStore)
	resolver := services.NewIdentityResolver(identityStore)
	sessions := services.NewSessionService(identityStore, cfg.Session.UpdateAge)

	authHandler := handlers.NewAuthHandler(db, identityStore, verifier, resolver, sessions)
	ssoHandler := handlers.NewSSOHandler(db, cfg, identityStore, resolver, sessions)
	avatarsHandler := handlers.NewAvatarsHandler(db, avatarStore)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 10 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/me", authMiddleware.RequireAuth, authHandler.UpdateMe)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)
	authRoutes.Get("/session", authMiddleware.RequireAuth, authHandler.Session)
	authRoutes.Post("/session/refresh", authMiddleware.RequireAuth, authHandler.RefreshSession)

	authRoutes.Get("/providers", ssoHandler.ListProviders)
	authRoutes.Get("/sso/:provider", ssoHandler.GetLoginRedirect)
	authRoutes.Get("/sso/:provider/callback", ssoHandler.HandleOAuthCallback)
	authRoutes.Get("/accounts", authMiddleware.RequireAuth, ssoHandler.GetLinkedAccounts)
	authRoutes.Post("/accounts", authMiddleware.RequireAuth, ssoHandler.LinkAccount)
	authRoutes.Delete("/accounts/:id", authMiddleware.RequireAuth, ssoHandler.UnlinkAccount)

	api.Post("/avatars", authMiddleware.RequireAuth, avatarsHandler.Upload)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
