package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tahakhatip2-tech/hakeem-backend/internal/appointments"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/auth"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/autoreply"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/chatlog"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/config"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/contacts"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/credstore"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/handlers"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/ingest"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/llm"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/session"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/settings"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/transport/whatsapp"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect database failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	chats := chatlog.NewStore(pool)
	settingsService := settings.NewService(pool)
	patientService := contacts.NewService(pool)
	bookingService := appointments.NewService(pool)
	for _, ensure := range []func(context.Context) error{
		chats.EnsureSchema,
		settingsService.EnsureSchema,
		patientService.EnsureSchema,
		bookingService.EnsureSchema,
	} {
		if err := ensure(ctx); err != nil {
			logger.Error("ensure schema failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	creds, err := credstore.New(cfg.SessionDir)
	if err != nil {
		logger.Error("open credential store failed", slog.Any("error", err))
		os.Exit(1)
	}

	generator := llm.NewClient(cfg.GeminiModels, logger,
		llm.WithHTTPClient(&http.Client{Timeout: cfg.LLMTimeout}))
	replier := autoreply.NewOrchestrator(logger, settingsService, chats, bookingService, patientService, generator,
		autoreply.WithDefaultAPIKey(cfg.GeminiAPIKey))

	dialer := whatsapp.NewDialer(logger, creds)
	pipeline := ingest.NewPipeline(logger, chats)
	sessions := session.NewManager(logger, dialer, creds, pipeline, replier, chats, cfg.SendTimeout)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(auth.JWTMiddleware(cfg.JWTSecret, func(c echo.Context) bool {
		path := c.Request().URL.Path
		return path == "/healthz" || strings.HasPrefix(path, "/auth/")
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	handlers.NewAuthHandler(cfg.JWTSecret).Register(e)
	handlers.NewWhatsAppHandler(sessions).Register(e)
	handlers.NewChatsHandler(chats).Register(e)
	handlers.NewSettingsHandler(settingsService).Register(e)
	handlers.NewAppointmentsHandler(bookingService).Register(e)

	go sessions.ResumeAll(ctx)

	go func() {
		logger.Info("server listening", slog.String("addr", cfg.HTTPAddr))
		if err := e.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.Any("error", err))
	}
	sessions.Shutdown()
	logger.Info("shutdown complete")
}
