package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/studylive/adapters/audio"
	"github.com/satriahrh/studylive/adapters/frames"
	"github.com/satriahrh/studylive/adapters/live"
	"github.com/satriahrh/studylive/adapters/llm"
	"github.com/satriahrh/studylive/domain/repositories"
	"github.com/satriahrh/studylive/internal/api"
	"github.com/satriahrh/studylive/internal/auth"
	"github.com/satriahrh/studylive/internal/config"
	"github.com/satriahrh/studylive/internal/contexttier"
	"github.com/satriahrh/studylive/internal/websocket"
	"github.com/satriahrh/studylive/usecase"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize adapters
	audioSystem, err := audio.NewSystem(logger)
	if err != nil {
		logger.Fatal("Failed to initialize audio system", zap.Error(err))
	}
	defer audioSystem.Close()

	var genaiClient *genai.Client
	if cfg.GeminiAPIKey != "" {
		genaiClient, err = llm.NewGeminiClient(context.Background(), cfg.GeminiAPIKey, logger)
		if err != nil {
			logger.Fatal("Failed to create Gemini client", zap.Error(err))
		}
	}

	transport := newLiveTransport(cfg, genaiClient, logger)
	frameSource := newFrameSource(cfg, logger)

	tierConfig := contexttier.DefaultConfig()
	if cfg.TiersFile != "" {
		tierConfig, err = contexttier.LoadConfig(cfg.TiersFile)
		if err != nil {
			logger.Fatal("Failed to load tier config", zap.Error(err))
		}
	}
	tiers, err := contexttier.NewPolicy(tierConfig)
	if err != nil {
		logger.Fatal("Invalid tier config", zap.Error(err))
	}

	generator := newAnswerGenerator(cfg, genaiClient, logger)
	askService, err := usecase.NewAskService(generator, usecase.AskConfig{MaxAttempts: cfg.AskMaxAttempts}, logger)
	if err != nil {
		logger.Fatal("Failed to create ask service", zap.Error(err))
	}

	// The hub is the session's event sink and the manager is the hub's
	// controller, so the hub gets its controller after both exist.
	hub := websocket.NewHub(nil, logger)
	go hub.Run()

	manager := usecase.NewLiveSessionManager(
		transport,
		audioSystem,
		frameSource,
		tiers,
		hub,
		usecase.LiveSessionConfig{Model: cfg.LiveModel, Voice: cfg.LiveVoice},
		logger,
	)
	hub.SetController(manager)

	var watchdog *usecase.IdleWatchdog
	if cfg.SessionIdleTimeout > 0 {
		watchdog = usecase.NewIdleWatchdog(manager, cfg.SessionIdleTimeout, 0, logger)
		watchdog.Start()
	}

	issuer, err := auth.NewIssuer(cfg.JWTSecret, 0)
	if err != nil {
		logger.Fatal("Failed to create token issuer", zap.Error(err))
	}

	// Initialize API routes
	api.InitRoutes(e, api.NewHandler(manager, askService, tiers, hub, issuer, cfg.APISharedSecret, logger))

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("liveTransport", cfg.LiveTransport),
		zap.String("frameSource", cfg.FrameSource))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	if watchdog != nil {
		watchdog.Stop()
	}
	if _, active := manager.Active(); active {
		if err := manager.DisconnectWithReason("server shutdown"); err != nil {
			logger.Warn("Failed to disconnect live session", zap.Error(err))
		}
	}
	hub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLiveTransport(cfg config.Config, client *genai.Client, logger *zap.Logger) repositories.LiveTransport {
	if cfg.LiveTransport == config.TransportGenAI {
		if client == nil {
			logger.Fatal("GEMINI_API_KEY is required for the genai live transport")
		}
		return llm.NewGeminiLiveTransport(client, logger)
	}

	transport, err := live.NewTransport(live.Config{URL: cfg.LiveURL, APIKey: cfg.GeminiAPIKey}, logger)
	if err != nil {
		logger.Fatal("Failed to create live transport", zap.Error(err))
	}
	return transport
}

func newFrameSource(cfg config.Config, logger *zap.Logger) repositories.FrameSource {
	switch cfg.FrameSource {
	case config.FrameSourceStatic:
		return frames.NewStaticSource()
	case config.FrameSourceNone:
		logger.Info("Frame snapshots disabled")
		return nil
	default:
		return frames.NewFFmpegSource(frames.FFmpegConfig{Path: cfg.FFmpegPath}, logger)
	}
}

func newAnswerGenerator(cfg config.Config, client *genai.Client, logger *zap.Logger) repositories.AnswerGenerator {
	if client == nil {
		logger.Warn("GEMINI_API_KEY not set, answering questions with the offline generator")
		return llm.NewMockAnswerGenerator()
	}

	generator, err := llm.NewGeminiAnswerGenerator(client, llm.GeminiConfig{
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.AskModel,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create answer generator", zap.Error(err))
	}
	return generator
}
