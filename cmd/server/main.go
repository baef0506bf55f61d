package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/internal/core/services"
	handlers "streamcast/internal/handlers/http"
	"streamcast/internal/infrastructure/middleware"
	"streamcast/internal/infrastructure/monitoring"
	"streamcast/internal/infrastructure/repositories"
	wssignal "streamcast/internal/infrastructure/signal"
	"streamcast/internal/infrastructure/webrtc"
	"streamcast/pkg/config"
	"streamcast/pkg/logger"
	"streamcast/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	sweepInterval   = 30 * time.Second
	stalePeersGrace = 30 * time.Second
)

func main() {
	configPath := os.Getenv("STREAMCAST_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	sugar := zapLogger.Sugar()

	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "streamcast",
		JaegerURL:   cfg.Tracing.JaegerEndpoint,
		Environment: "production",
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		sugar.Fatalw("failed to initialize tracing", "error", err)
	}

	factory, err := repositories.NewRepositoryFactory(cfg, sugar)
	if err != nil {
		sugar.Fatalw("failed to initialize repositories", "error", err)
	}
	registry := factory.CreateRoomRegistry()

	collector := monitoring.NewPrometheusCollector()

	sessionService := services.NewSessionService(
		registry,
		func(peerID domain.PeerID) domain.SignalingSession {
			return webrtc.NewHandler(peerID)
		},
		collector,
		sugar,
		cfg.Rooms.MaxRooms,
		cfg.Rooms.MaxViewersPerRoom,
		cfg.Rooms.IdleTimeout,
	)

	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddCheck("registry", registry.HealthCheck, 3*time.Second)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(logger.NewContextLogger(zapLogger)))
	router.Use(middleware.RecoveryMiddleware(sugar))
	router.Use(middleware.ErrorHandlerMiddleware(sugar))
	router.Use(middleware.NewRateLimitMiddleware(cfg))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	var authMW gin.HandlerFunc
	if cfg.Auth.Enabled {
		authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		authMW = middleware.AuthMiddleware(authService)
		handlers.NewAuthHandler(authService).SetupRoutes(router)
	}

	roomHandler := handlers.NewRoomHandler(sessionService, healthChecker)
	roomHandler.SetupRoutes(router, authMW)

	wsServer := wssignal.NewWebSocketServer(sessionService, sugar)
	wsServer.SetPingInterval(cfg.Signal.PingInterval)
	wsServer.SetPongTimeout(cfg.Signal.PongTimeout)
	wsServer.SetMaxMessageSize(cfg.Signal.MaxMessageSize)
	router.GET("/ws", gin.WrapF(wsServer.HandleWebSocket))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go runSweepLoop(sweepCtx, sessionService, sugar)

	go func() {
		sugar.Infow("starting server", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sugar.Info("shutting down server")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		sugar.Errorw("forced shutdown", "error", err)
	}
	if err := tracerProvider.Shutdown(ctx); err != nil {
		sugar.Errorw("failed to shut down tracer", "error", err)
	}
	if err := factory.Close(); err != nil {
		sugar.Errorw("failed to close repositories", "error", err)
	}

	sugar.Info("server stopped")
}

// runSweepLoop periodically removes idle rooms and peers that never
// connected, then logs a stats snapshot.
func runSweepLoop(ctx context.Context, sessionService ports.SessionService, sugar *zap.SugaredLogger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rooms, err := sessionService.CleanupIdleRooms(ctx)
			if err != nil {
				sugar.Warnw("idle room sweep failed", "error", err)
			}
			peers, err := sessionService.CleanupStalePeers(ctx, stalePeersGrace)
			if err != nil {
				sugar.Warnw("stale peer sweep failed", "error", err)
			}

			stats, err := sessionService.Stats(ctx)
			if err != nil {
				continue
			}
			sugar.Infow("server stats",
				"total_rooms", stats.TotalRooms,
				"active_rooms", stats.ActiveRooms,
				"total_peers", stats.TotalPeers,
				"rooms_swept", len(rooms),
				"peers_swept", len(peers),
			)
		}
	}
}
