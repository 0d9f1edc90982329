package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	notificationsapp "kindbossing/internal/app/handlers/notifications"
	"kindbossing/internal/app/policies"
	"kindbossing/internal/domain/user"
	"kindbossing/internal/infra/assembly"
	"kindbossing/internal/infra/config"
	ginserver "kindbossing/internal/infra/http/gin"
	"kindbossing/internal/infra/messaging"
	"kindbossing/internal/infra/obs"
	"kindbossing/internal/infra/realtime"
	"kindbossing/internal/infra/storage/s3"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		obs.NewLogger("dev", "info").Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env, cfg.LogLevel)

	backend, err := assembly.Open(ctx, cfg, logger, obs.ObserveBus(logger))
	if err != nil {
		logger.Error("backend init failed", "error", err, "driver", cfg.StorageDriver)
		os.Exit(1)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("backend close failed", "error", err)
		}
	}()
	backend.LoadFixtures(ctx)

	var svc messaging.Service = messaging.Local{Commands: backend.Buses.Commands, Queries: backend.Buses.Queries}
	if cfg.MessagingGRPCAddr != "" {
		remote, err := messaging.NewClient(ctx, messaging.Config{
			Addr:        cfg.MessagingGRPCAddr,
			DialTimeout: cfg.MessagingGRPCTime,
			CallTimeout: cfg.MessagingGRPCTime,
		}, logger)
		if err != nil {
			logger.Error("messaging client init failed", "error", err, "addr", cfg.MessagingGRPCAddr)
			os.Exit(1)
		}
		defer remote.Close()
		svc = remote
		if !backend.Durable() {
			logger.Warn("remote messaging with the memory driver: messages sent there will not reach websocket clients here")
		}
	}

	hub := realtime.NewHub(realtime.ServiceMembership(svc), logger)
	backend.RegisterShared(&notificationsapp.Policy{UoWFactory: backend.Factory, Notifier: hub, Logger: logger})
	backend.RegisterLocal(realtime.Reactor{Hub: hub})

	var uploader policies.Uploader = s3.NoopUploader{}
	if cfg.UsesS3() {
		client, err := s3.NewClient(s3.Config{
			Endpoint:       cfg.S3Endpoint,
			PublicEndpoint: cfg.S3PublicEndpoint,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			Bucket:         cfg.S3Bucket,
			UseSSL:         cfg.S3UseSSL,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", "error", err)
		} else {
			uploader = client
		}
	}

	auth := ginserver.Authenticator{Secret: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer}
	handlers := ginserver.Handlers{
		Chat:           ginserver.ChatHandler{Messaging: svc, Logger: logger},
		Matching:       ginserver.MatchingHandler{Commands: backend.Buses.Commands, Queries: backend.Buses.Queries, Logger: logger},
		Blocks:         ginserver.BlocksHandler{Commands: backend.Buses.Commands, Queries: backend.Buses.Queries, Logger: logger},
		Notifications:  ginserver.NotificationsHandler{Commands: backend.Buses.Commands, Queries: backend.Buses.Queries, Logger: logger},
		Attachments:    ginserver.AttachmentHandler{Uploader: uploader, Messaging: svc, MaxBytes: cfg.MaxUploadBytes, Logger: logger},
		Realtime:       ginserver.RealtimeHandler{Hub: hub, Auth: auth, OriginPatterns: originPatterns(cfg.CORSOrigins), Logger: logger},
		AuthMiddleware: ginserver.AuthMiddleware{Auth: auth, Logger: logger}.Handle,
	}
	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{Ready: backend.Ready}, handlers)

	if cfg.Env == "dev" || cfg.Env == "local" {
		logDevTokens(auth, logger)
	}

	pipelineErr := make(chan error, 1)
	go func() {
		pipelineErr <- backend.Run(ctx)
	}()

	go func() {
		select {
		case <-ctx.Done():
		case err := <-pipelineErr:
			if err != nil {
				logger.Error("event pipeline stopped", "error", err)
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "driver", cfg.StorageDriver, "message_store", cfg.MessageStore)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

// originPatterns turns CORS origins into the host patterns the websocket
// handshake checks.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			return []string{"*"}
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			out = append(out, origin)
			continue
		}
		out = append(out, u.Host)
	}
	return out
}

// logDevTokens prints day-long tokens for the seeded users.
func logDevTokens(auth ginserver.Authenticator, logger *slog.Logger) {
	seed := []struct {
		id   string
		role user.Role
	}{
		{"boss-1", user.RoleEmployer},
		{"boss-2", user.RoleEmployer},
		{"seeker-1", user.RoleSeeker},
		{"seeker-2", user.RoleSeeker},
	}
	for _, s := range seed {
		token, err := auth.Issue(s.id, []user.Role{s.role}, 24*time.Hour)
		if err != nil {
			logger.Warn("dev token issue failed", "user_id", s.id, "error", err)
			continue
		}
		logger.Info("dev token", "user_id", s.id, "role", s.role, "token", token)
	}
}
