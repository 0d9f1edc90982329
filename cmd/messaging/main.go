package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"

	notificationsapp "kindbossing/internal/app/handlers/notifications"
	"kindbossing/internal/infra/assembly"
	"kindbossing/internal/infra/config"
	"kindbossing/internal/infra/messaging"
	"kindbossing/internal/infra/obs"
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
	logger := obs.NewLogger(cfg.Env, cfg.LogLevel).With("service", "messaging")

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
	// with Kafka the API tier owns the reactors; this process only ships events
	if !backend.Durable() {
		backend.LoadFixtures(ctx)
		backend.RegisterShared(&notificationsapp.Policy{UoWFactory: backend.Factory, Logger: logger})
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(messaging.LoggingInterceptor(logger)))
	srv := &messaging.Server{Service: messaging.Local{Commands: backend.Buses.Commands, Queries: backend.Buses.Queries}}
	srv.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.MessagingListen)
	if err != nil {
		logger.Error("failed to listen", "error", err, "addr", cfg.MessagingListen)
		os.Exit(1)
	}

	go func() {
		if err := backend.Run(ctx); err != nil {
			logger.Error("event pipeline stopped", "error", err)
			stop()
		}
	}()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down grpc server")
		grpcServer.GracefulStop()
	}()

	logger.Info("messaging service starting", "addr", cfg.MessagingListen, "env", cfg.Env, "driver", cfg.StorageDriver)
	if err := grpcServer.Serve(lis); err != nil {
		logger.Error("grpc server failed", "error", err)
		os.Exit(1)
	}
}
