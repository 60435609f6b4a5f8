package main

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/grpcx"
	"github.com/md-rashed-zaman/salonbook/libs/runtime"
	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/settings"
)

// startGRPCServer exposes grpc.health.v1 for orchestrators that probe over gRPC.
func startGRPCServer(ctx context.Context, logger *slog.Logger, cfg settings.Settings, checks []runtime.ReadyCheck) error {
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return err
	}

	srv, hs := grpcx.NewServer(cfg.ServiceName)
	updater := grpcx.NewHealthUpdater(hs, cfg.ServiceName, 10*time.Second, logger, checks...)
	go updater.Run(ctx)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	return nil
}
