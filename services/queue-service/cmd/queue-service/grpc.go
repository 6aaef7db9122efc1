package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/eutonafila/shopqueue/libs/config"
	"github.com/eutonafila/shopqueue/libs/grpcx"
	"github.com/eutonafila/shopqueue/services/queue-service/internal/grpcserver"
)

func startGrpcServer(ctx context.Context, logger *slog.Logger, scheduler grpcserver.Scheduler) error {
	port, err := config.Port("GRPC_PORT", "9090")
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	srv := grpcx.NewServer(logger)
	grpcserver.Register(srv, scheduler, logger)

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
