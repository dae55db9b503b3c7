// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/conjugate/streamform/internal/cluster"
	"github.com/conjugate/streamform/internal/config"
	streamio "github.com/conjugate/streamform/internal/io"
	"github.com/conjugate/streamform/internal/metrics"
	"github.com/conjugate/streamform/internal/transform"
)

func newServeCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run streamformd as a daemon, serving transform over HTTP and gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath, cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return runServe(cfg, logger)
		},
	}
	return cmd
}

func runServe(cfg *config.ServerConfig, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	metricsReg := metrics.New(reg)

	var node *cluster.Node
	if cfg.Raft.Enabled {
		var err error
		node, err = cluster.Start(cfg.Raft, logger)
		if err != nil {
			return fmt.Errorf("streamformd: start cluster node: %w", err)
		}
		defer node.Shutdown()
		logger.Info("raft node started", zap.String("node_id", cfg.Raft.NodeID))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpSrv := newHTTPServer(cfg, logger, metricsReg, reg, node)
	grpcSrv, grpcHealth := newGRPCServer()

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			errCh <- fmt.Errorf("grpc listen: %w", err)
			return
		}
		grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		logger.Info("grpc server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	grpcSrv.GracefulStop()
	return httpSrv.Shutdown(shutdownCtx)
}

func newHTTPServer(cfg *config.ServerConfig, logger *zap.Logger, m *metrics.Registry, reg *prometheus.Registry, node *cluster.Node) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	engine.POST("/v1/transform", transformHandler(cfg.Transform, logger, m, node))

	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: engine,
	}
}

func transformHandler(topts config.TransformOptions, logger *zap.Logger, m *metrics.Registry, node *cluster.Node) gin.HandlerFunc {
	return func(c *gin.Context) {
		app, err := streamio.DecodeLogicalApp(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		opts := transform.Options{
			AllowUnresolvedIntrinsics:  topts.AllowUnresolvedIntrinsics,
			DisableThreadedPortPruning: topts.DisableThreadedPortPruning,
		}

		start := time.Now()
		_, pm, physApp, err := transform.RunWithModels(app, opts)
		m.TransformDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			m.ObserveError(err)
			logger.Error("transform request failed", zap.Error(err))
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		m.OperatorCount.Set(float64(len(physApp.Operators)))
		m.PECount.Set(float64(len(pm.AllPEs())))

		if node != nil {
			requestID := c.GetHeader("X-Request-ID")
			if requestID != "" {
				entry := cluster.LedgerEntry{RequestID: requestID, Kind: "ok"}
				if err := node.RecordCompletion(entry); err != nil {
					logger.Warn("ledger record failed", zap.Error(err))
				}
			}
		}

		var buf bytes.Buffer
		if err := streamio.EncodePhysicalApp(&buf, physApp); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/xml", buf.Bytes())
	}
}

// newGRPCServer wires the standard grpc_health_v1 health-checking service
// plus reflection. streamformd itself exposes no other RPC surface; the
// transform operation is reached over HTTP, not gRPC.
func newGRPCServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthSrv)
	reflection.Register(srv)
	return srv, healthSrv
}
