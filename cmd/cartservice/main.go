package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/norun9/gomarketplace-cart/cartpb"
	"github.com/norun9/gomarketplace-cart/cartstore"
	"github.com/norun9/gomarketplace-cart/config"
	"github.com/norun9/gomarketplace-cart/handlers"
	"github.com/norun9/gomarketplace-cart/kvstore"
	"github.com/norun9/gomarketplace-cart/services"
	"github.com/norun9/gomarketplace-cart/telemetry"
)

const shutdownTimeout = 10 * time.Second

var log *logrus.Logger

func init() {
	log = logrus.New()
	log.Level = logrus.InfoLevel
	log.Formatter = &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "severity",
			logrus.FieldKeyMsg:   "message",
		},
		TimestampFormat: time.RFC3339Nano,
	}
	log.Out = os.Stdout
}

func main() {
	cfg := config.Load()
	log.Level = cfg.LogLevel
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("cartservice: %v", err)
	}
	log.Info("cartservice stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	// 1) OpenTelemetry
	providers, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:     cfg.ServiceName,
		ServiceVersion:  "v1.0.0",
		Endpoint:        cfg.OTLPEndpoint,
		TracesExporter:  cfg.TracesExporter,
		MetricsExporter: cfg.MetricsExporter,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Error shutting down telemetry: %v", err)
		}
	}()

	// 2) Key-value backend and cart store
	kv, closeKV, err := newKVStore(cfg)
	if err != nil {
		return err
	}
	defer closeKV()
	if err := kv.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize %s backend: %w", cfg.KVBackend, err)
	}

	store := cartstore.New(kv, cartstore.Options{
		Key:          cfg.CartKey,
		Mode:         cfg.PersistMode,
		WriteTimeout: cfg.WriteTimeout,
		Logger:       log,
	})
	if err := store.Initialize(ctx); err != nil {
		log.WithError(err).Warn("Starting with an empty cart")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := store.Close(shutdownCtx); err != nil {
			log.Errorf("Error flushing cart store: %v", err)
		}
	}()
	log.WithFields(logrus.Fields{
		"backend": cfg.KVBackend,
		"key":     cfg.CartKey,
		"mode":    cfg.PersistMode.String(),
	}).Info("Cart store initialized")

	// 3) gRPC and HTTP servers
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	cartpb.RegisterCartServiceServer(grpcServer, services.NewCartServiceServer(store, log))
	healthpb.RegisterHealthServer(grpcServer, services.NewHealthCheckService(kv))
	reflection.Register(grpcServer)

	router := mux.NewRouter()
	router.Use(handlers.ProvideCart(store))
	handlers.NewHandler(log).RegisterRoutes(router)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcAddr := fmt.Sprintf(":%d", cfg.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("Cart gRPC server listening on %s", grpcAddr)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		log.Infof("Cart HTTP server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Received shutdown signal, initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		grpcServer.GracefulStop()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newKVStore(cfg config.Config) (kvstore.KVStore, func(), error) {
	switch cfg.KVBackend {
	case config.BackendRedis:
		log.Infof("Using RedisKVStore with address %s", cfg.RedisAddr)
		s := kvstore.NewRedisKVStore(cfg.RedisAddr, log)
		return s, func() { _ = s.Close() }, nil
	case config.BackendPostgres:
		log.Info("Using PostgresKVStore")
		s, err := kvstore.NewPostgresKVStore(cfg.DatabaseURL, log)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		log.Info("Using LocalKVStore")
		return kvstore.NewLocalKVStore(log), func() {}, nil
	}
}
