package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/catalog"
	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/config"
	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/httpapi"
	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/model"
	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/notify"
	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/store"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const janitorInterval = time.Minute

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the gRPC health server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, config.Load())
		},
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	log := newLogger(cfg)

	if cfg.EnableTracing {
		tr, err := initTracing(ctx, log, cfg.CollectorAddr)
		if err != nil {
			log.Warnf("warn: failed to start tracer: %+v", err)
		} else {
			defer func() {
				if err := tr.Shutdown(context.Background()); err != nil {
					log.Errorf("Error shutting down tracer provider: %v", err)
				}
			}()
		}

		mp, err := initMetrics(ctx, log, cfg.CollectorAddr)
		if err != nil {
			log.Warnf("warn: failed to start metric provider: %+v", err)
		} else {
			defer func() {
				if err := mp.Shutdown(context.Background()); err != nil {
					log.Errorf("Error shutting down metric provider: %v", err)
				}
			}()
		}
	}

	if !cfg.DisableProfiler {
		log.Info("Profiling enabled.")
		go initProfiling(log, serviceName, appVersion)
	} else {
		log.Info("Profiling disabled.")
	}

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return err
	}

	be, err := openStorage(cfg, log)
	if err != nil {
		return err
	}
	defer be.close()

	registry := store.NewRegistry(be.kv, store.RegistryOptions{
		Keys:         store.Keys{Cart: cfg.CartKey, User: cfg.UserKey},
		DismissAfter: cfg.DismissAfter,
		Notifier:     notify.LogNotifier{Log: log},
		OnChange: func(sessionID string, snap model.Snapshot) {
			log.WithFields(logrus.Fields{
				"session":    sessionID,
				"cart.count": snap.Count,
				"cart.total": snap.Total,
				"signed_in":  snap.User != nil,
			}).Debug("session refreshed")
		},
		// redis and mysql may be shared by several replicas
		Shared: cfg.StorageBackend != "memory",
		Log:    log,
	})

	var limiter *httpapi.Limiter
	if be.rdb != nil {
		limiter = httpapi.NewLimiter(be.rdb, httpapi.Limits{
			GlobalRPS:   cfg.GlobalRPS,
			GlobalBurst: cfg.GlobalBurst,
			IPRPS:       cfg.IPRPS,
			IPBurst:     cfg.IPBurst,
		}, log)
	}

	api := httpapi.New(httpapi.Options{
		Registry:      registry,
		Catalog:       cat,
		Log:           log,
		SessionSecret: cfg.SessionSecret,
		Limiter:       limiter,
	})
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	hsrv := health.NewServer()
	hsrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcSrv, hsrv)
	reflection.Register(grpcSrv)

	g, gctx := errgroup.WithContext(ctx)
	var wg sync.WaitGroup
	registry.StartJanitor(gctx, &wg, janitorInterval, cfg.SessionIdle)

	g.Go(func() error {
		log.Infof("starting http server at %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCHealthPort))
		if err != nil {
			return err
		}
		log.Infof("starting grpc health server at :%s", cfg.GRPCHealthPort)
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Gracefully shutting down...")
		hsrv.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		grpcSrv.GracefulStop()
		return err
	})

	err = g.Wait()
	wg.Wait()
	return err
}
