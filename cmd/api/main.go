package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/auth"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/capture"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/config"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/db"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/dog"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/journal"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/ledger"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/listing"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/migrations"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/obs"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/resolution"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("api: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireServer(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := obs.NewLogger()
	metrics := obs.NewMetrics(prometheus.DefaultRegisterer)

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{})
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := migrations.Apply(ctx, pool)
	if err != nil {
		return err
	}
	logger.Info(map[string]any{"op": "migrate", "applied": applied})

	writer := journal.NewWriter()
	dogRepo := dog.NewRepository(pool)
	requestRepo := ledger.NewRepository(pool)

	dogs := dog.NewService(pool, dogRepo, writer, writer).
		WithDefaultClaimWindow(cfg.DefaultClaimDays).
		WithMetrics(metrics)
	requests := ledger.NewService(pool, requestRepo, dogRepo, writer, writer).
		WithMetrics(metrics)
	resolver := resolution.NewService(pool, dogRepo, requestRepo, writer, writer).
		WithLogger(logger).
		WithMetrics(metrics)
	listings := listing.NewService(dogRepo, requestRepo)
	captures := capture.NewService(pool, capture.NewRepository(pool), writer, writer).
		WithMetrics(metrics)

	srv := &Server{
		authService:    auth.NewService(auth.NewRepository(pool), cfg.JWTSecret),
		dogService:     dogs,
		listingService: listings,
		requestService: requests,
		resolver:       resolver,
		captureService: captures,
		history:        journal.NewReader(pool),
		logger:         logger,
		ready:          pool.Ping,
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	relay := journal.NewRelay(pool, journal.LogPublisher{Logger: logger}, logger, metrics, journal.RelayConfig{
		Interval:    cfg.OutboxPollInterval,
		MaxAttempts: cfg.OutboxMaxAttempts,
	})
	monitor := listing.NewMonitor(listings, metrics, logger, cfg.BucketMonitorInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error { return monitor.Run(gctx) })
	g.Go(func() error {
		logger.Info(map[string]any{"op": "listen", "addr": cfg.HTTPAddr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info(map[string]any{"op": "shutdown"})
	return err
}
