// README: Entry point; loads config, wires services, starts HTTP server and the ETA refresher.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shuttle/internal/config"
	httptransport "shuttle/internal/http"
	"shuttle/internal/infra"
	"shuttle/internal/maps"
	"shuttle/internal/messenger"
	"shuttle/internal/modules/dispatch"
	"shuttle/internal/modules/driver"
	"shuttle/internal/modules/estimate"
	"shuttle/internal/modules/event"
	"shuttle/internal/modules/reservation"
	"shuttle/internal/modules/strategy"
	"shuttle/internal/push"
	"shuttle/internal/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)

	var geocoder maps.Geocoder
	if cfg.Maps.Mock {
		geocoder = maps.NewMock()
	} else {
		geocoder, err = maps.NewGoogle(cfg.Maps.APIKey)
		if err != nil {
			log.Fatalf("maps init: %v", err)
		}
	}

	var (
		verifier infra.TokenVerifier
		pusher   push.Pusher = push.Noop{}
	)
	if cfg.Firebase.ProjectID != "" {
		verifier, err = infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			log.Fatalf("firebase init: %v", err)
		}
		pusher, err = push.NewFCM(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			log.Fatalf("fcm init: %v", err)
		}
	}

	bus := messenger.NewRedis(redisClient, logger)

	marketState := strategy.NewStore(redisClient)
	eventStore := event.NewStore(dbPool)
	driverStore := driver.NewStore(dbPool)
	marketState.SetRoster(driver.NewRoster(driverStore, marketState))

	estimator := estimate.NewService(marketState, geocoder, eventStore, logger)
	estimator.OnRefresh = func(ctx context.Context, eventID types.EventID, est estimate.StrategyEstimations) {
		if err := messenger.SendEventEstimations(ctx, bus, eventID, est); err != nil {
			logger.Warn("broadcast refreshed estimations", "event", eventID, "err", err)
		}
	}

	engine := dispatch.NewEngine(marketState, estimator, logger)

	reservationStore := reservation.NewStore(dbPool)
	reservationSvc := reservation.NewService(reservationStore, eventStore, marketState, estimator, engine, geocoder, bus, logger)

	tokens := push.NewTokenStore(dbPool)
	driverSvc := driver.NewService(driverStore, reservationStore, marketState, estimator, reservationSvc, bus, pusher, tokens, logger)

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Driver:       driverSvc,
		Reservations: reservationSvc,
		Estimator:    estimator,
		Cache:        marketState,
		Verifier:     verifier,
		Log:          logger,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go estimator.RunRefresher(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "err", err)
		}
	}()

	logger.Info("listening", "addr", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
