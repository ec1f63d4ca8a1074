package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"smartlock/app"
	"smartlock/config"
	"smartlock/database"
	"smartlock/services"
)

func main() {
	cfg, err := config.LoadConfig()
	services.InitLogger("smartlock", cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("Config error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var nc *nats.Conn
	if cfg.NatsUrl != "" {
		if nc, err = services.InitNats(cfg.NatsUrl); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
	}

	var db *sql.DB
	if cfg.HasDatabase() {
		if db, err = database.ConnectDB(ctx, cfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
	}

	clientID := cfg.MqttClientID
	if clientID == "" {
		clientID = fmt.Sprintf("%s-%s", cfg.ThingName, uuid.NewString()[:8])
	}
	if err := services.InitMqttService(clientID, cfg.MqttBroker, cfg.MqttUser, cfg.MqttPassword); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize MQTT service")
	}

	opts := app.DefaultOptions()
	opts.Dwell = cfg.LockDwell
	opts.RelockDelay = cfg.RelockDelay
	opts.AckTimeout = cfg.PubAckWait
	opts.StrictVersion = cfg.StrictVersion

	lock, err := app.NewLock(cfg.ThingName, services.GetMqttService(), services.NewSimulatedLock(), nc, db, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize lock")
	}
	if err := lock.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start lock")
	}

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		srv = services.NewStatusServer(cfg.MetricsAddr, func() (any, bool) { return lock.Status() })
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Status server failed")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("Received shutdown signal, shutting down...")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}
	lock.Stop()
	services.GetMqttService().Stop()
	if nc != nil {
		nc.Drain()
	}
	if db != nil {
		db.Close()
	}

	log.Info().Msg("Shutdown complete.")
}
