package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"smartlock/config"
)

const maxRetries = 10

func DSN(cfg config.Config) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)
}

// ConnectDB opens the journal database, retrying with a linear backoff.
func ConnectDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	dsn := DSN(cfg)

	var lastErr error
	for i := range maxRetries {
		db, err := sql.Open("postgres", dsn)
		if err == nil {
			if err = db.PingContext(ctx); err == nil {
				log.Info().Str("host", cfg.DBHost).Msg("Database connection successful!")

				db.SetMaxOpenConns(4)
				db.SetMaxIdleConns(2)
				db.SetConnMaxLifetime(5 * time.Minute)
				return db, nil
			}
			db.Close()
		}
		lastErr = err
		wait := time.Duration(i+1) * time.Second
		log.Warn().Err(err).Dur("retry_in", wait).Msg("Error connecting to database")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("database unreachable after %d attempts: %w", maxRetries, lastErr)
}
