// internal/database/db.go
package database

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// DB is the shared pgx pool backing the durable room registry. Connect it once
// at application startup.
var DB *pgxpool.Pool

// ConnectDB opens the pool from the PG_* / POSTGRES_* environment variables
// and verifies it with a ping. The server cannot track rooms without the
// durable registry, so failure here is fatal.
func ConnectDB() {
	host := getenv("PG_HOST", "localhost")
	port := getenv("PG_PORT", "5432")
	name := getenv("PG_DATABASE", "loteria")
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		log.Fatalf("unable to parse pgx config: %v", err)
	}

	DB, err = pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		log.Fatalf("unable to create pgx pool: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := DB.Ping(ctx); err != nil {
		log.Fatalf("db ping error: %v", err)
	}

	// Credentials stay out of the log line.
	log.Infof("Connected to database %s at %s:%s", name, host, port)
}

// getenv reads an environment variable or returns a default value.
func getenv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
