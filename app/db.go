package app

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/JoHi36/AnkiPlus-sub001/app/config"

	_ "github.com/lib/pq"
)

var (
	db    *sql.DB
	usage UsageStore
	users UserStore
)

// MustInitDB initializes the global db and stores, and panics/logs fatally
// on error.
func MustInitDB() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s",
		cfg.DB.Username,
		cfg.DB.Password,
		cfg.DB.URL,
		cfg.DB.Port,
	)

	d, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("sql.Open: %v", err)
	}

	if err := d.Ping(); err != nil {
		log.Fatalf("db.Ping: %v", err)
	}

	if err := ensureSchema(d); err != nil {
		log.Fatalf("ensureSchema: %v", err)
	}

	log.Println("Connected to Postgres")
	db = d
	usage = &postgresUsageStore{db: d}
	users = &postgresUserStore{db: d}
}

// InitMemoryStores wires in-memory stores for local development without a
// Postgres instance. All state is lost on restart.
func InitMemoryStores() {
	log.Println("Using in-memory stores")
	usage = newMemoryUsageStore()
	users = newMemoryUserStore()
}

func ensureSchema(d *sql.DB) error {
	_, err := d.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id                     TEXT PRIMARY KEY,
			email                  TEXT,
			tier                   TEXT NOT NULL DEFAULT 'free',
			stripe_customer_id     TEXT,
			stripe_subscription_id TEXT,
			subscription_status    TEXT,
			current_period_end     TIMESTAMPTZ,
			cancel_at_period_end   BOOLEAN NOT NULL DEFAULT false,
			created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_login             TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS users_stripe_customer_idx
			ON users (stripe_customer_id);

		CREATE TABLE IF NOT EXISTS usage_daily (
			identity       TEXT NOT NULL,
			day            TEXT NOT NULL,
			flash_requests INT NOT NULL DEFAULT 0,
			deep_requests  INT NOT NULL DEFAULT 0,
			last_reset     TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (identity, day)
		);
	`)
	return err
}
