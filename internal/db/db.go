// Package db wires the two persistence backends this module actually
// needs: Postgres for the Friendship/FriendRequest/user-key-projection
// tables (internal/friends), and Redis for the per-user rate counters
// (internal/ratelimit). Nothing here is authoritative for message
// content - envelopes are never persisted, so there is no
// message/attachment/conversation schema to migrate.
//
// Fail-closed on Postgres, fail-open on Redis: a friendship lookup that
// can't run must block delivery (the ACL check is mandatory), while a
// rate limiter that can't run should not itself become an outage
// (internal/ratelimit.Limiter already fails open on a Redis error;
// NewDB degrades the same way at startup by continuing without Redis
// rather than refusing to start over it). Missing DATABASE_URL is the
// one fatal config case: the process must not start without its
// Friendship/FriendRequest store.
package db

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// DB holds the two backing connections. Redis may be nil: every caller
// that uses it (internal/ratelimit.Limiter) already tolerates that.
type DB struct {
	Postgres *sql.DB
	Redis    *redis.Client
}

// NewDB opens both connections from environment configuration. Postgres
// must be reachable or this returns an error (the caller in cmd/relay
// treats that as Fatal); Redis is best-effort, matching the rate
// limiter's own fail-open policy.
func NewDB() (*DB, error) {
	pg, err := openPostgres()
	if err != nil {
		return nil, err
	}

	rdb := openRedis()

	return &DB{Postgres: pg, Redis: rdb}, nil
}

func openPostgres() (*sql.DB, error) {
	postgresURL := os.Getenv("DATABASE_URL")
	if postgresURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	pg, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	// The query surface is a handful of small, indexed
	// friendship/request/key lookups per event or HTTP call (see
	// migrations/0001_init.sql), so a modest pool is enough even under
	// the relay's one-event-loop-per-process model.
	pg.SetMaxOpenConns(10)
	pg.SetMaxIdleConns(5)
	pg.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pg.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	log.Println("[DB] PostgreSQL connection established")
	return pg, nil
}

// openRedis connects the optional rate-limiter backend. It supports both
// "host:port" and "redis://"/"rediss://" URL forms; any failure to reach
// Redis is logged and the DB proceeds with a nil Redis client, since
// internal/ratelimit.Limiter already treats a nil client as "allow".
func openRedis() *redis.Client {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "localhost:6379"
	}

	opts := &redis.Options{
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		DB:           0,
	}

	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		parsedURL, err := url.Parse(redisURL)
		if err != nil {
			log.Printf("[WARN] failed to parse REDIS_URL: %v (continuing without rate-limit Redis)", err)
			return nil
		}
		opts.Addr = parsedURL.Host
		if parsedURL.User != nil {
			opts.Username = parsedURL.User.Username()
			if password, ok := parsedURL.User.Password(); ok {
				opts.Password = password
			}
		}
		if parsedURL.Scheme == "rediss" {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	} else {
		opts.Addr = redisURL
		opts.Password = os.Getenv("REDIS_PASSWORD")
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[WARN] failed to connect to Redis: %v (rate limiting will fail open)", err)
		return nil
	}

	log.Println("[DB] Redis connection established")
	return rdb
}

// Close closes both backing connections.
func (db *DB) Close() error {
	var errs []error

	if db.Postgres != nil {
		if err := db.Postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close error: %w", err))
		}
	}
	if db.Redis != nil {
		if err := db.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing databases: %v", errs)
	}
	return nil
}

// RunMigrations applies the numbered .sql files under migrationsPath
// (cmd/relay defaults this to "migrations", holding the
// users/friendships/friend_requests schema in migrations/0001_init.sql)
// in order, tracking what has already run in a schema_migrations table.
func (db *DB) RunMigrations(migrationsPath string) error {
	log.Println("[DB] running migrations...")

	if _, err := db.Postgres.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(migrationsPath, "*.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		version := filepath.Base(file)

		var alreadyApplied bool
		if err := db.Postgres.QueryRow(
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version,
		).Scan(&alreadyApplied); err != nil {
			return fmt.Errorf("failed to check migration status: %w", err)
		}
		if alreadyApplied {
			log.Printf("[DB] migration %s already applied, skipping", version)
			continue
		}

		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", version, err)
		}

		tx, err := db.Postgres.Begin()
		if err != nil {
			return fmt.Errorf("failed to start transaction for migration %s: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %s: %w", version, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version) VALUES ($1)", version,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", version, err)
		}
		log.Printf("[DB] applied migration: %s", version)
	}

	log.Println("[DB] all migrations completed")
	return nil
}

// Health backs GET /health. Postgres failing is reported as unhealthy;
// Redis failing is only logged, matching its fail-open treatment
// elsewhere in this package.
func (db *DB) Health(ctx context.Context) error {
	if err := db.Postgres.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	if db.Redis != nil {
		if err := db.Redis.Ping(ctx).Err(); err != nil {
			log.Printf("[WARN] Redis health check failed: %v", err)
		}
	}
	return nil
}
