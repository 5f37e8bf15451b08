package main

import (
	"flag"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the server configuration. Environment variables provide the
// defaults, flags override them.
type Config struct {
	Port              int
	Driver            string // sqlite, postgres
	DBPath            string
	DatabaseDSN       string
	CORSOrigins       []string
	ReconcileInterval time.Duration
	SeedFile          string
}

func loadConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	cfg := &Config{}
	origins := ""
	fs.IntVar(&cfg.Port, "port", getEnvInt("PANTRY_PORT", 8080), "HTTP server port")
	fs.StringVar(&cfg.Driver, "driver", getEnv("PANTRY_DRIVER", "sqlite"), "Store driver: sqlite or postgres")
	fs.StringVar(&cfg.DBPath, "db", getEnv("PANTRY_DB", "pantry.db"), "SQLite database path")
	fs.StringVar(&cfg.DatabaseDSN, "dsn", getEnv("DATABASE_DSN", ""), "PostgreSQL DSN")
	fs.StringVar(&origins, "cors", getEnv("CORS_ALLOWED_ORIGINS", ""), "Comma-separated allowed origins")
	fs.DurationVar(&cfg.ReconcileInterval, "reconcile-interval", getEnvDuration("PANTRY_RECONCILE_INTERVAL", time.Hour), "Reconciliation interval (0 disables)")
	fs.StringVar(&cfg.SeedFile, "seed", getEnv("PANTRY_SEED", ""), "Menu JSON file to load on startup")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.CORSOrigins = splitOrigins(origins)

	if cfg.Driver == "postgres" && cfg.DatabaseDSN == "" {
		log.Println("[WARN] postgres driver without -dsn or DATABASE_DSN, using localhost defaults")
		cfg.DatabaseDSN = "host=localhost user=postgres password=postgres dbname=pantry port=5432 sslmode=disable"
	}
	return cfg, nil
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("[WARN] %s=%q is not a number, using %d", key, v, def)
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("[WARN] %s=%q is not a duration, using %v", key, v, def)
	}
	return def
}
