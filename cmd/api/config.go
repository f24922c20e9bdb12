package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go-chi-calculator/internal/calculator"
	"go-chi-calculator/internal/history"
)

// config is read from the environment after .env has been loaded.
type config struct {
	Addr            string
	ErrorResetDelay time.Duration
	HistoryLimit    int
	MaxSessions     int
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

func loadConfig() (config, error) {
	cfg := config{
		Addr:            envString("CALC_ADDR", ":8080"),
		ErrorResetDelay: calculator.DefaultResetDelay,
		HistoryLimit:    history.DefaultLimit,
		MaxSessions:     calculator.DefaultMaxSessions,
		IdleTimeout:     calculator.DefaultIdleTimeout,
		ShutdownTimeout: 5 * time.Second,
	}

	var err error

	if cfg.ErrorResetDelay, err = envDuration("CALC_ERROR_RESET_DELAY", cfg.ErrorResetDelay); err != nil {
		return config{}, err
	}
	if cfg.ShutdownTimeout, err = envDuration("CALC_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return config{}, err
	}
	if cfg.HistoryLimit, err = envInt("CALC_HISTORY_LIMIT", cfg.HistoryLimit); err != nil {
		return config{}, err
	}
	if cfg.MaxSessions, err = envInt("CALC_MAX_SESSIONS", cfg.MaxSessions); err != nil {
		return config{}, err
	}
	if cfg.IdleTimeout, err = envDuration("CALC_SESSION_IDLE_TIMEOUT", cfg.IdleTimeout); err != nil {
		return config{}, err
	}

	return cfg, nil
}

// storeOptions translates the config into session store options.
func (c config) storeOptions() []calculator.StoreOption {
	return []calculator.StoreOption{
		calculator.WithControllerOptions(
			calculator.WithResetDelay(c.ErrorResetDelay),
			calculator.WithHistoryLimit(c.HistoryLimit),
		),
		calculator.WithMaxSessions(c.MaxSessions),
		calculator.WithIdleTimeout(c.IdleTimeout),
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("parse %s: must be positive, got %s", key, d)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("parse %s: must be positive, got %d", key, n)
	}
	return n, nil
}
