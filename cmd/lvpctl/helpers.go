package main

import (
	"context"
	"fmt"
	"time"

	"github.com/abelbrown/lastview/internal/config"
	"github.com/abelbrown/lastview/internal/otel"
	"github.com/abelbrown/lastview/internal/scrollpos"
)

// loadConfig reads the config file and environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openRepo opens the position store, behind the Redis cache when one is
// configured so deletes invalidate it too. The returned func closes both.
func openRepo(cfg *config.Config) (scrollpos.Repository, func(), error) {
	st, err := scrollpos.Open(cfg.Database())
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.Cache.RedisAddr == "" {
		return st, func() { st.Close() }, nil
	}
	client := scrollpos.NewRedisClient(cfg.Cache.RedisAddr, cfg.Cache.RedisDB)
	repo := scrollpos.NewCache(st, client, cfg.Cache.TTL(), otel.NewNullLogger())
	return repo, func() {
		client.Close()
		st.Close()
	}, nil
}

func cmdContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// truncate shortens a string to max runes, appending "..." if truncated.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
