package server

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"coolcare/internal/booking"
	"coolcare/internal/config"
	"coolcare/internal/ratelimit"
)

func openBookingStore(ctx context.Context, cfg config.StoreConfig) (booking.Store, error) {
	switch cfg.Backend {
	case config.StoreSupabase:
		return booking.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceKey), nil
	case config.StoreMongo:
		s, err := booking.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		return s, nil
	case config.StoreSQLite:
		s, err := booking.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, nil
	case config.StoreMemory:
		return booking.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("%w: %q", config.ErrUnknownStore, cfg.Backend)
}

// openLimiterStore uses Redis when an address is configured so limits hold
// across instances. Otherwise buckets live in memory and a janitor bound to
// bg prunes expired ones.
func openLimiterStore(ctx, bg context.Context, cfg config.RedisConfig, log *zap.SugaredLogger) (ratelimit.Store, func() error, error) {
	if cfg.Addr == "" {
		store := ratelimit.NewMemoryStore()
		go store.RunJanitor(bg, time.Minute)
		return store, nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	log.Infow("rate limiter using redis", "addr", cfg.Addr)
	return ratelimit.NewRedisStore(client, ""), client.Close, nil
}
