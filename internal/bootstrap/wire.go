// Package bootstrap turns configuration into ready adapters for the commands.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"airbnb_insights/internal/adapters/filesource"
	"airbnb_insights/internal/adapters/mongo"
	redisad "airbnb_insights/internal/adapters/redis"
	"airbnb_insights/internal/adapters/remote"
	"airbnb_insights/internal/domain"
	"airbnb_insights/internal/shared"
	mysqlrepo "airbnb_insights/internal/storage/mysql"
	pgrepo "airbnb_insights/internal/storage/postgres"
)

// Store is a SQL backend that can be both written and read back.
type Store interface {
	domain.ListingRepository
	domain.ListingSource
}

func noop() {}

// OpenDB opens the configured SQL driver and waits for it to answer a ping.
func OpenDB(ctx context.Context, cfg shared.Config) (*sql.DB, error) {
	var dsn string
	switch cfg.StorageDriver {
	case "mysql":
		dsn = cfg.MySQLDSN
	case "postgres":
		dsn = cfg.PostgresDSN
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
	db, err := sql.Open(cfg.StorageDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", cfg.StorageDriver, err)
	}

	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Str("driver", cfg.StorageDriver).Msg("db ping failed; retrying")
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping failed after retries: %w", cfg.StorageDriver, err)
	}
	log.Info().Str("driver", cfg.StorageDriver).Msg("db ping ok")
	return db, nil
}

func OpenStore(ctx context.Context, cfg shared.Config) (Store, func(), error) {
	db, err := OpenDB(ctx, cfg)
	if err != nil {
		return nil, noop, err
	}
	closer := func() { _ = db.Close() }
	if cfg.StorageDriver == "postgres" {
		return pgrepo.New(db), closer, nil
	}
	return mysqlrepo.New(db), closer, nil
}

// OpenSource builds the listing source named by kind.
func OpenSource(ctx context.Context, cfg shared.Config, kind string) (domain.ListingSource, func(), error) {
	switch kind {
	case "file":
		return filesource.New(cfg.DataPath), noop, nil
	case "http":
		c, err := remote.New(cfg.RemoteURL, cfg.RemoteKey, cfg.RemoteRPS)
		if err != nil {
			return nil, noop, err
		}
		return c, noop, nil
	case "mongo":
		s, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDB, cfg.MongoCollection, cfg.MongoTimeout)
		if err != nil {
			return nil, noop, err
		}
		return s, func() { _ = s.Close(context.Background()) }, nil
	case "mysql", "postgres":
		cfg.StorageDriver = kind
		return OpenStore(ctx, cfg)
	default:
		return nil, noop, fmt.Errorf("unknown source %q", kind)
	}
}

// OpenCache returns nil when Redis is not configured or not reachable;
// the query service then runs without a cache.
func OpenCache(ctx context.Context, cfg shared.Config) (domain.Cache, func()) {
	if cfg.RedisAddr == "" {
		log.Info().Msg("REDIS_ADDR unset; caching disabled")
		return nil, noop
	}
	c := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable; caching disabled")
		_ = c.Close()
		return nil, noop
	}
	return c, func() { _ = c.Close() }
}
