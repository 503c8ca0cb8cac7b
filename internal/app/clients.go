package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/contentlib/internal/platform/gcp"
	"github.com/yungbote/contentlib/internal/platform/logger"
	"github.com/yungbote/contentlib/internal/platform/meilisearch"
	"github.com/yungbote/contentlib/internal/platform/neo4jdb"
	"github.com/yungbote/contentlib/internal/temporalx"
)

// Clients holds the optional integrations. Each is nil when unconfigured.
type Clients struct {
	Redis       goredis.UniversalClient
	Meili       *meilisearch.Client
	Neo4j       *neo4jdb.Client
	Exports     gcp.ExportStore
	Temporal    temporalsdkclient.Client
	TemporalCfg temporalx.Config
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	// Redis
	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, DialTimeout: 5 * time.Second})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			return Clients{}, fmt.Errorf("redis ping: %w", err)
		}
		c.Redis = rdb
	} else {
		log.Warn("REDIS_ADDR not set; using in-process locks and log analytics")
	}

	// Meilisearch
	if meilisearch.Enabled() {
		mcfg, err := meilisearch.ResolveConfigFromEnv()
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("resolve meilisearch config: %w", err)
		}
		m, err := meilisearch.NewClient(log, mcfg)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init meilisearch client: %w", err)
		}
		c.Meili = m
	} else {
		log.Warn("MEILISEARCH_URL not set; search indexing disabled")
	}

	// Neo4j
	n, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		c.Close()
		return Clients{}, fmt.Errorf("init neo4j: %w", err)
	}
	c.Neo4j = n

	// GCS
	exports, err := gcp.NewExportStore(log)
	if err != nil {
		c.Close()
		return Clients{}, fmt.Errorf("init export store: %w", err)
	}
	c.Exports = exports

	// Temporal
	c.TemporalCfg = temporalx.LoadConfig()
	tc, err := temporalx.NewClient(log, c.TemporalCfg)
	if err != nil {
		c.Close()
		return Clients{}, fmt.Errorf("init temporal: %w", err)
	}
	c.Temporal = tc

	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Neo4j != nil {
		_ = c.Neo4j.Close(context.Background())
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
