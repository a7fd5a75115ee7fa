package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/config"
	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/infrastructure/elastic"
	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/infrastructure/kafka"
	mongoInfra "github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/infrastructure/mongo"
	redisInfra "github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/infrastructure/redis"
	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/pkg/retry"
	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/propagation"

	go_redis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// Factory builds and caches connections to the backing services and closes
// them together.
type Factory struct {
	cfg      *config.Config
	log      *slog.Logger
	mongoCli *mongo.Client
	repo     *mongoInfra.MessageRepository
	index    *elastic.Index
	redisCli *go_redis.Client
	redisOff bool
	producer *kafka.Producer
}

func NewFactory(cfg *config.Config, log *slog.Logger) *Factory {
	return &Factory{
		cfg: cfg,
		log: log,
	}
}

func (f *Factory) Mongo(ctx context.Context) (*mongo.Client, error) {
	if f.mongoCli != nil {
		return f.mongoCli, nil
	}

	var client *mongo.Client
	err := retry.Do(ctx, retry.Connect(), func(attempt int) error {
		var err error
		client, err = mongoInfra.NewClient(ctx, mongoInfra.Config{URI: f.cfg.Mongo.URI})
		if err != nil {
			f.log.Warn("failed to connect to mongo, retrying", "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init mongo after retries: %w", err)
	}

	f.mongoCli = client
	return client, nil
}

// MessageRepository is the Message Store Adapter over the configured
// database and collection.
func (f *Factory) MessageRepository(ctx context.Context) (*mongoInfra.MessageRepository, error) {
	if f.repo != nil {
		return f.repo, nil
	}

	client, err := f.Mongo(ctx)
	if err != nil {
		return nil, err
	}

	db := client.Database(mongoInfra.DatabaseName(f.cfg.Mongo.URI))
	f.repo = mongoInfra.NewMessageRepository(db, f.cfg.Mongo.Collection, f.cfg.Sync.Lease)
	return f.repo, nil
}

// SearchIndex returns the Search Index Adapter. It tries to create the index
// but a failure is only logged; the adapter creates it lazily on first write.
func (f *Factory) SearchIndex(ctx context.Context) (*elastic.Index, error) {
	if f.index != nil {
		return f.index, nil
	}

	es, err := elastic.NewClient(elastic.Config{Host: f.cfg.Elastic.Host})
	if err != nil {
		return nil, fmt.Errorf("failed to init elasticsearch: %w", err)
	}
	index := elastic.NewIndex(es, f.cfg.Elastic.Index)

	err = retry.Do(ctx, retry.Connect(), func(attempt int) error {
		err := index.EnsureIndex(ctx)
		if err != nil {
			f.log.Warn("failed to ensure search index, retrying", "attempt", attempt, "index", index.Name(), "error", err)
		}
		return err
	})
	if err != nil && ctx.Err() == nil {
		f.log.Error("search index unavailable, continuing degraded", "index", index.Name(), "error", err)
	}

	f.index = index
	return index, nil
}

// Redis returns nil without error when REDIS_ADDR is empty or the server is
// unreachable; every Redis feature is optional.
func (f *Factory) Redis(ctx context.Context) *go_redis.Client {
	if f.redisCli != nil || f.redisOff {
		return f.redisCli
	}

	client, err := redisInfra.NewClient(ctx, redisInfra.Config{
		Addr:     f.cfg.Redis.Addr,
		Password: f.cfg.Redis.Password,
	})
	if err != nil {
		f.redisOff = true
		if !errors.Is(err, redisInfra.ErrDisabled) {
			f.log.Warn("redis unavailable, cache and idempotency disabled", "error", err)
		}
		return nil
	}

	f.redisCli = client
	return client
}

func (f *Factory) KafkaProducer() *kafka.Producer {
	if f.producer == nil {
		f.producer = kafka.NewProducer(kafka.Config{
			Brokers: f.cfg.Kafka.Brokers,
			Topic:   f.cfg.Kafka.Topic,
		})
	}
	return f.producer
}

// Propagator builds the synchronization layer for the configured SYNC_MODE.
func (f *Factory) Propagator(ctx context.Context, producerName string) (*propagation.Propagator, error) {
	repo, err := f.MessageRepository(ctx)
	if err != nil {
		return nil, err
	}

	opts := propagation.Options{Timeout: f.cfg.Sync.Timeout, Lease: f.cfg.Sync.Lease}

	if f.cfg.Sync.Mode == config.SyncModeKafka {
		return propagation.NewViaKafka(repo, f.KafkaProducer(), producerName, opts, f.log), nil
	}

	index, err := f.SearchIndex(ctx)
	if err != nil {
		return nil, err
	}
	return propagation.NewDirect(repo, index, opts, f.log), nil
}

func (f *Factory) Close(ctx context.Context) {
	if f.producer != nil {
		if err := f.producer.Close(); err != nil {
			f.log.Error("failed to close kafka producer", "error", err)
		}
	}
	if f.redisCli != nil {
		f.redisCli.Close()
	}
	if f.mongoCli != nil {
		if err := f.mongoCli.Disconnect(ctx); err != nil {
			f.log.Error("failed to disconnect mongo", "error", err)
		}
	}
}
