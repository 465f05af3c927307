package cmd

import (
	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/config"
	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/storage"

	"github.com/pkg/errors"
	redisotel "github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// backend is the opened storage plus whatever must be closed with it.
type backend struct {
	kv storage.KV
	// rdb is set for the redis backend only.
	rdb   *redis.Client
	close func()
}

func openStorage(cfg config.Config, log *logrus.Logger) (*backend, error) {
	switch cfg.StorageBackend {
	case "", "memory":
		log.Warn("using in-memory storage, state is lost on restart")
		return &backend{kv: storage.NewMemory(), close: func() {}}, nil

	case "redis":
		opts := storage.RedisOptions{
			Addr:          cfg.RedisAddr,
			SentinelAddrs: cfg.RedisSentinelAddrs,
			MasterName:    cfg.RedisMasterName,
			DB:            cfg.RedisDB,
			Timeout:       cfg.StorageTimeout,
			TTL:           cfg.StorageTTL,
		}
		rdb, err := storage.NewRedisClient(opts, log)
		if err != nil {
			return nil, err
		}
		if err := redisotel.InstrumentTracing(rdb); err != nil {
			rdb.Close()
			return nil, errors.Wrap(err, "failed to instrument redis tracing")
		}
		if err := redisotel.InstrumentMetrics(rdb); err != nil {
			log.Warnf("failed to instrument redis metrics: %v", err)
		}
		return &backend{
			kv:  storage.NewRedis(rdb, opts, log),
			rdb: rdb,
			close: func() {
				if err := rdb.Close(); err != nil {
					log.Warnf("failed to close redis: %v", err)
				}
			},
		}, nil

	case "mysql":
		db, err := gorm.Open(mysql.Open(cfg.MySQLAddr), &gorm.Config{})
		if err != nil {
			return nil, errors.Wrap(err, "failed to connect to mysql")
		}
		log.Info("connected to mysql")
		// 监控 sql 语句执行时间
		if err := db.Use(otelgorm.NewPlugin()); err != nil {
			return nil, errors.Wrap(err, "failed to initialize otelgorm plugin")
		}
		kv, err := storage.NewMySQL(db)
		if err != nil {
			return nil, err
		}
		return &backend{
			kv: kv,
			close: func() {
				if sqlDB, err := db.DB(); err == nil {
					sqlDB.Close()
				}
			},
		}, nil
	}
	return nil, errors.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
}
