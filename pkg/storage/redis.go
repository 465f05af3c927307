package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// RedisOptions configures the Redis client and the Redis-backed KV.
type RedisOptions struct {
	Addr          string
	SentinelAddrs []string
	MasterName    string
	DB            int
	// Timeout bounds every single command.
	Timeout time.Duration
	// TTL is applied to every Set. Zero keeps keys forever, like localStorage.
	TTL        time.Duration
	MaxRetries int
}

// NewRedisClient builds a sentinel or single-node client and waits until it
// answers PING, backing off exponentially up to 30s between attempts.
func NewRedisClient(opts RedisOptions, log logrus.FieldLogger) (*redis.Client, error) {
	var rdb *redis.Client

	if len(opts.SentinelAddrs) > 0 {
		// [模式 A] 哨兵高可用模式
		masterName := opts.MasterName
		if masterName == "" {
			masterName = "mymaster"
		}
		log.Infof("Initializing Redis in Sentinel Mode. Master: %s, DB: %d", masterName, opts.DB)

		rdb = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    masterName,
			SentinelAddrs: opts.SentinelAddrs,
			DB:            opts.DB,
		})
	} else {
		// [模式 B] 单机模式
		log.Infof("Initializing Redis in Single Node Mode. Addr: %s, DB: %d", opts.Addr, opts.DB)

		rdb = redis.NewClient(&redis.Options{
			Addr: opts.Addr,
			DB:   opts.DB,
		})
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 10
	}
	for i := 0; i < maxRetries; i++ {
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()

		if err == nil {
			log.Info("connected to redis")
			return rdb, nil
		}

		if i == maxRetries-1 {
			rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis after %d retries: %w", maxRetries, err)
		}

		backoff := time.Duration(1<<i) * time.Second
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
		log.Warnf("redis not ready, retry in %v... (%d/%d)", backoff, i+1, maxRetries)
		time.Sleep(backoff)
	}
	return rdb, nil
}

// Redis stores values as plain strings. Every command runs behind a
// circuit breaker; once it trips, calls fail fast with ErrBusy.
type Redis struct {
	rdb     *redis.Client
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	ttl     time.Duration
	log     logrus.FieldLogger
}

// ErrBusy is returned while the breaker is open.
var ErrBusy = errors.New("system busy: storage unavailable")

func NewRedis(rdb *redis.Client, opts RedisOptions, log logrus.FieldLogger) *Redis {
	st := gobreaker.Settings{
		Name:        "RedisStorage",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,

		// 触发熔断的条件
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},

		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("CircuitBreaker[%s] state changed from %s to %s", name, from, to)
		},
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &Redis{
		rdb:     rdb,
		cb:      gobreaker.NewCircuitBreaker(st),
		timeout: timeout,
		ttl:     opts.TTL,
		log:     log,
	}
}

func (r *Redis) exec(ctx context.Context, op string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	val, err := r.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		r.log.Errorf("[%s] circuit breaker open: %v", op, err)
		return nil, ErrBusy
	}
	if err != nil {
		return nil, errors.Wrapf(err, "redis %s", op)
	}
	return val, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := r.exec(ctx, "GET", func(ctx context.Context) (interface{}, error) {
		res, err := r.rdb.Get(ctx, key).Result()
		// a miss is not a failure for the breaker
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return res, nil
	})
	if err != nil {
		return "", err
	}
	if val == nil {
		return "", ErrNotFound
	}
	return val.(string), nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	_, err := r.exec(ctx, "SET", func(ctx context.Context) (interface{}, error) {
		return nil, r.rdb.Set(ctx, key, value, r.ttl).Err()
	})
	return err
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	_, err := r.exec(ctx, "DEL", func(ctx context.Context) (interface{}, error) {
		return nil, r.rdb.Del(ctx, key).Err()
	})
	return err
}
