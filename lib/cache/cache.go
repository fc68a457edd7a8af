// Package cache keeps labelled off-chain copies of on-chain reputation scores in redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/tarancss/linka/lib/config"
)

const prefix = "reputation"

// Entry is a cached reputation score and the time it was read from the chain.
type Entry struct {
	Score    uint64    `json:"score"`
	SyncedAt time.Time `json:"syncedAt"`
}

// Redis is a reputation cache backed by redis.
type Redis struct {
	c   *redis.Client
	ttl time.Duration
}

// New connects to the redis server in conf and checks it is reachable.
func New(ctx context.Context, conf config.RedisConfig) (*Redis, error) {
	l := log.WithFields(log.Fields{"package": "cache", "addr": conf.Addr})

	c := redis.NewClient(&redis.Options{
		Addr:        conf.Addr,
		Password:    conf.Password,
		DB:          conf.DB,
		DialTimeout: 5 * time.Second,
		ReadTimeout: 5 * time.Second,
	})

	if err := c.Ping(ctx).Err(); err != nil {
		l.WithError(err).Error("Failed to connect to redis")
		_ = c.Close()

		return nil, fmt.Errorf("cannot connect to redis: %w", err)
	}

	l.Info("Connected to redis")

	return &Redis{c: c, ttl: time.Duration(conf.TTL) * time.Second}, nil
}

func key(address string) string {
	return prefix + ":" + strings.ToLower(address)
}

// Get returns the cached entry for address. ok is false when there is none.
func (r *Redis) Get(ctx context.Context, address string) (e Entry, ok bool, err error) {
	b, err := r.c.Get(ctx, key(address)).Bytes()
	if errors.Is(err, redis.Nil) {
		return e, false, nil
	}

	if err != nil {
		return e, false, fmt.Errorf("cannot read reputation of %s: %w", address, err)
	}

	if err = json.Unmarshal(b, &e); err != nil {
		return e, false, fmt.Errorf("corrupt reputation entry for %s: %w", address, err)
	}

	return e, true, nil
}

// Set stores score for address, read from the chain at syncedAt.
func (r *Redis) Set(ctx context.Context, address string, score uint64, syncedAt time.Time) error {
	b, err := json.Marshal(Entry{Score: score, SyncedAt: syncedAt.UTC()})
	if err != nil {
		return err
	}

	if err = r.c.Set(ctx, key(address), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("cannot cache reputation of %s: %w", address, err)
	}

	return nil
}

// Close closes the connection.
func (r *Redis) Close() error {
	return r.c.Close()
}
