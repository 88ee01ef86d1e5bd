// Package redis keeps the latest record of a device in a hash and a bounded
// JSON history in a list.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ericogr/pisensor-mqtt/pkg/config"
	"github.com/ericogr/pisensor-mqtt/pkg/output"
	"github.com/ericogr/pisensor-mqtt/pkg/telemetry"
)

const (
	DefaultAddr    = "localhost:6379"
	DefaultPrefix  = "pisensor"
	DefaultHistory = 600

	opTimeout = 2 * time.Second
)

type RedisOutput struct {
	client  *redis.Client
	latest  string
	history string
	keep    int64
}

// NewRedis connects and pings the server.
func NewRedis(cfg config.RedisConfig, deviceID string, logger *zap.Logger) (output.Output, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connect %s: %w", cfg.Addr, err)
	}
	out := newOutput(client, cfg, deviceID)
	if logger != nil {
		logger.Info("redis connected", zap.String("addr", cfg.Addr), zap.String("latest", out.latest),
			zap.String("history", out.history))
	}
	return out, nil
}

func newOutput(client *redis.Client, cfg config.RedisConfig, deviceID string) *RedisOutput {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	keep := cfg.History
	if keep <= 0 {
		keep = DefaultHistory
	}
	base := fmt.Sprintf("%s:%s", prefix, deviceID)
	return &RedisOutput{
		client:  client,
		latest:  base + ":latest",
		history: base + ":history",
		keep:    int64(keep),
	}
}

func (r *RedisOutput) Publish(rec telemetry.Record) error {
	b, err := telemetry.Encode(rec)
	if err != nil {
		return err
	}
	fields := map[string]interface{}{"timestamp": strconv.FormatFloat(*rec.Timestamp, 'f', -1, 64)}
	for ch, v := range rec.Values() {
		fields[string(ch)] = strconv.FormatFloat(v, 'f', -1, 64)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.latest, fields)
	pipe.LPush(ctx, r.history, b)
	pipe.LTrim(ctx, r.history, 0, r.keep-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (r *RedisOutput) Close() error {
	return r.client.Close()
}
