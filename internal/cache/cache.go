// Package cache keeps read-mostly catalog listings in Redis, encoded with
// msgpack.
package cache

import (
	"bytes"
	"context"
	"strings"
	"time"

	"license-server/internal/config"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

const keyPrefix = "license-server:catalog:"

// Redis is a msgpack value cache with a fixed TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// Connect builds a client from a redis:// URL or a host:port address and
// checks that the server answers.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	var opt *redis.Options
	if cfg.URL != "" && strings.HasPrefix(cfg.URL, "redis://") {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		opt = parsed
	} else {
		addr := cfg.Addr
		if addr == "" {
			addr = cfg.URL
		}
		opt = &redis.Options{Addr: addr, Password: cfg.Password, DB: cfg.DB}
	}

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

func New(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{client: client, ttl: ttl}
}

// Get decodes the value stored under key into dst. It reports false on a miss.
func (c *Redis) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "redis get")
	}
	if err := Decode(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Redis) Set(ctx context.Context, key string, v interface{}) error {
	raw, err := Encode(v)
	if err != nil {
		return err
	}
	return errors.Wrap(c.client.Set(ctx, keyPrefix+key, raw, c.ttl).Err(), "redis set")
}

// Invalidate drops keys so the next read goes to the database.
func (c *Redis) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = keyPrefix + k
	}
	return errors.Wrap(c.client.Del(ctx, full...).Err(), "redis del")
}

func (c *Redis) Close() error {
	return c.client.Close()
}

// Encode uses JSON field names so cached values match the API shape.
func Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, errors.Wrap(err, "msgpack encode")
	}
	return buf.Bytes(), nil
}

func Decode(raw []byte, dst interface{}) error {
	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	dec.SetCustomStructTag("json")
	return errors.Wrap(dec.Decode(dst), "msgpack decode")
}
