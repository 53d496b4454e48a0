// Package redisstore keeps the settings document in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/settings"
)

const settingsKey = "shule:settings"

// Open connects to the Redis server of conf.
func Open(ctx context.Context, conf core.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        conf.Addr,
		Password:    conf.Password,
		DB:          conf.DB,
		DialTimeout: 5 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis ping")
	}
	return client, nil
}

type settingsStore struct {
	client *redis.Client
	key    string
}

var _ settings.Store = (*settingsStore)(nil) // interface compliance check

// NewSettingsStore stores the settings as one JSON value.
// Writes do not join the database transaction of their context.
func NewSettingsStore(client *redis.Client) settings.Store {
	return &settingsStore{client: client, key: settingsKey}
}

func (store *settingsStore) Load(ctx context.Context) (settings.Settings, error) {
	doc, err := store.client.Get(ctx, store.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return settings.Settings{}, settings.ErrNotFound
		}
		return settings.Settings{}, errors.Wrap(err, "loading settings")
	}

	s := settings.Defaults()
	if err = json.Unmarshal(doc, &s); err != nil {
		return settings.Settings{}, errors.Wrap(err, "decoding settings")
	}
	return s, nil
}

func (store *settingsStore) Save(ctx context.Context, s settings.Settings) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encoding settings")
	}
	return errors.Wrap(store.client.Set(ctx, store.key, doc, 0).Err(), "saving settings")
}

func (store *settingsStore) Reset(ctx context.Context) error {
	return errors.Wrap(store.client.Del(ctx, store.key).Err(), "resetting settings")
}
