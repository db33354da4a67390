package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Santy1422/barcos-sub007/internal/config"
	"github.com/Santy1422/barcos-sub007/internal/model"
	"github.com/redis/go-redis/v9"
)

// RedisTxLogRepo keeps a capped list of recent entries. It serves as the
// durable fallback when Postgres is not configured: newest entries sit at
// the head of the list, LTRIM enforces the cap.
type RedisTxLogRepo struct {
	client    *redis.Client
	listKey   string
	listMax   int64
	retention time.Duration
}

func NewRedisTxLogRepo(cfg *config.Config, retention time.Duration) (*RedisTxLogRepo, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	listKey := cfg.Redis.TxLogListKey
	if listKey == "" {
		listKey = "transaction_logs"
	}
	listMax := int64(cfg.Redis.TxLogListMax)
	if listMax <= 0 {
		listMax = 10000
	}
	if retention <= 0 {
		retention = 14 * 24 * time.Hour
	}

	return &RedisTxLogRepo{
		client:    client,
		listKey:   listKey,
		listMax:   listMax,
		retention: retention,
	}, nil
}

func (r *RedisTxLogRepo) Insert(ctx context.Context, entry *model.TxLogEntry) error {
	if entry == nil {
		return nil
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	pipe := r.client.Pipeline()
	pipe.LPush(ctx, r.listKey, payload)
	pipe.LTrim(ctx, r.listKey, 0, r.listMax-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisTxLogRepo) List(ctx context.Context, filter model.ListFilter) ([]*model.TxLogEntry, int64, error) {
	filter.Normalize()
	entries, err := r.recent(ctx)
	if err != nil {
		return nil, 0, err
	}

	cutoff := time.Now().Add(-r.retention)
	matched := make([]*model.TxLogEntry, 0, filter.Limit)
	var total int64
	for _, entry := range entries {
		if entry.Timestamp.Before(cutoff) {
			continue
		}
		if !filter.Matches(entry) {
			continue
		}
		total++
		matched = append(matched, entry)
	}

	start := (filter.Page - 1) * filter.Limit
	if start >= len(matched) {
		return []*model.TxLogEntry{}, total, nil
	}
	end := start + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *RedisTxLogRepo) Stats(ctx context.Context, window time.Duration) (*model.Stats, error) {
	entries, err := r.recent(ctx)
	if err != nil {
		return nil, err
	}
	return model.Aggregate(entries, time.Now().Add(-window)), nil
}

func (r *RedisTxLogRepo) Close() error {
	return r.client.Close()
}

// recent returns the whole capped list, newest first.
func (r *RedisTxLogRepo) recent(ctx context.Context) ([]*model.TxLogEntry, error) {
	raw, err := r.client.LRange(ctx, r.listKey, 0, r.listMax-1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]*model.TxLogEntry, 0, len(raw))
	for _, item := range raw {
		var entry model.TxLogEntry
		if json.Unmarshal([]byte(item), &entry) != nil {
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}
