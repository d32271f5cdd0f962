// Package redisstore is the matrixstore.Store implementation backed by
// Redis, built on the go-redis/v9 client.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/plan4better/catchment-engine/internal/core/model"
	"github.com/plan4better/catchment-engine/internal/core/observability"
)

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

type Client struct {
	rdb *redis.Client
}

func New(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("matrixstore redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     32,
		MinIdleConns: 4,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)

	start := time.Now()
	err := rdb.Ping(ctx).Err()
	observability.ObserveRedisOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("matrixstore redis ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

func rowKey(h3_3 int64, origCell string) string {
	return fmt.Sprintf("matrix:%d:%s", h3_3, origCell)
}

func shardPattern(h3_3 int64) string {
	return fmt.Sprintf("matrix:%d:*", h3_3)
}

// PutRows pipelines a SET per row under its own h3_3 shard prefix so a
// later DeleteShard can find every key belonging to that shard via a scan.
func (c *Client) PutRows(ctx context.Context, h3_3 int64, rows []model.MatrixRow) error {
	start := time.Now()
	if len(rows) == 0 {
		return nil
	}

	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, row := range rows {
			b, mErr := json.Marshal(row)
			if mErr != nil {
				return fmt.Errorf("marshal matrix row %s: %w", row.OrigCell, mErr)
			}
			if sErr := p.Set(ctx, rowKey(h3_3, row.OrigCell), b, 0).Err(); sErr != nil {
				return fmt.Errorf("matrixstore redis pipeline SET %s: %w", row.OrigCell, sErr)
			}
		}
		return nil
	})
	observability.ObserveRedisOp("put_rows", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("matrixstore PutRows h3_3=%d (%d rows): %w", h3_3, len(rows), err)
	}
	return nil
}

func (c *Client) GetRow(ctx context.Context, h3_3 int64, origCell string) (model.MatrixRow, bool, error) {
	start := time.Now()
	b, err := c.rdb.Get(ctx, rowKey(h3_3, origCell)).Bytes()
	observability.ObserveRedisOp("get_row", err, time.Since(start).Seconds())
	if errors.Is(err, redis.Nil) {
		observability.AddMatrixCacheMisses(1)
		return model.MatrixRow{}, false, nil
	}
	if err != nil {
		return model.MatrixRow{}, false, fmt.Errorf("matrixstore GetRow h3_3=%d cell=%s: %w", h3_3, origCell, err)
	}
	observability.AddMatrixCacheHits(1)

	var row model.MatrixRow
	if err := json.Unmarshal(b, &row); err != nil {
		return model.MatrixRow{}, false, fmt.Errorf("unmarshal matrix row %s: %w", origCell, err)
	}
	return row, true, nil
}

func (c *Client) DeleteShard(ctx context.Context, h3_3 int64) error {
	start := time.Now()
	var cursor uint64
	var keys []string
	for {
		batch, next, err := c.rdb.Scan(ctx, cursor, shardPattern(h3_3), 500).Result()
		if err != nil {
			observability.ObserveRedisOp("delete_shard_scan", err, time.Since(start).Seconds())
			return fmt.Errorf("matrixstore DeleteShard scan h3_3=%d: %w", h3_3, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if len(keys) == 0 {
		observability.ObserveRedisOp("delete_shard", nil, time.Since(start).Seconds())
		return nil
	}
	err := c.rdb.Del(ctx, keys...).Err()
	observability.ObserveRedisOp("delete_shard", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("matrixstore DeleteShard del h3_3=%d (%d keys): %w", h3_3, len(keys), err)
	}
	return nil
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("matrixstore redis close: %w", err)
	}
	return nil
}
