// Package shardstore loads and caches resolution-3 H3 shards of the
// street network: in-memory first, then the on-disk parquet cache, then
// the database. A load that reaches the database always populates both
// caches before returning.
package shardstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/plan4better/catchment-engine/internal/core/errs"
	"github.com/plan4better/catchment-engine/internal/core/model"
	"github.com/plan4better/catchment-engine/internal/core/observability"
)

// SQLLoader fetches a shard's edges directly from Postgres. Implemented by
// Loader (sqlloader.go); split out as an interface so tests can fake it.
type SQLLoader interface {
	LoadShard(ctx context.Context, h3_3 int64) (model.Columns, error)
}

// DiskCache persists a shard's columns to local disk between process
// restarts. Implemented by Cache (diskcache.go).
type DiskCache interface {
	Load(h3_3 int64) (model.Columns, bool, error)
	Save(h3_3 int64, cols model.Columns) error
}

type stripe struct {
	mu sync.RWMutex
	m  map[int64]model.Columns
}

// Store is the network shard cache. It is safe for concurrent use: each
// stripe's RWMutex guards its map and serialises loads of the shards that
// hash to it. The catchment-worker binary builds one Store and shares it
// between the catchment server and every heatmap worker.
type Store struct {
	sql   SQLLoader
	disk  DiskCache
	mu    sync.RWMutex // guards numResident bookkeeping only
	count int

	stripes []stripe
}

func New(sql SQLLoader, disk DiskCache, numStripes int) *Store {
	if numStripes <= 0 {
		numStripes = 32
	}
	s := &Store{
		sql:     sql,
		disk:    disk,
		stripes: make([]stripe, numStripes),
	}
	for i := range s.stripes {
		s.stripes[i].m = make(map[int64]model.Columns)
	}
	return s
}

func (s *Store) pick(h3_3 int64) *stripe {
	h := xxhash.Sum64String(strconv.FormatInt(h3_3, 10))
	return &s.stripes[h%uint64(len(s.stripes))]
}

// GetShard returns the network columns for a resolution-3 cell, loading
// through memory -> disk -> database in that order. Populating shard k
// holds the write lock of k's stripe, so it blocks readers of every shard
// that hashes to that stripe, and of no other.
func (s *Store) GetShard(ctx context.Context, h3_3 int64) (model.Columns, error) {
	st := s.pick(h3_3)

	st.mu.RLock()
	if cols, ok := st.m[h3_3]; ok {
		st.mu.RUnlock()
		observability.IncShardCacheHit("memory")
		return cols, nil
	}
	st.mu.RUnlock()
	observability.IncShardCacheMiss("memory")

	st.mu.Lock()
	defer st.mu.Unlock()

	// Another goroutine may have populated it while we waited for the lock.
	if cols, ok := st.m[h3_3]; ok {
		return cols, nil
	}

	if s.disk != nil {
		start := time.Now()
		cols, ok, err := s.disk.Load(h3_3)
		if err != nil {
			observability.ObserveShardLoad("disk", "error", time.Since(start).Seconds())
		} else if ok {
			observability.ObserveShardLoad("disk", "hit", time.Since(start).Seconds())
			observability.IncShardCacheHit("disk")
			st.m[h3_3] = cols
			s.bumpResident()
			return cols, nil
		} else {
			observability.IncShardCacheMiss("disk")
		}
	}

	start := time.Now()
	cols, err := s.sql.LoadShard(ctx, h3_3)
	if err != nil {
		observability.ObserveShardLoad("database", "error", time.Since(start).Seconds())
		return model.Columns{}, &errs.ShardLoadFailure{H3_3: h3_3, Cause: err}
	}
	observability.ObserveShardLoad("database", "hit", time.Since(start).Seconds())

	st.m[h3_3] = cols
	s.bumpResident()

	if s.disk != nil {
		if err := s.disk.Save(h3_3, cols); err != nil {
			return cols, fmt.Errorf("shardstore: caching shard %d to disk: %w", h3_3, err)
		}
	}
	return cols, nil
}

func (s *Store) bumpResident() {
	s.mu.Lock()
	s.count++
	n := s.count
	s.mu.Unlock()
	observability.SetShardsResident(n)
}

// Evict drops a shard from the in-memory tier only; the disk cache and
// database are untouched. Used when a worker wants to bound its own
// resident set.
func (s *Store) Evict(h3_3 int64) {
	st := s.pick(h3_3)
	st.mu.Lock()
	if _, ok := st.m[h3_3]; ok {
		delete(st.m, h3_3)
		s.mu.Lock()
		s.count--
		s.mu.Unlock()
	}
	st.mu.Unlock()
}
