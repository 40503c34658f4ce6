package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore is an alternate Store backend for deployments that want the
// resource table external to the broker process. It is NOT a cache in front
// of another store — it is the store, using Redis's WATCH/MULTI optimistic
// transaction primitive as the compare-and-swap mechanism §4.2 requires.
type RedisStore struct {
	rdb       *redis.Client
	indexKey  string
	keyPrefix string
}

// NewRedisStore wraps an already-constructed *redis.Client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, indexKey: "resource_operator:index", keyPrefix: "resource_operator:"}
}

func (s *RedisStore) rowKey(key Key) string {
	return s.keyPrefix + key.BldgID + "\x1f" + key.ResourceID
}

func (s *RedisStore) getTx(ctx context.Context, rdb redis.Cmdable, key Key) (Record, error) {
	raw, err := rdb.Get(ctx, s.rowKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("redis get %s/%s: %w", key.BldgID, key.ResourceID, err)
	}
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return Record{}, fmt.Errorf("decode resource %s/%s: %w", key.BldgID, key.ResourceID, err)
	}
	return r, nil
}

// Get returns the current record for key, or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key Key) (Record, error) {
	return s.getTx(ctx, s.rdb, key)
}

// ListAll returns every record tracked in the index set.
func (s *RedisStore) ListAll(ctx context.Context) ([]Record, error) {
	members, err := s.rdb.SMembers(ctx, s.indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list resource index: %w", err)
	}
	out := make([]Record, 0, len(members))
	for _, m := range members {
		raw, err := s.rdb.Get(ctx, s.keyPrefix+m).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list resource %s: %w", m, err)
		}
		var r Record
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("decode resource %s: %w", m, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// UpdateLease atomically applies asn to key's row iff its current lease
// fields satisfy pre, using Redis WATCH to detect concurrent writers.
func (s *RedisStore) UpdateLease(ctx context.Context, key Key, pre Preconditions, asn Assignments) error {
	rowKey := s.rowKey(key)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := s.getTx(ctx, tx, key)
		if err != nil {
			return err
		}
		if !preconditionsMatch(current, pre) {
			return ErrPreconditionFailed
		}
		current.LockedBy = asn.LockedBy
		current.LockedTimeMs = asn.LockedTimeMs
		current.ExpirationTimeMs = asn.ExpirationTimeMs

		encoded, err := json.Marshal(current)
		if err != nil {
			return fmt.Errorf("encode resource %s/%s: %w", key.BldgID, key.ResourceID, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rowKey, encoded, 0)
			return nil
		})
		return err
	}, rowKey)

	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrPreconditionFailed) {
			return err
		}
		if errors.Is(err, redis.TxFailedErr) {
			return ErrPreconditionFailed
		}
		return fmt.Errorf("update_lease %s/%s: %w", key.BldgID, key.ResourceID, err)
	}
	return nil
}

// SweepExpired clears every row past its absolute ceiling and returns the
// prior state of each cleared row.
func (s *RedisStore) SweepExpired(ctx context.Context, nowMs int64) ([]Record, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var expired []Record
	for _, r := range all {
		if r.LockedBy == "" || r.LockedTimeMs+r.MaxTimeoutMs >= nowMs {
			continue
		}
		key := Key{BldgID: r.BldgID, ResourceID: r.ResourceID}
		err := s.UpdateLease(ctx, key, Preconditions{RequireLockedBy: r.LockedBy}, Unleased())
		if err != nil {
			if errors.Is(err, ErrPreconditionFailed) || errors.Is(err, ErrNotFound) {
				// Raced with a concurrent release/renewal/revocation; skip.
				continue
			}
			return nil, fmt.Errorf("sweep clear %s/%s: %w", r.BldgID, r.ResourceID, err)
		}
		expired = append(expired, r)
	}
	return expired, nil
}

// Seed idempotently inserts def's initial unleased row.
func (s *RedisStore) Seed(ctx context.Context, def Definition) error {
	rowKey := s.rowKey(Key{BldgID: def.BldgID, ResourceID: def.ResourceID})
	record := Record{Definition: def}
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode seed %s/%s: %w", def.BldgID, def.ResourceID, err)
	}

	set, err := s.rdb.SetNX(ctx, rowKey, encoded, 0).Result()
	if err != nil {
		return fmt.Errorf("seed resource %s/%s: %w", def.BldgID, def.ResourceID, err)
	}
	if !set {
		// Row already exists: leave it untouched per §4.7's idempotency rule.
		return nil
	}
	member := def.BldgID + "\x1f" + def.ResourceID
	if err := s.rdb.SAdd(ctx, s.indexKey, member).Err(); err != nil {
		return fmt.Errorf("index resource %s/%s: %w", def.BldgID, def.ResourceID, err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
