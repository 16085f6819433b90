package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds configuration for the Redis store.
type RedisConfig struct {
	// Client is the Redis client (required). *redis.Client and
	// *redis.ClusterClient both satisfy redis.Cmdable.
	Client redis.Cmdable

	// KeyPrefix is prepended to all Redis keys (default: "cryptonet:registry:").
	KeyPrefix string

	// TTL is how long records are kept (default: 0 = no expiration).
	TTL time.Duration
}

// RedisStore is a Redis-backed implementation of Store, for deployments where
// several daemons share one engine backend.
//
// Records are CBOR-encoded under <prefix>rec:<puid>. A sorted set at
// <prefix>idx orders PUIDs by enrollment time.
type RedisStore struct {
	client    redis.Cmdable
	keyPrefix string
	ttl       time.Duration
}

// storedRecord is the CBOR representation of a record.
type storedRecord struct {
	PUID       string `cbor:"puid"`
	GUID       string `cbor:"guid,omitempty"`
	EnrolledAt int64  `cbor:"enrolled_at"`
	Source     string `cbor:"source,omitempty"`
}

// NewRedisStore creates a new Redis-backed store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client is required")
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "cryptonet:registry:"
	}

	return &RedisStore{
		client:    cfg.Client,
		keyPrefix: keyPrefix,
		ttl:       cfg.TTL,
	}, nil
}

func (s *RedisStore) recordKey(puid string) string {
	return s.keyPrefix + "rec:" + puid
}

func (s *RedisStore) indexKey() string {
	return s.keyPrefix + "idx"
}

// Put saves a record, replacing any record with the same PUID.
func (s *RedisStore) Put(ctx context.Context, rec Record) error {
	if rec.PUID == "" {
		return ErrNoPUID
	}
	if rec.EnrolledAt.IsZero() {
		rec.EnrolledAt = time.Now()
	}

	data, err := cbor.Marshal(storedRecord{
		PUID:       rec.PUID,
		GUID:       rec.GUID,
		EnrolledAt: rec.EnrolledAt.UnixMilli(),
		Source:     rec.Source,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(rec.PUID), data, s.ttl)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{
			Score:  float64(rec.EnrolledAt.UnixMilli()),
			Member: rec.PUID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}
	return nil
}

// Get retrieves a record by PUID.
func (s *RedisStore) Get(ctx context.Context, puid string) (*Record, error) {
	data, err := s.client.Get(ctx, s.recordKey(puid)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load record: %w", err)
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete removes a record by PUID.
func (s *RedisStore) Delete(ctx context.Context, puid string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.recordKey(puid))
		pipe.ZRem(ctx, s.indexKey(), puid)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all records in enrollment order. Index entries whose record
// has expired are pruned.
func (s *RedisStore) List(ctx context.Context) ([]Record, error) {
	puids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	if len(puids) == 0 {
		return []Record{}, nil
	}

	keys := make([]string, len(puids))
	for i, puid := range puids {
		keys[i] = s.recordKey(puid)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	out := make([]Record, 0, len(values))
	var stale []any
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, puids[i])
			continue
		}
		rec, err := decodeRecord([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}

	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune index: %w", err)
		}
	}
	return out, nil
}

func decodeRecord(data []byte) (Record, error) {
	var sr storedRecord
	if err := cbor.Unmarshal(data, &sr); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return Record{
		PUID:       sr.PUID,
		GUID:       sr.GUID,
		EnrolledAt: time.UnixMilli(sr.EnrolledAt),
		Source:     sr.Source,
	}, nil
}

var _ Store = (*RedisStore)(nil)
