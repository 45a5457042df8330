package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

const redisSchemaVersion = "1"

// NewRedisClient returns a configured go-redis client from URL (e.g., redis://localhost:6379/0).
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

// RedisCredentialStore implements CredentialStore with one JSON value per
// username under "<prefix>:cred:<username>".
type RedisCredentialStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisCredentialStore returns a store whose keys are namespaced by prefix.
func NewRedisCredentialStore(client redis.Cmdable, prefix string) (*RedisCredentialStore, error) {
	if !validIdentifier(prefix) {
		return nil, newError(KindConfig, "invalid key prefix", fmt.Errorf("prefix %q", prefix))
	}
	return &RedisCredentialStore{client: client, prefix: prefix}, nil
}

func (s *RedisCredentialStore) recordKey(username string) string {
	return s.prefix + ":cred:" + username
}

func (s *RedisCredentialStore) schemaKey() string {
	return s.prefix + ":schema"
}

// EnsureSchema records the schema marker with SETNX; an existing marker is success.
func (s *RedisCredentialStore) EnsureSchema(ctx context.Context) error {
	if err := s.client.SetNX(ctx, s.schemaKey(), redisSchemaVersion, 0).Err(); err != nil {
		return oops.Code("STORE_SCHEMA_FAILED").With("prefix", s.prefix).Wrap(err)
	}
	return nil
}

func (s *RedisCredentialStore) Get(ctx context.Context, username string) (*CredentialRecord, bool, error) {
	raw, err := s.client.Get(ctx, s.recordKey(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, oops.Code("STORE_GET_FAILED").With("username", username).Wrap(err)
	}
	var rec CredentialRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, oops.Code("STORE_DECODE_FAILED").With("username", username).Wrap(err)
	}
	return &rec, true, nil
}

// Put stores the record with SETNX so that concurrent creates resolve to one winner.
func (s *RedisCredentialStore) Put(ctx context.Context, username string, record CredentialRecord) error {
	record.Username = username
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return oops.Code("STORE_ENCODE_FAILED").With("username", username).Wrap(err)
	}
	created, err := s.client.SetNX(ctx, s.recordKey(username), payload, 0).Result()
	if err != nil {
		return oops.Code("STORE_PUT_FAILED").With("username", username).Wrap(err)
	}
	if !created {
		return oops.With("username", username).Wrap(ErrAlreadyExists)
	}
	return nil
}

// ScanAll walks the keyspace with SCAN and loads each batch with MGET.
func (s *RedisCredentialStore) ScanAll(ctx context.Context) ([]CredentialRecord, error) {
	var (
		out    []CredentialRecord
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+":cred:*", 100).Result()
		if err != nil {
			return nil, oops.Code("STORE_SCAN_FAILED").With("prefix", s.prefix).Wrap(err)
		}
		if len(keys) > 0 {
			values, err := s.client.MGet(ctx, keys...).Result()
			if err != nil {
				return nil, oops.Code("STORE_SCAN_FAILED").With("prefix", s.prefix).Wrap(err)
			}
			for i, v := range values {
				str, ok := v.(string)
				if !ok {
					continue // deleted between SCAN and MGET
				}
				var rec CredentialRecord
				if err := json.Unmarshal([]byte(str), &rec); err != nil {
					return nil, oops.Code("STORE_DECODE_FAILED").With("key", keys[i]).Wrap(err)
				}
				out = append(out, rec)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}
