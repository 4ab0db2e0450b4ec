package search

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"citypulse/internal/types"
)

const (
	docKeyPrefix = "cp:doc:"
	idSetPrefix  = "cp:ids:"
)

func docKey(domain types.Domain, externalID string) string {
	return docKeyPrefix + string(domain) + ":" + externalID
}

func idSetKey(domain types.Domain) string {
	return idSetPrefix + string(domain)
}

// RedisStore implements DocStore on Redis: one string key per document plus
// a set of ids per domain. Writes for one sync batch go through a single
// transactional pipeline so readers never see a torn update.
type RedisStore struct {
	rdb redis.Cmdable
}

// NewRedisStore creates a RedisStore on the given client.
func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb}
}

var _ DocStore = (*RedisStore)(nil)

func (s *RedisStore) ListIDs(ctx context.Context, domain types.Domain) ([]string, error) {
	return s.rdb.SMembers(ctx, idSetKey(domain)).Result()
}

func (s *RedisStore) CountIDs(ctx context.Context, domain types.Domain) (int64, error) {
	return s.rdb.SCard(ctx, idSetKey(domain)).Result()
}

func (s *RedisStore) Apply(ctx context.Context, domain types.Domain, upserts map[string][]byte, removals []string) error {
	pipe := s.rdb.TxPipeline()
	for id, payload := range upserts {
		pipe.Set(ctx, docKey(domain, id), payload, 0)
		pipe.SAdd(ctx, idSetKey(domain), id)
	}
	for _, id := range removals {
		pipe.Del(ctx, docKey(domain, id))
		pipe.SRem(ctx, idSetKey(domain), id)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) GetDoc(ctx context.Context, domain types.Domain, externalID string) ([]byte, error) {
	payload, err := s.rdb.Get(ctx, docKey(domain, externalID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return payload, nil
}
