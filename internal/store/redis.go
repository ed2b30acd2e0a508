package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each room's log in a single Redis list. Every mutation is
// one atomic pipeline so concurrent relays never race a read-modify-write.
type RedisStore struct {
	client   *redis.Client
	prefix   string
	capacity int
}

func NewRedisStore(client *redis.Client, prefix string, capacity int) *RedisStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &RedisStore{client: client, prefix: prefix, capacity: capacity}
}

func (s *RedisStore) key(room string) string {
	return fmt.Sprintf("%s:room:%s:messages", s.prefix, room)
}

func (s *RedisStore) wrap(err error) error {
	if err == nil || err == redis.Nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (s *RedisStore) Append(ctx context.Context, room string, m *Message) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	key := s.key(room)
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, raw)
		p.LTrim(ctx, key, int64(-s.capacity), -1)
		return nil
	})
	return s.wrap(err)
}

func (s *RedisStore) Range(ctx context.Context, room string, limit, offset int) ([]*Message, error) {
	if limit <= 0 || offset < 0 {
		return nil, nil
	}
	// Negative indices count back from the tail, so offset 0 is the most
	// recent page. Redis clamps the start index; a fully out-of-range window
	// comes back empty rather than as an error.
	start := int64(-(offset + limit))
	stop := int64(-(offset + 1))
	raws, err := s.client.LRange(ctx, s.key(room), start, stop).Result()
	if err != nil {
		return nil, s.wrap(err)
	}
	return decodeAll(raws), nil
}

func (s *RedisStore) Count(ctx context.Context, room string) (int64, error) {
	n, err := s.client.LLen(ctx, s.key(room)).Result()
	if err != nil {
		return 0, s.wrap(err)
	}
	return n, nil
}

func (s *RedisStore) Search(ctx context.Context, room, term string) ([]*Message, error) {
	if term == "" {
		return nil, nil
	}
	raws, err := s.client.LRange(ctx, s.key(room), 0, -1).Result()
	if err != nil {
		return nil, s.wrap(err)
	}
	var out []*Message
	for _, m := range decodeAll(raws) {
		if m.Body.Contains(term) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *RedisStore) Clear(ctx context.Context, room string) error {
	return s.wrap(s.client.Del(ctx, s.key(room)).Err())
}

// decodeAll skips entries that no longer unmarshal; a corrupt cache entry
// should not take down history loading for the whole room.
func decodeAll(raws []string) []*Message {
	out := make([]*Message, 0, len(raws))
	for _, raw := range raws {
		var m Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			continue
		}
		out = append(out, &m)
	}
	return out
}
