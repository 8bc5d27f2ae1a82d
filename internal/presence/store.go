package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps presence state in Redis so other instances can route.
// Keys:
//   <prefix>:presence:<id> -> "1" with TTL (liveness)
//   <prefix>:online        -> set of participant ids
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewStore(client *redis.Client, prefix string, ttl time.Duration) *Store {
	if ttl == 0 {
		ttl = time.Minute
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	r := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) presenceKey(id string) string { return fmt.Sprintf("%s:presence:%s", s.prefix, id) }
func (s *Store) onlineKey() string            { return s.prefix + ":online" }

func (s *Store) SetOnline(ctx context.Context, id string) error {
	if err := s.client.Set(ctx, s.presenceKey(id), "1", s.ttl).Err(); err != nil {
		return err
	}
	return s.client.SAdd(ctx, s.onlineKey(), id).Err()
}

// Refresh extends the liveness TTL; called from the ws read pump.
func (s *Store) Refresh(ctx context.Context, id string) error {
	return s.client.Expire(ctx, s.presenceKey(id), s.ttl).Err()
}

func (s *Store) SetOffline(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.presenceKey(id)).Err(); err != nil {
		return err
	}
	return s.client.SRem(ctx, s.onlineKey(), id).Err()
}

func (s *Store) IsOnline(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, s.presenceKey(id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// OnlineIDs returns the ids in the online set, dropping entries whose
// liveness key has expired (stale after a crashed instance).
func (s *Store) OnlineIDs(ctx context.Context) ([]string, error) {
	members, err := s.client.SMembers(ctx, s.onlineKey()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(members))
	for _, id := range members {
		alive, err := s.IsOnline(ctx, id)
		if err != nil {
			return nil, err
		}
		if alive {
			out = append(out, id)
		} else {
			_ = s.client.SRem(ctx, s.onlineKey(), id).Err()
		}
	}
	return out, nil
}

// Publish broadcasts a frame to peer instances.
func (s *Store) Publish(ctx context.Context, channel string, payload []byte) error {
	return s.client.Publish(ctx, s.prefix+":"+channel, payload).Err()
}

func (s *Store) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return s.client.Subscribe(ctx, s.prefix+":"+channel)
}
