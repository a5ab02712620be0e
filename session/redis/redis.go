package redis_session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/newspulse/models"
	"github.com/mohammad-safakhou/newspulse/session"
)

// Store keeps sessions in redis so history survives restarts and is shared
// across replicas. Expiry is native: both session keys carry the TTL and
// Sweep is a no-op.
type Store struct {
	client   *redis.Client
	ttl      time.Duration
	maxTurns int
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration, maxTurns int) *Store {
	return &Store{client: client, ttl: ttl, maxTurns: maxTurns}
}

func metaKey(id string) string  { return fmt.Sprintf("session:%s:meta", id) }
func turnsKey(id string) string { return fmt.Sprintf("session:%s:turns", id) }

func (s *Store) GetOrCreate(ctx context.Context, id string) (string, bool, error) {
	if id == "" {
		id = uuid.NewString()
	} else {
		exists, err := s.client.Exists(ctx, metaKey(id)).Result()
		if err != nil {
			return "", false, err
		}
		if exists == 1 {
			pipe := s.client.TxPipeline()
			pipe.Expire(ctx, metaKey(id), s.ttl)
			pipe.Expire(ctx, turnsKey(id), s.ttl)
			if _, err := pipe.Exec(ctx); err != nil {
				return "", false, err
			}
			return id, false, nil
		}
	}
	// Unknown ids are created as-is so client-minted sessions keep their
	// history across requests.
	if err := s.client.Set(ctx, metaKey(id), time.Now().UTC().Format(time.RFC3339), s.ttl).Err(); err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (s *Store) History(ctx context.Context, id string) ([]models.Turn, error) {
	vals, err := s.client.LRange(ctx, turnsKey(id), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.Turn, 0, len(vals))
	for _, v := range vals {
		var t models.Turn
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// AppendExchange pushes both turns in one transaction so a reader never
// observes a user turn without its reply.
func (s *Store) AppendExchange(ctx context.Context, id string, user, assistant models.Turn) error {
	userData, err := json.Marshal(user)
	if err != nil {
		return err
	}
	assistantData, err := json.Marshal(assistant)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, turnsKey(id), userData, assistantData)
	if s.maxTurns > 0 {
		pipe.LTrim(ctx, turnsKey(id), int64(-s.maxTurns), -1)
	}
	pipe.Set(ctx, metaKey(id), time.Now().UTC().Format(time.RFC3339), s.ttl)
	pipe.Expire(ctx, turnsKey(id), s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, metaKey(id), turnsKey(id)).Err()
}

// Sweep is a no-op: redis expires session keys itself.
func (s *Store) Sweep(ctx context.Context) (int, error) { return 0, nil }

func (s *Store) Stats(ctx context.Context) (session.Stats, error) {
	st := session.Stats{
		TTL:        s.ttl,
		TTLMinutes: int(s.ttl / time.Minute),
		Backend:    "redis",
	}
	iter := s.client.Scan(ctx, 0, "session:*:meta", 200).Iterator()
	for iter.Next(ctx) {
		st.ActiveSessions++
	}
	if err := iter.Err(); err != nil {
		return st, err
	}
	turnsIter := s.client.Scan(ctx, 0, "session:*:turns", 200).Iterator()
	for turnsIter.Next(ctx) {
		n, err := s.client.LLen(ctx, turnsIter.Val()).Result()
		if err == nil {
			st.TotalTurns += int(n)
		}
	}
	return st, turnsIter.Err()
}
