package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionIndexKey = "sessions"

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

func historyKey(id string) string {
	return fmt.Sprintf("history:%s", id)
}

// RedisStore persists sessions and chat history as JSON values in Redis.
// It implements both SessionStore and HistoryLog. Session keys carry no
// Redis TTL: an expired session must stay readable with its status visible
// until the cleanup sweep removes it.
type RedisStore struct {
	client     *redis.Client
	sessionTTL time.Duration
}

func NewRedisStore(client *redis.Client, sessionTTL time.Duration) *RedisStore {
	return &RedisStore{
		client:     client,
		sessionTTL: sessionTTL,
	}
}

func (s *RedisStore) Create(ctx context.Context) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		Status:    SessionActive,
		Step:      StepGreeting,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	if err := s.client.SAdd(ctx, sessionIndexKey, sess.ID).Err(); err != nil {
		return nil, fmt.Errorf("index session: %w", err)
	}
	return sess, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) Update(ctx context.Context, sess *Session) error {
	// Guard against resurrecting a deleted session.
	exists, err := s.client.Exists(ctx, sessionKey(sess.ID)).Result()
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return ErrSessionNotFound
	}

	sess.UpdatedAt = time.Now().UTC()
	return s.save(ctx, sess)
}

func (s *RedisStore) save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sess.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, status SessionStatus) ([]Session, error) {
	ids, err := s.client.SMembers(ctx, sessionIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				// Index entry outlived the value; repair it.
				_ = s.client.SRem(ctx, sessionIndexKey, id).Err()
				continue
			}
			return nil, err
		}
		if status != "" && sess.Status != status {
			continue
		}
		sessions = append(sessions, *sess)
	}
	return sessions, nil
}

func (s *RedisStore) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	active, err := s.List(ctx, SessionActive)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range active {
		sess := &active[i]
		if !sess.Stale(now) {
			continue
		}
		sess.Status = SessionExpired
		if err := s.Update(ctx, sess); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if err := s.client.SRem(ctx, sessionIndexKey, id).Err(); err != nil {
		return fmt.Errorf("unindex session: %w", err)
	}
	return nil
}

// Append records one chat turn and returns its sequence number. The caller
// holds the per-session lock, which keeps LLen followed by RPush safe and
// the sequence gapless.
func (s *RedisStore) Append(ctx context.Context, sessionID string, sender Sender, text string) (int64, error) {
	key := historyKey(sessionID)

	length, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("history length: %w", err)
	}

	turn := ChatTurn{
		SessionID: sessionID,
		Seq:       length + 1,
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(turn)
	if err != nil {
		return 0, fmt.Errorf("encode turn: %w", err)
	}
	if err := s.client.RPush(ctx, key, data).Err(); err != nil {
		return 0, fmt.Errorf("append turn: %w", err)
	}
	return turn.Seq, nil
}

func (s *RedisStore) ListTurns(ctx context.Context, sessionID string) ([]ChatTurn, error) {
	raw, err := s.client.LRange(ctx, historyKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	turns := make([]ChatTurn, 0, len(raw))
	for _, item := range raw {
		var turn ChatTurn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, fmt.Errorf("decode turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (s *RedisStore) Purge(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, historyKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("purge history: %w", err)
	}
	return nil
}
