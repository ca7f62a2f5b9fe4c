package booking

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ttl), mr
}

func TestSessionCreateGetUpdate(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)
	require.Equal(t, SessionActive, sess.Status)
	require.Equal(t, StepGreeting, sess.Step)
	require.True(t, sess.ExpiresAt.After(sess.CreatedAt))

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, sess.ID, got.ID)

	got.Step = StepCollectPhone
	got.Patient.Name = "John Doe"
	require.NoError(t, store.Update(ctx, got))

	got, err = store.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, StepCollectPhone, got.Step)
	require.Equal(t, "John Doe", got.Patient.Name)
	require.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestSessionGetNotFound(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)

	_, err := store.Get(context.Background(), "no-such-session")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestUpdateDeletedSessionFails(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, sess.ID))

	err = store.Update(ctx, sess)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListFiltersByStatus(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	a, err := store.Create(ctx)
	require.NoError(t, err)
	b, err := store.Create(ctx)
	require.NoError(t, err)

	b.Status = SessionCompleted
	require.NoError(t, store.Update(ctx, b))

	active, err := store.List(ctx, SessionActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, a.ID, active[0].ID)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestListRepairsDanglingIndexEntries(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)

	// Simulate the value vanishing while the index entry survives.
	mr.Del(sessionKey(sess.ID))

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Empty(t, all)

	member, err := store.client.SIsMember(ctx, sessionIndexKey, sess.ID).Result()
	require.NoError(t, err)
	require.False(t, member)
}

func TestExpireStaleMarksOnlyStaleSessions(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	fresh, err := store.Create(ctx)
	require.NoError(t, err)

	stale, err := store.Create(ctx)
	require.NoError(t, err)
	stale.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.Update(ctx, stale))

	count, err := store.ExpireStale(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 1, count)

	got, err := store.Get(ctx, stale.ID)
	require.NoError(t, err)
	require.Equal(t, SessionExpired, got.Status)

	got, err = store.Get(ctx, fresh.ID)
	require.NoError(t, err)
	require.Equal(t, SessionActive, got.Status)
}

func TestAppendAssignsSequentialNumbers(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()
	id := "session-history"

	seq, err := store.Append(ctx, id, SenderAssistant, "hello")
	require.NoError(t, err)
	require.Equal(t, int64(1), seq)

	seq, err = store.Append(ctx, id, SenderUser, "hi there")
	require.NoError(t, err)
	require.Equal(t, int64(2), seq)

	turns, err := store.ListTurns(ctx, id)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, SenderAssistant, turns[0].Sender)
	require.Equal(t, "hello", turns[0].Text)
	require.Equal(t, SenderUser, turns[1].Sender)
	require.False(t, turns[0].Timestamp.IsZero())
}

func TestPurgeClearsHistory(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()
	id := "session-purge"

	_, err := store.Append(ctx, id, SenderUser, "hi")
	require.NoError(t, err)
	require.NoError(t, store.Purge(ctx, id))

	turns, err := store.ListTurns(ctx, id)
	require.NoError(t, err)
	require.Empty(t, turns)

	// Sequence restarts after a purge.
	seq, err := store.Append(ctx, id, SenderUser, "hi again")
	require.NoError(t, err)
	require.Equal(t, int64(1), seq)
}
