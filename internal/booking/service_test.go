package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/medbook/booking-assistant/internal/logging"
	redisclient "github.com/medbook/booking-assistant/internal/redis"
)

func newTestService(t *testing.T, sessionTTL time.Duration) (*Service, *MemoryCatalog) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	catalog := NewMemoryCatalog()
	catalog.AddDoctor(Doctor{ID: "dr_smith", Name: "Dr. Smith", Specialty: "General Medicine"})
	catalog.AddDoctor(Doctor{ID: "dr_johnson", Name: "Dr. Johnson", Specialty: "Cardiology"})
	catalog.AddDoctor(Doctor{ID: "dr_brown", Name: "Dr. Brown", Specialty: "Dermatology"})
	catalog.AddSlot(Slot{ID: uuid.New(), DoctorID: "dr_smith", StartTime: time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)})
	catalog.AddSlot(Slot{ID: uuid.New(), DoctorID: "dr_smith", StartTime: time.Date(2026, 9, 8, 14, 0, 0, 0, time.UTC)})
	catalog.AddSlot(Slot{ID: uuid.New(), DoctorID: "dr_johnson", StartTime: time.Date(2026, 9, 7, 11, 0, 0, 0, time.UTC)})

	store := NewRedisStore(client, sessionTTL)
	locker := redisclient.NewRedisLocker(client, 5*time.Second)

	return NewService(store, store, catalog, locker, logging.New("error")), catalog
}

func drive(t *testing.T, svc *Service, sessionID string, utterances ...string) *TurnResult {
	t.Helper()
	var last *TurnResult
	for _, u := range utterances {
		result, err := svc.HandleMessage(context.Background(), sessionID, u)
		require.NoError(t, err, "utterance %q", u)
		last = result
	}
	return last
}

func TestHappyPathBooksExactlyOneAppointment(t *testing.T) {
	svc, catalog := newTestService(t, time.Hour)
	ctx := context.Background()

	sess, greeting, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, greeting)
	require.Equal(t, StepGreeting, sess.Step)

	result := drive(t, svc, sess.ID,
		"Hi",
		"John Doe",
		"555 867 5309",
		"persistent cough",
		"Dr. Smith",
		"1",
		"yes",
	)

	require.True(t, result.Done)
	require.Equal(t, StepComplete, result.Step)
	require.NotEqual(t, uuid.Nil, result.AppointmentID)

	appt, err := catalog.GetAppointmentBySession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, "John Doe", appt.PatientName)
	require.Equal(t, "dr_smith", appt.DoctorID)

	slot, err := catalog.GetSlot(ctx, appt.SlotID)
	require.NoError(t, err)
	require.Equal(t, SlotBooked, slot.Status)

	got, err := svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, SessionCompleted, got.Status)
}

func TestNameScenario(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	sess, _, err := svc.CreateSession(context.Background())
	require.NoError(t, err)

	result := drive(t, svc, sess.ID, "Hi")
	require.Equal(t, StepCollectName, result.Step)

	result = drive(t, svc, sess.ID, "John Doe")
	require.Equal(t, StepCollectPhone, result.Step)
	require.Equal(t, "John Doe", result.Patient.Name)
}

func TestUnknownDoctorListsCatalog(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	sess, _, err := svc.CreateSession(context.Background())
	require.NoError(t, err)

	result := drive(t, svc, sess.ID, "Hi", "John Doe", "555 867 5309", "cough", "Dr. Nobody")
	require.Equal(t, StepCollectDoctor, result.Step)
	require.Contains(t, result.AssistantText, "Dr. Smith")
	require.Contains(t, result.AssistantText, "Cardiology")
}

func TestSlotRaceOneWinnerOneConflict(t *testing.T) {
	svc, catalog := newTestService(t, time.Hour)
	ctx := context.Background()

	sessA, _, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	sessB, _, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	// Both conversations reach CONFIRM holding the same Johnson slot,
	// which is the only one he has.
	resA := drive(t, svc, sessA.ID, "Hi", "John Doe", "555 867 5309", "chest pain", "Johnson", "1")
	resB := drive(t, svc, sessB.ID, "Hi", "Jane Roe", "555 000 1111", "palpitations", "Johnson", "1")

	require.Equal(t, StepConfirm, resA.Step)
	require.Equal(t, StepConfirm, resB.Step)
	require.Equal(t, resA.Patient.SlotID, resB.Patient.SlotID)

	winner := drive(t, svc, sessA.ID, "yes")
	require.True(t, winner.Done)
	require.NotEqual(t, uuid.Nil, winner.AppointmentID)

	loser := drive(t, svc, sessB.ID, "yes")
	require.False(t, loser.Done)
	require.Equal(t, StepCollectSlot, loser.Step)
	require.Equal(t, uuid.Nil, loser.Patient.SlotID)
	require.Equal(t, "dr_johnson", loser.Patient.DoctorID, "doctor choice survives the conflict")
	require.Contains(t, loser.AssistantText, "just taken")

	// Exactly one appointment exists for the contested slot.
	_, err = catalog.GetAppointmentBySession(ctx, sessB.ID)
	require.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestHandleMessageSessionNotFound(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	_, err := svc.HandleMessage(context.Background(), uuid.NewString(), "Hi")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestExpiredSessionRefusesTransitions(t *testing.T) {
	svc, _ := newTestService(t, -time.Second)
	ctx := context.Background()

	sess, _, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	_, err = svc.HandleMessage(ctx, sess.ID, "Hi")
	require.ErrorIs(t, err, ErrSessionExpired)

	// The session is still readable with its status visible.
	got, err := svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, SessionExpired, got.Status)
}

func TestCleanupExpiredRemovesSessionAndHistory(t *testing.T) {
	svc, _ := newTestService(t, -time.Second)
	ctx := context.Background()

	sess, _, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	removed, err := svc.CleanupExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = svc.GetSession(ctx, sess.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.History(ctx, sess.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestHistorySequenceIsGapless(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)
	ctx := context.Background()

	sess, _, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	drive(t, svc, sess.ID, "Hi", "John Doe", "gibberish", "555 867 5309")

	turns, err := svc.History(ctx, sess.ID)
	require.NoError(t, err)
	// greeting + 4 user/assistant pairs
	require.Len(t, turns, 9)

	for i, turn := range turns {
		require.Equal(t, int64(i+1), turn.Seq, "turn %d", i)
		require.Equal(t, sess.ID, turn.SessionID)
	}
	require.Equal(t, SenderAssistant, turns[0].Sender)
	require.Equal(t, Greeting, turns[0].Text)
}

func TestCompleteStaysComplete(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	sess, _, err := svc.CreateSession(context.Background())
	require.NoError(t, err)

	done := drive(t, svc, sess.ID, "Hi", "John Doe", "555 867 5309", "cough", "Smith", "1", "yes")
	require.True(t, done.Done)
	fields := done.Patient

	again := drive(t, svc, sess.ID, "can I book one more?")
	require.True(t, again.Done)
	require.Equal(t, StepComplete, again.Step)
	require.Equal(t, fields, again.Patient)
}

type failingParaphraser struct{}

func (failingParaphraser) Paraphrase(ctx context.Context, canned string, history []ChatTurn) (string, error) {
	return "", errors.New("llm unavailable")
}

func TestParaphraseFailureFallsBackToCannedReply(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)
	svc = svc.WithParaphraser(failingParaphraser{})

	sess, _, err := svc.CreateSession(context.Background())
	require.NoError(t, err)

	result := drive(t, svc, sess.ID, "Hi")
	require.Equal(t, StepCollectName, result.Step)
	require.Contains(t, result.AssistantText, "full name")
}
