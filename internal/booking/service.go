package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medbook/booking-assistant/internal/logging"
	redisclient "github.com/medbook/booking-assistant/internal/redis"
)

// Greeting is the first assistant turn of every session.
const Greeting = "Hello! I'm the appointment booking assistant. I can help you book a visit with one of our doctors. How are you today?"

// Paraphraser optionally rewrites a canned assistant reply in a warmer tone.
// Implementations must be best-effort: any error means the canned text is
// used unchanged, and state transitions never depend on the result.
type Paraphraser interface {
	Paraphrase(ctx context.Context, canned string, history []ChatTurn) (string, error)
}

// TurnResult is what the gateway gets back for one processed user message.
type TurnResult struct {
	SessionID     string
	AssistantText string
	Step          Step
	Done          bool
	Patient       PatientInfo
	AppointmentID uuid.UUID
}

// Service drives the conversation state machine against the stores. Every
// transition for a session runs under the session's lock, so transitions are
// applied in arrival order and sequence numbers stay gapless.
type Service struct {
	sessions    SessionStore
	history     HistoryLog
	catalog     CatalogRepository
	locker      redisclient.Locker
	paraphraser Paraphraser
	logger      *logging.Logger
}

func NewService(sessions SessionStore, history HistoryLog, catalog CatalogRepository, locker redisclient.Locker, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		sessions: sessions,
		history:  history,
		catalog:  catalog,
		locker:   locker,
		logger:   logger,
	}
}

// WithParaphraser enables LLM phrasing of replies.
func (s *Service) WithParaphraser(p Paraphraser) *Service {
	s.paraphraser = p
	return s
}

// CreateSession starts a new conversation and records the greeting as the
// first assistant turn.
func (s *Service) CreateSession(ctx context.Context) (*Session, string, error) {
	sess, err := s.sessions.Create(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("create session: %w", err)
	}
	if _, err := s.history.Append(ctx, sess.ID, SenderAssistant, Greeting); err != nil {
		return nil, "", fmt.Errorf("record greeting: %w", err)
	}
	s.logger.Info("session created", "session_id", sess.ID, "expires_at", sess.ExpiresAt)
	return sess, Greeting, nil
}

// HandleMessage applies one user utterance to the session's state machine.
// It returns ErrSessionNotFound, ErrSessionExpired or ErrSessionBusy as
// distinguished outcomes; extraction failures are never errors, they come
// back as clarification replies.
func (s *Service) HandleMessage(ctx context.Context, sessionID, text string) (*TurnResult, error) {
	var result *TurnResult

	err := s.locker.WithLock(ctx, "session:"+sessionID, func(ctx context.Context) error {
		sess, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			return err
		}

		if sess.Status == SessionExpired {
			return ErrSessionExpired
		}
		if sess.Status == SessionActive && sess.Stale(time.Now().UTC()) {
			sess.Status = SessionExpired
			if updErr := s.sessions.Update(ctx, sess); updErr != nil {
				s.logger.Error("failed to mark session expired", "session_id", sessionID, "error", updErr)
			}
			return ErrSessionExpired
		}

		if _, err := s.history.Append(ctx, sessionID, SenderUser, text); err != nil {
			return fmt.Errorf("record user turn: %w", err)
		}

		cat, err := s.loadCatalog(ctx)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}

		tr := Advance(sess.Step, sess.Patient, text, cat)

		var appointmentID uuid.UUID
		if tr.Effect == EffectFinalize {
			appt, err := s.finalize(ctx, sess.ID, tr.Fields)
			switch {
			case err == nil:
				appointmentID = appt.ID
			case errors.Is(err, ErrSlotConflict):
				tr = s.rewindToSlot(ctx, tr, cat)
			default:
				return err
			}
		}

		sess.Step = tr.Next
		sess.Patient = tr.Fields
		if tr.Next == StepComplete {
			sess.Status = SessionCompleted
		}

		replyText := s.phrase(ctx, sessionID, tr.Reply)

		if _, err := s.history.Append(ctx, sessionID, SenderAssistant, replyText); err != nil {
			return fmt.Errorf("record assistant turn: %w", err)
		}
		if err := s.sessions.Update(ctx, sess); err != nil {
			return fmt.Errorf("save session: %w", err)
		}

		result = &TurnResult{
			SessionID:     sessionID,
			AssistantText: replyText,
			Step:          tr.Next,
			Done:          tr.Next == StepComplete,
			Patient:       tr.Fields,
			AppointmentID: appointmentID,
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSessionBusy
		}
		return nil, err
	}
	return result, nil
}

// finalize books the chosen slot under its own lock. Concurrent sessions
// racing for one slot resolve to exactly one success; the loser sees
// ErrSlotConflict.
func (s *Service) finalize(ctx context.Context, sessionID string, fields PatientInfo) (*Appointment, error) {
	appt := &Appointment{
		ID:           uuid.New(),
		SessionID:    sessionID,
		PatientName:  fields.Name,
		PatientPhone: fields.Phone,
		Symptoms:     fields.Symptoms,
		DoctorID:     fields.DoctorID,
		SlotID:       fields.SlotID,
	}

	err := s.locker.WithLock(ctx, "slot:"+fields.SlotID.String(), func(ctx context.Context) error {
		return s.catalog.Finalize(ctx, appt)
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotConflict
		}
		return nil, err
	}

	s.logger.Info("appointment finalized",
		"appointment_id", appt.ID,
		"session_id", sessionID,
		"doctor_id", appt.DoctorID,
		"slot_id", appt.SlotID)
	return appt, nil
}

// rewindToSlot converts a failed finalization into a recoverable transition
// back to slot selection. Only the slot choice is discarded.
func (s *Service) rewindToSlot(ctx context.Context, tr Transition, cat Catalog) Transition {
	fields := tr.Fields
	fields.SlotID = uuid.Nil

	reply := "I'm sorry, that time was just taken by someone else."
	if slots := cat.SlotsFor(fields.DoctorID); len(slots) > 0 {
		// The snapshot may still show the lost slot; refresh so the re-ask
		// offers live availability.
		if fresh, err := s.catalog.ListOpenSlots(ctx, fields.DoctorID); err == nil {
			slots = fresh
		}
		if len(slots) > 0 {
			reply = fmt.Sprintf("%s Here are the current openings:\n%s\nWhich one works for you?", reply, formatSlotList(slots))
		} else {
			reply += " There are no other openings with this doctor; you can name a different doctor."
		}
	} else {
		reply += " There are no other openings with this doctor; you can name a different doctor."
	}

	return Transition{
		Next:   StepCollectSlot,
		Fields: fields,
		Reply:  reply,
	}
}

func (s *Service) phrase(ctx context.Context, sessionID, canned string) string {
	if s.paraphraser == nil {
		return canned
	}
	turns, err := s.history.ListTurns(ctx, sessionID)
	if err != nil {
		turns = nil
	}
	text, err := s.paraphraser.Paraphrase(ctx, canned, turns)
	if err != nil || text == "" {
		s.logger.Debug("paraphrase fallback", "session_id", sessionID, "error", err)
		return canned
	}
	return text
}

func (s *Service) loadCatalog(ctx context.Context) (Catalog, error) {
	doctors, err := s.catalog.ListDoctors(ctx)
	if err != nil {
		return Catalog{}, err
	}

	open := make(map[string][]Slot, len(doctors))
	for _, d := range doctors {
		slots, err := s.catalog.ListOpenSlots(ctx, d.ID)
		if err != nil {
			return Catalog{}, err
		}
		open[d.ID] = slots
	}
	return Catalog{Doctors: doctors, OpenSlots: open}, nil
}

// GetSession returns a session, expired ones included.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	return s.sessions.Get(ctx, sessionID)
}

func (s *Service) ListSessions(ctx context.Context, status SessionStatus) ([]Session, error) {
	return s.sessions.List(ctx, status)
}

// History returns the session's turns oldest first.
func (s *Service) History(ctx context.Context, sessionID string) ([]ChatTurn, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.history.ListTurns(ctx, sessionID)
}

// DeleteSession removes a session and purges its history.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return err
	}
	if err := s.history.Purge(ctx, sessionID); err != nil {
		return err
	}
	return s.sessions.Delete(ctx, sessionID)
}

// CleanupExpired marks stale sessions expired, then removes every expired
// session together with its chat history. Returns how many sessions were
// removed.
func (s *Service) CleanupExpired(ctx context.Context) (int, error) {
	marked, err := s.sessions.ExpireStale(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("expire stale sessions: %w", err)
	}
	if marked > 0 {
		s.logger.Info("sessions expired", "count", marked)
	}

	expired, err := s.sessions.List(ctx, SessionExpired)
	if err != nil {
		return 0, fmt.Errorf("list expired sessions: %w", err)
	}

	removed := 0
	for i := range expired {
		id := expired[i].ID
		if err := s.history.Purge(ctx, id); err != nil {
			s.logger.Error("failed to purge history", "session_id", id, "error", err)
			continue
		}
		if err := s.sessions.Delete(ctx, id); err != nil {
			s.logger.Error("failed to delete session", "session_id", id, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
