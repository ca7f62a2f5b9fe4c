package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionExpired      = errors.New("session expired")
	ErrSessionBusy         = errors.New("session has a transition in flight, please retry")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrSlotConflict        = errors.New("slot is no longer available")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// SessionStore is the durable keyed store for sessions. Get returns expired
// sessions with their status visible; refusing to drive the state machine
// against them is the service's job.
type SessionStore interface {
	Create(ctx context.Context) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, sess *Session) error
	// List returns sessions filtered by status; an empty status returns all.
	List(ctx context.Context, status SessionStatus) ([]Session, error)
	// ExpireStale marks active sessions whose expiry threshold has passed
	// and returns how many it transitioned.
	ExpireStale(ctx context.Context, now time.Time) (int, error)
	Delete(ctx context.Context, id string) error
}

// HistoryLog is the append-only chat record. Seq numbers are gapless and
// strictly increasing per session; appends are serialized by the caller
// holding the per-session lock.
type HistoryLog interface {
	Append(ctx context.Context, sessionID string, sender Sender, text string) (int64, error)
	ListTurns(ctx context.Context, sessionID string) ([]ChatTurn, error)
	Purge(ctx context.Context, sessionID string) error
}

// CatalogRepository covers the doctor/slot reference data and the appointment
// write path. Finalize is the single atomic check-and-set in the system.
type CatalogRepository interface {
	ListDoctors(ctx context.Context) ([]Doctor, error)
	GetDoctor(ctx context.Context, id string) (*Doctor, error)
	ListOpenSlots(ctx context.Context, doctorID string) ([]Slot, error)
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)

	// Finalize atomically marks the appointment's slot booked and persists
	// the appointment. If the slot is no longer open it fails with
	// ErrSlotConflict and leaves all state unchanged.
	Finalize(ctx context.Context, appt *Appointment) error

	GetAppointmentBySession(ctx context.Context, sessionID string) (*Appointment, error)
}
