package booking

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired"
)

// Step identifies where a booking conversation currently is. The flow is
// strictly linear except for the confirm-reject back edge to StepCollectDoctor.
type Step string

const (
	StepGreeting        Step = "greeting"
	StepCollectName     Step = "collect_name"
	StepCollectPhone    Step = "collect_phone"
	StepCollectSymptoms Step = "collect_symptoms"
	StepCollectDoctor   Step = "collect_doctor"
	StepCollectSlot     Step = "collect_slot"
	StepConfirm         Step = "confirm"
	StepComplete        Step = "complete"
)

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

type SlotStatus string

const (
	SlotOpen   SlotStatus = "open"
	SlotBooked SlotStatus = "booked"
)

// PatientInfo holds the fields collected during the conversation. Fields
// accumulate monotonically; only the confirm-reject back edge clears
// DoctorID and SlotID.
type PatientInfo struct {
	Name     string    `json:"name,omitempty"`
	Phone    string    `json:"phone,omitempty"`
	Symptoms string    `json:"symptoms,omitempty"`
	DoctorID string    `json:"doctor_id,omitempty"`
	SlotID   uuid.UUID `json:"slot_id,omitempty"`
}

type Session struct {
	ID        string        `json:"id"`
	Status    SessionStatus `json:"status"`
	Step      Step          `json:"step"`
	Patient   PatientInfo   `json:"patient"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Stale reports whether the session has outlived its expiry threshold.
// Expiration is a passive timestamp comparison, never an active timer.
func (s *Session) Stale(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

type ChatTurn struct {
	SessionID string    `json:"session_id"`
	Seq       int64     `json:"seq"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type Doctor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Specialty string    `json:"specialty"`
	CreatedAt time.Time `json:"created_at"`
}

type Slot struct {
	ID        uuid.UUID  `json:"id"`
	DoctorID  string     `json:"doctor_id"`
	StartTime time.Time  `json:"start_time"`
	Status    SlotStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type Appointment struct {
	ID           uuid.UUID `json:"id"`
	SessionID    string    `json:"session_id"`
	PatientName  string    `json:"patient_name"`
	PatientPhone string    `json:"patient_phone"`
	Symptoms     string    `json:"symptoms"`
	DoctorID     string    `json:"doctor_id"`
	SlotID       uuid.UUID `json:"slot_id"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}
