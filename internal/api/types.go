package api

import (
	"time"

	"github.com/medbook/booking-assistant/internal/booking"
)

type CreateSessionResponse struct {
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Greeting  string    `json:"greeting"`
}

type SessionResponse struct {
	SessionID string              `json:"session_id"`
	Status    string              `json:"status"`
	Step      string              `json:"current_step"`
	Patient   booking.PatientInfo `json:"patient_info"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	ExpiresAt time.Time           `json:"expires_at"`
}

type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Total    int               `json:"total"`
}

type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type ChatResponse struct {
	SessionID         string              `json:"session_id"`
	AssistantResponse string              `json:"assistant_response"`
	Step              string              `json:"current_step"`
	Done              bool                `json:"done"`
	Patient           booking.PatientInfo `json:"patient_info"`
	AppointmentID     string              `json:"appointment_id,omitempty"`
}

type TurnResponse struct {
	Seq       int64     `json:"seq"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type HistoryResponse struct {
	SessionID string         `json:"session_id"`
	Turns     []TurnResponse `json:"turns"`
	Total     int            `json:"total"`
}

type CleanupResponse struct {
	Removed int `json:"removed"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func sessionResponse(sess *booking.Session) SessionResponse {
	return SessionResponse{
		SessionID: sess.ID,
		Status:    string(sess.Status),
		Step:      string(sess.Step),
		Patient:   sess.Patient,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
		ExpiresAt: sess.ExpiresAt,
	}
}

func turnResponses(turns []booking.ChatTurn) []TurnResponse {
	out := make([]TurnResponse, 0, len(turns))
	for _, t := range turns {
		out = append(out, TurnResponse{
			Seq:       t.Seq,
			Sender:    string(t.Sender),
			Text:      t.Text,
			Timestamp: t.Timestamp,
		})
	}
	return out
}
