package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/medbook/booking-assistant/internal/booking"
	"github.com/medbook/booking-assistant/internal/logging"
)

// WSInbound is what the chat page sends.
type WSInbound struct {
	Type    string `json:"type"` // "message", "ping"
	Message string `json:"message"`
}

// WSOutbound is what we send back.
type WSOutbound struct {
	Type    string               `json:"type"` // "assistant_response", "history", "pong", "error"
	Message string               `json:"message,omitempty"`
	Step    string               `json:"current_step,omitempty"`
	Done    bool                 `json:"done,omitempty"`
	Patient *booking.PatientInfo `json:"patient_info,omitempty"`
	Turns   []TurnResponse       `json:"turns,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// WSHandler serves real-time chat for one session over a WebSocket.
type WSHandler struct {
	svc    *booking.Service
	logger *logging.Logger
}

func NewWSHandler(svc *booking.Service, logger *logging.Logger) *WSHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WSHandler{svc: svc, logger: logger}
}

func (h *WSHandler) Handle(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	websocket.Handler(func(conn *websocket.Conn) {
		h.serve(conn, r, sessionID)
	}).ServeHTTP(w, r)
}

func (h *WSHandler) serve(conn *websocket.Conn, r *http.Request, sessionID string) {
	ctx := r.Context()

	// Verify the session before accepting chat; replay history so a
	// reconnecting client sees the transcript.
	turns, err := h.svc.History(ctx, sessionID)
	if err != nil {
		_ = websocket.JSON.Send(conn, WSOutbound{Type: "error", Error: errorCode(err)})
		return
	}
	_ = websocket.JSON.Send(conn, WSOutbound{Type: "history", Turns: turnResponses(turns)})

	h.logger.Info("websocket opened", "session_id", sessionID)
	defer h.logger.Debug("websocket closed", "session_id", sessionID)

	for {
		var msg WSInbound
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			return
		}

		if msg.Type == "ping" {
			_ = websocket.JSON.Send(conn, WSOutbound{Type: "pong"})
			continue
		}
		if msg.Type != "message" || strings.TrimSpace(msg.Message) == "" {
			continue
		}

		result, err := h.svc.HandleMessage(ctx, sessionID, msg.Message)
		if err != nil {
			_ = websocket.JSON.Send(conn, WSOutbound{Type: "error", Error: errorCode(err)})
			if errors.Is(err, booking.ErrSessionNotFound) || errors.Is(err, booking.ErrSessionExpired) {
				return
			}
			continue
		}

		patient := result.Patient
		_ = websocket.JSON.Send(conn, WSOutbound{
			Type:    "assistant_response",
			Message: result.AssistantText,
			Step:    string(result.Step),
			Done:    result.Done,
			Patient: &patient,
		})
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, booking.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, booking.ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, booking.ErrSessionBusy):
		return "session_busy"
	default:
		return "internal_error"
	}
}
