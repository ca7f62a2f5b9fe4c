package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medbook/booking-assistant/internal/booking"
)

func createSessionHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, greeting, err := svc.CreateSession(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusCreated, CreateSessionResponse{
			SessionID: sess.ID,
			Status:    string(sess.Status),
			CreatedAt: sess.CreatedAt,
			ExpiresAt: sess.ExpiresAt,
			Greeting:  greeting,
		})
	}
}

func getSessionHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := svc.GetSession(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse(sess))
	}
}

func listSessionsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := booking.SessionStatus(r.URL.Query().Get("status"))
		switch status {
		case "", booking.SessionActive, booking.SessionCompleted, booking.SessionExpired:
		default:
			writeError(w, http.StatusBadRequest, "invalid_status", "status must be active, completed or expired")
			return
		}

		sessions, err := svc.ListSessions(r.Context(), status)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := SessionListResponse{Sessions: make([]SessionResponse, 0, len(sessions))}
		for i := range sessions {
			resp.Sessions = append(resp.Sessions, sessionResponse(&sessions[i]))
		}
		resp.Total = len(resp.Sessions)
		writeJSON(w, http.StatusOK, resp)
	}
}

func deleteSessionHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
			handleSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "session deleted"})
	}
}

func chatHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if strings.TrimSpace(req.SessionID) == "" {
			writeError(w, http.StatusBadRequest, "missing_session_id", "session_id is required")
			return
		}

		result, err := svc.HandleMessage(r.Context(), req.SessionID, req.Message)
		if err != nil {
			handleSessionError(w, err)
			return
		}

		resp := ChatResponse{
			SessionID:         result.SessionID,
			AssistantResponse: result.AssistantText,
			Step:              string(result.Step),
			Done:              result.Done,
			Patient:           result.Patient,
		}
		if result.AppointmentID != uuid.Nil {
			resp.AppointmentID = result.AppointmentID.String()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func historyHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "id")
		turns, err := svc.History(r.Context(), sessionID)
		if err != nil {
			handleSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, HistoryResponse{
			SessionID: sessionID,
			Turns:     turnResponses(turns),
			Total:     len(turns),
		})
	}
}

func cleanupHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		removed, err := svc.CleanupExpired(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, CleanupResponse{Removed: removed})
	}
}

func handleSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, booking.ErrSessionExpired):
		writeError(w, http.StatusGone, "session_expired", err.Error())
	case errors.Is(err, booking.ErrSessionBusy):
		writeError(w, http.StatusConflict, "session_busy", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
