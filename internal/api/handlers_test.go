package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/medbook/booking-assistant/internal/booking"
	"github.com/medbook/booking-assistant/internal/logging"
	redisclient "github.com/medbook/booking-assistant/internal/redis"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	catalog := booking.NewMemoryCatalog()
	catalog.AddDoctor(booking.Doctor{ID: "dr_smith", Name: "Dr. Smith", Specialty: "General Medicine"})
	catalog.AddDoctor(booking.Doctor{ID: "dr_johnson", Name: "Dr. Johnson", Specialty: "Cardiology"})
	catalog.AddSlot(booking.Slot{ID: uuid.New(), DoctorID: "dr_smith", StartTime: time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)})

	store := booking.NewRedisStore(client, time.Hour)
	locker := redisclient.NewRedisLocker(client, 5*time.Second)
	svc := booking.NewService(store, store, catalog, locker, logging.New("error"))

	srv := httptest.NewServer(NewRouter(RouterConfig{
		Service: svc,
		Redis:   client,
		Logger:  logging.New("error"),
		Env:     "test",
		Version: "test",
	}))
	t.Cleanup(srv.Close)
	return srv
}

func createSession(t *testing.T, srv *httptest.Server) CreateSessionResponse {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/sessions", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created CreateSessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	return created
}

func postChat(t *testing.T, srv *httptest.Server, sessionID, message string) (*http.Response, ChatResponse) {
	t.Helper()
	body, err := json.Marshal(ChatRequest{SessionID: sessionID, Message: message})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/api/chat", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var chat ChatResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&chat))
	}
	return resp, chat
}

func TestCreateSessionEndpoint(t *testing.T) {
	srv := newTestServer(t)

	created := createSession(t, srv)
	require.NotEmpty(t, created.SessionID)
	require.Equal(t, "active", created.Status)
	require.Contains(t, created.Greeting, "appointment")
}

func TestChatEndpointFullConversation(t *testing.T) {
	srv := newTestServer(t)
	created := createSession(t, srv)

	var last ChatResponse
	for _, msg := range []string{"Hi", "John Doe", "555 867 5309", "cough", "Smith", "1", "yes"} {
		resp, chat := postChat(t, srv, created.SessionID, msg)
		require.Equal(t, http.StatusOK, resp.StatusCode, "message %q", msg)
		last = chat
	}

	require.True(t, last.Done)
	require.Equal(t, "complete", last.Step)
	require.NotEmpty(t, last.AppointmentID)
	require.Equal(t, "John Doe", last.Patient.Name)
}

func TestChatEndpointValidation(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = postChat(t, srv, "", "Hi")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = postChat(t, srv, uuid.NewString(), "Hi")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionLifecycleEndpoints(t *testing.T) {
	srv := newTestServer(t)
	created := createSession(t, srv)

	resp, err := http.Get(srv.URL + "/api/sessions/" + created.SessionID)
	require.NoError(t, err)
	var sess SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	resp.Body.Close()
	require.Equal(t, "greeting", sess.Step)

	resp, err = http.Get(srv.URL + "/api/sessions?status=active")
	require.NoError(t, err)
	var list SessionListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Equal(t, 1, list.Total)

	resp, err = http.Get(srv.URL + "/api/sessions?status=bogus")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/"+created.SessionID, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/sessions/" + created.SessionID)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHistoryEndpoint(t *testing.T) {
	srv := newTestServer(t)
	created := createSession(t, srv)

	resp, _ := postChat(t, srv, created.SessionID, "Hi")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err := http.Get(srv.URL + "/api/chat-history/" + created.SessionID)
	require.NoError(t, err)
	var hist HistoryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&hist))
	resp.Body.Close()

	// greeting, user message, assistant reply
	require.Equal(t, 3, hist.Total)
	require.Equal(t, "assistant", hist.Turns[0].Sender)
	require.Equal(t, int64(1), hist.Turns[0].Seq)
	require.Equal(t, "user", hist.Turns[1].Sender)
	require.Equal(t, "Hi", hist.Turns[1].Text)
}

func TestWebSocketChat(t *testing.T) {
	srv := newTestServer(t)
	created := createSession(t, srv)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + created.SessionID
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	require.NoError(t, err)
	defer conn.Close()

	var history WSOutbound
	require.NoError(t, websocket.JSON.Receive(conn, &history))
	require.Equal(t, "history", history.Type)
	require.Len(t, history.Turns, 1)

	require.NoError(t, websocket.JSON.Send(conn, WSInbound{Type: "ping"}))
	var pong WSOutbound
	require.NoError(t, websocket.JSON.Receive(conn, &pong))
	require.Equal(t, "pong", pong.Type)

	require.NoError(t, websocket.JSON.Send(conn, WSInbound{Type: "message", Message: "Hi"}))
	var reply WSOutbound
	require.NoError(t, websocket.JSON.Receive(conn, &reply))
	require.Equal(t, "assistant_response", reply.Type)
	require.Equal(t, "collect_name", reply.Step)
	require.NotEmpty(t, reply.Message)
}

func TestWebSocketUnknownSession(t *testing.T) {
	srv := newTestServer(t)

	wsURL := fmt.Sprintf("ws%s/ws/%s", strings.TrimPrefix(srv.URL, "http"), uuid.NewString())
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	require.NoError(t, err)
	defer conn.Close()

	var out WSOutbound
	require.NoError(t, websocket.JSON.Receive(conn, &out))
	require.Equal(t, "error", out.Type)
	require.Equal(t, "session_not_found", out.Error)
}
