package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/medbook/booking-assistant/internal/logging"
)

// The simulator drives complete booking conversations against a running
// api-server. All workers prefer the same doctor so slot races actually
// happen and conflict recovery gets exercised.

type SimConfig struct {
	APIBaseURL string
	Workers    int
	Sessions   int // conversations per worker
	Doctor     string
}

type Metrics struct {
	Conversations int64
	Completed     int64
	Reprompts     int64
	Errors        int64
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL: "http://127.0.0.1:8080",
		Workers:    4,
		Sessions:   5,
		Doctor:     "Smith",
	}
	if v := os.Getenv("SIM_API_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("SIM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("SIM_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Sessions = n
		}
	}
	if v := os.Getenv("SIM_DOCTOR"); v != "" {
		cfg.Doctor = v
	}
	return cfg
}

func main() {
	logger := logging.Default()
	cfg := loadConfig()
	logger.Info("simulator starting", "api", cfg.APIBaseURL, "workers", cfg.Workers, "sessions_per_worker", cfg.Sessions)

	gofakeit.Seed(time.Now().UnixNano())

	client := &http.Client{Timeout: 15 * time.Second}
	var metrics Metrics
	var wg sync.WaitGroup

	start := time.Now()
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < cfg.Sessions; i++ {
				runConversation(context.Background(), client, cfg, &metrics, logger)
			}
		}()
	}
	wg.Wait()

	logger.Info("simulation complete",
		"duration", time.Since(start).String(),
		"conversations", atomic.LoadInt64(&metrics.Conversations),
		"completed", atomic.LoadInt64(&metrics.Completed),
		"reprompts", atomic.LoadInt64(&metrics.Reprompts),
		"errors", atomic.LoadInt64(&metrics.Errors),
	)
}

type chatResponse struct {
	AssistantResponse string `json:"assistant_response"`
	Step              string `json:"current_step"`
	Done              bool   `json:"done"`
	AppointmentID     string `json:"appointment_id"`
}

func runConversation(ctx context.Context, client *http.Client, cfg SimConfig, m *Metrics, logger *logging.Logger) {
	atomic.AddInt64(&m.Conversations, 1)

	sessionID, err := createSession(ctx, client, cfg.APIBaseURL)
	if err != nil {
		atomic.AddInt64(&m.Errors, 1)
		logger.Error("create session failed", "error", err)
		return
	}

	// Scripted utterances; slot selection picks a random list index so
	// concurrent conversations collide on popular slots.
	script := []string{
		"Hi there",
		gofakeit.Name(),
		gofakeit.Phone(),
		"I've had a persistent cough for a week",
		cfg.Doctor,
		strconv.Itoa(rand.Intn(3) + 1),
		"yes",
	}

	for _, utterance := range script {
		resp, err := sendMessage(ctx, client, cfg.APIBaseURL, sessionID, utterance)
		if err != nil {
			atomic.AddInt64(&m.Errors, 1)
			logger.Error("chat failed", "session_id", sessionID, "error", err)
			return
		}
		if resp.Done {
			atomic.AddInt64(&m.Completed, 1)
			logger.Info("conversation completed", "session_id", sessionID, "appointment_id", resp.AppointmentID)
			return
		}
	}

	// Script exhausted without completing: a re-ask (e.g. a lost slot race)
	// knocked the conversation off the happy path. Answer the final
	// re-prompts with fresh slot picks.
	for attempt := 0; attempt < 5; attempt++ {
		atomic.AddInt64(&m.Reprompts, 1)
		pick := strconv.Itoa(rand.Intn(3) + 1)
		resp, err := sendMessage(ctx, client, cfg.APIBaseURL, sessionID, pick)
		if err != nil {
			atomic.AddInt64(&m.Errors, 1)
			return
		}
		if resp.Step == "confirm" {
			resp, err = sendMessage(ctx, client, cfg.APIBaseURL, sessionID, "yes")
			if err != nil {
				atomic.AddInt64(&m.Errors, 1)
				return
			}
		}
		if resp.Done {
			atomic.AddInt64(&m.Completed, 1)
			return
		}
	}
	logger.Info("conversation abandoned", "session_id", sessionID)
}

func createSession(ctx context.Context, client *http.Client, baseURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/sessions", nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.SessionID, nil
}

func sendMessage(ctx context.Context, client *http.Client, baseURL, sessionID, text string) (*chatResponse, error) {
	payload, err := json.Marshal(map[string]string{
		"session_id": sessionID,
		"message":    text,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		// Per-session lock contention; retry once after a beat.
		time.Sleep(100 * time.Millisecond)
		return sendMessage(ctx, client, baseURL, sessionID, text)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return &body, nil
}
