package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// connectionTimingStats is posted after every successful open.
type connectionTimingStats struct {
	WebsocketPerformance struct {
		ConnectionTiming int64 `json:"connectionTiming"` // milliseconds
	} `json:"websocketPerformance"`
}

// connectionErrorStats is posted after every close.
type connectionErrorStats struct {
	WebsocketError struct {
		Error int `json:"error"`
	} `json:"websocketError"`
}

// statsReporter posts connection health to a stats endpoint. Posts are fire
// and forget; failures are only logged at debug level.
type statsReporter struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

func newStatsReporter(url string, httpClient *http.Client, logger *slog.Logger) *statsReporter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &statsReporter{url: url, httpClient: httpClient, logger: logger}
}

func (s *statsReporter) connectionTiming(d time.Duration) {
	var payload connectionTimingStats
	payload.WebsocketPerformance.ConnectionTiming = d.Milliseconds()
	s.send(payload)
}

func (s *statsReporter) connectionError() {
	var payload connectionErrorStats
	payload.WebsocketError.Error = 1
	s.send(payload)
}

func (s *statsReporter) send(payload any) {
	if s == nil || s.url == "" {
		return
	}
	go func() {
		if err := s.post(context.Background(), payload); err != nil {
			s.logger.Debug("failed to send websocket stats", "error", err)
		}
	}()
}

func (s *statsReporter) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("stats endpoint returned %d", resp.StatusCode)
	}
	return nil
}
