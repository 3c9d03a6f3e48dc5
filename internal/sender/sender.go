package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/speedwagon-io/hevt/internal/config"
	"github.com/speedwagon-io/hevt/internal/lib/logger/sl"
	"github.com/speedwagon-io/hevt/internal/model"
)

// StatusTransportError is reported when the request never got a response.
const StatusTransportError = -1

const maxBodyBytes = 64 << 10

// Pusher delivers one text to one target. Failures are reported in the
// result, never as an error.
type Pusher interface {
	Push(ctx context.Context, creds model.Credentials, target model.Target, text string) model.PushResult
}

type pushMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []pushMessage `json:"messages"`
}

// LineSender pushes text messages through the LINE Messaging API.
type LineSender struct {
	log         *slog.Logger
	endpoint    string
	client      *http.Client
	maxAttempts int
	backoff     *ExponentialBackoff
}

func NewLineSender(log *slog.Logger, cfg *config.NotifyConfig) *LineSender {
	attempts := cfg.Retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &LineSender{
		log:      log.With(slog.String("component", "sender")),
		endpoint: cfg.Endpoint,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxAttempts: attempts,
		backoff:     NewExponentialBackoff(cfg.Retry.InitialDelay, cfg.Retry.MaxDelay),
	}
}

func (s *LineSender) Push(ctx context.Context, creds model.Credentials, target model.Target, text string) model.PushResult {
	if creds.AccessToken == "" || target.ID == "" {
		return model.PushResult{Target: target, Body: "missing token or target id"}
	}

	payload, err := json.Marshal(pushRequest{
		To:       target.ID,
		Messages: []pushMessage{{Type: "text", Text: text}},
	})
	if err != nil {
		return model.PushResult{Target: target, StatusCode: StatusTransportError, Body: err.Error()}
	}

	var res model.PushResult
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		res = s.doPush(ctx, creds.AccessToken, target, payload)
		if res.OK || !retryable(res.StatusCode) || attempt == s.maxAttempts {
			break
		}

		s.log.Warn("push attempt failed",
			slog.String("target", target.ID),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", s.maxAttempts),
			slog.Int("status", res.StatusCode),
		)

		select {
		case <-ctx.Done():
			return model.PushResult{Target: target, StatusCode: StatusTransportError, Body: ctx.Err().Error()}
		case <-time.After(s.backoff.NextDelay(attempt - 1)):
		}
	}

	if !res.OK {
		s.log.Error("push failed",
			slog.String("target", target.ID),
			slog.Int("status", res.StatusCode),
			slog.String("body", res.Body),
		)
	}
	return res
}

func (s *LineSender) doPush(ctx context.Context, token string, target model.Target, payload []byte) model.PushResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return model.PushResult{Target: target, StatusCode: StatusTransportError, Body: err.Error()}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Debug("push request failed", slog.String("target", target.ID), sl.Err(err))
		return model.PushResult{Target: target, StatusCode: StatusTransportError, Body: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	return model.PushResult{
		Target:     target,
		OK:         resp.StatusCode < 300,
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
}

func retryable(status int) bool {
	return status == StatusTransportError || status == http.StatusTooManyRequests || status >= 500
}

// PushAll pushes text to every target in order. Each target gets its own
// result; one failure does not stop the rest.
func PushAll(ctx context.Context, p Pusher, creds model.Credentials, targets []model.Target, text string) []model.PushResult {
	results := make([]model.PushResult, 0, len(targets))
	for _, t := range targets {
		results = append(results, p.Push(ctx, creds, t, text))
	}
	return results
}

// LogSender logs notifications instead of pushing them (dry-run mode).
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Push(ctx context.Context, creds model.Credentials, target model.Target, text string) model.PushResult {
	if creds.AccessToken == "" || target.ID == "" {
		return model.PushResult{Target: target, Body: "missing token or target id"}
	}

	s.log.Info("PUSH",
		slog.String("target_kind", string(target.Kind)),
		slog.String("target_id", target.ID),
		slog.String("text", text),
	)

	return model.PushResult{Target: target, OK: true, StatusCode: http.StatusOK, Body: "dry-run"}
}
