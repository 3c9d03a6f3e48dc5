package sender

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/speedwagon-io/hevt/internal/config"
	"github.com/speedwagon-io/hevt/internal/lib/logger/sl"
	"github.com/speedwagon-io/hevt/internal/model"
)

func newTestSender(endpoint string, attempts int) *LineSender {
	return NewLineSender(sl.Discard(), &config.NotifyConfig{
		Endpoint: endpoint,
		Timeout:  time.Second,
		Retry: config.RetryConfig{
			MaxAttempts:  attempts,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
		},
	})
}

var creds = model.Credentials{AccessToken: "tok"}

func TestPushSendsExpectedRequest(t *testing.T) {
	var gotAuth, gotType string
	var gotBody pushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	res := newTestSender(srv.URL, 1).Push(context.Background(), creds, model.Target{Kind: model.TargetUser, ID: "U1"}, "hot")
	if !res.OK || res.StatusCode != http.StatusOK || res.Body != "{}" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if gotAuth != "Bearer tok" || gotType != "application/json" {
		t.Fatalf("unexpected headers: auth=%q type=%q", gotAuth, gotType)
	}
	if gotBody.To != "U1" || len(gotBody.Messages) != 1 || gotBody.Messages[0].Type != "text" || gotBody.Messages[0].Text != "hot" {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
}

func TestPushMissingCredentialsSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	s := newTestSender(srv.URL, 1)
	if res := s.Push(context.Background(), model.Credentials{}, model.Target{ID: "U1"}, "x"); res.OK {
		t.Fatalf("expected failure without token")
	}
	if res := s.Push(context.Background(), creds, model.Target{}, "x"); res.OK {
		t.Fatalf("expected failure without target id")
	}
	if calls.Load() != 0 {
		t.Fatalf("no request should be made, got %d", calls.Load())
	}
}

func TestPushTransportErrorIsNegativeStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := newTestSender(url, 1).Push(context.Background(), creds, model.Target{ID: "C1"}, "x")
	if res.OK || res.StatusCode != StatusTransportError || res.Body == "" {
		t.Fatalf("expected transport failure result, got %+v", res)
	}
}

func TestPushRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res := newTestSender(srv.URL, 3).Push(context.Background(), creds, model.Target{ID: "C1"}, "x")
	if !res.OK || calls.Load() != 3 {
		t.Fatalf("expected success on third attempt, got %+v after %d calls", res, calls.Load())
	}
}

func TestPushDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"The property, 'to', in the request body is invalid"}`))
	}))
	defer srv.Close()

	res := newTestSender(srv.URL, 3).Push(context.Background(), creds, model.Target{ID: "bad"}, "x")
	if res.OK || res.StatusCode != http.StatusBadRequest || calls.Load() != 1 {
		t.Fatalf("unexpected result %+v after %d calls", res, calls.Load())
	}
}

func TestPushAllIndependentResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body pushRequest
		json.NewDecoder(r.Body).Decode(&body)
		if strings.HasPrefix(body.To, "C") {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte("not a member"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	targets := []model.Target{
		{Kind: model.TargetGroup, ID: "C1"},
		{Kind: model.TargetUser, ID: "U1"},
	}
	results := PushAll(context.Background(), newTestSender(srv.URL, 1), creds, targets, "x")
	if len(results) != 2 {
		t.Fatalf("expected two results, got %d", len(results))
	}
	if results[0].Target.ID != "C1" || results[0].OK || results[0].StatusCode != http.StatusForbidden || results[0].Body != "not a member" {
		t.Fatalf("unexpected group result: %+v", results[0])
	}
	if results[1].Target.ID != "U1" || !results[1].OK || results[1].StatusCode != http.StatusOK {
		t.Fatalf("unexpected user result: %+v", results[1])
	}
}

func TestLogSender(t *testing.T) {
	s := NewLogSender(sl.Discard())
	if res := s.Push(context.Background(), creds, model.Target{ID: "U1"}, "x"); !res.OK {
		t.Fatalf("dry-run push should succeed: %+v", res)
	}
	if res := s.Push(context.Background(), model.Credentials{}, model.Target{ID: "U1"}, "x"); res.OK {
		t.Fatalf("dry-run push still requires a token")
	}
}

func TestBackoffCapped(t *testing.T) {
	b := NewExponentialBackoff(10*time.Millisecond, 50*time.Millisecond)
	for attempt := 0; attempt < 10; attempt++ {
		if d := b.NextDelay(attempt); d <= 0 || d > 50*time.Millisecond {
			t.Fatalf("attempt %d: delay %s out of range", attempt, d)
		}
	}
}
