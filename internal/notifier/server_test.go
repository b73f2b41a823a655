package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"speedrss/internal/domain"
)

type fakeBroadcaster struct {
	outcome  Outcome
	err      error
	lastPost domain.Post
	calls    int
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, post domain.Post) (Outcome, error) {
	f.calls++
	f.lastPost = post
	if f.err != nil {
		return Outcome{}, f.err
	}
	return f.outcome, nil
}

func serveNotifier(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, req)
	return rec
}

func notifyBody() string {
	return `{"id":"post-1","sourceUrl":"https://x.com/alice/status/1","author":"@alice","title":"Hello world","content":"Hello world"}`
}

func TestNotifyDeliversToAllChats(t *testing.T) {
	relay := &fakeBroadcaster{outcome: Outcome{Attempted: 2, Sent: 2}}
	srv := NewServer(0, relay, newTestRegistry(t, "-1", "-2"), nullEntry())

	req := httptest.NewRequest(http.MethodPost, "/notify", strings.NewReader(notifyBody()))
	rec := serveNotifier(t, srv, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if relay.calls != 1 {
		t.Fatalf("expected one broadcast, got %d", relay.calls)
	}
	if relay.lastPost.SourceURL != "https://x.com/alice/status/1" {
		t.Fatalf("expected post to reach the relay, got %+v", relay.lastPost)
	}

	var body notifyResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !body.OK || body.Sent != 2 || body.Partial {
		t.Fatalf("unexpected response body: %+v", body)
	}
}

func TestNotifyRejectsMissingPayload(t *testing.T) {
	relay := &fakeBroadcaster{}
	srv := NewServer(0, relay, newTestRegistry(t), nullEntry())

	for _, payload := range []string{"", "{broken", `{"author":"@alice"}`} {
		req := httptest.NewRequest(http.MethodPost, "/notify", strings.NewReader(payload))
		rec := serveNotifier(t, srv, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("payload %q: expected 400, got %d", payload, rec.Code)
		}
	}

	if relay.calls != 0 {
		t.Fatalf("expected no broadcasts for rejected payloads, got %d", relay.calls)
	}
}

func TestNotifyUnconfiguredReturns503(t *testing.T) {
	srv := NewServer(0, nil, newTestRegistry(t), nullEntry())

	req := httptest.NewRequest(http.MethodPost, "/notify", strings.NewReader(notifyBody()))
	rec := serveNotifier(t, srv, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a configured bot, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !strings.Contains(body["error"], "TELEGRAM_TOKEN") {
		t.Fatalf("expected configuration hint in error, got %q", body["error"])
	}
}

func TestNotifyWithNoTargets(t *testing.T) {
	relay := &fakeBroadcaster{outcome: Outcome{}}
	srv := NewServer(0, relay, newTestRegistry(t), nullEntry())

	req := httptest.NewRequest(http.MethodPost, "/notify", strings.NewReader(notifyBody()))
	rec := serveNotifier(t, srv, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for empty registry, got %d", rec.Code)
	}

	var body notifyResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !body.OK || body.Message != noTargetsNotice {
		t.Fatalf("expected no-targets notice, got %+v", body)
	}
}

func TestNotifyAllFailedReturns502(t *testing.T) {
	relay := &fakeBroadcaster{outcome: Outcome{
		Attempted: 2,
		Errors: []DeliveryError{
			{ChatID: "-1", Error: "blocked"},
			{ChatID: "-2", Error: "chat not found"},
		},
	}}
	srv := NewServer(0, relay, newTestRegistry(t, "-1", "-2"), nullEntry())

	req := httptest.NewRequest(http.MethodPost, "/notify", strings.NewReader(notifyBody()))
	rec := serveNotifier(t, srv, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 when every delivery failed, got %d", rec.Code)
	}

	var body struct {
		Error   string          `json:"error"`
		Details []DeliveryError `json:"details"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Details) != 2 || body.Details[0].ChatID != "-1" {
		t.Fatalf("expected per-chat details, got %+v", body)
	}
}

func TestNotifyPartialReturns207(t *testing.T) {
	relay := &fakeBroadcaster{outcome: Outcome{
		Attempted: 3,
		Sent:      2,
		Errors:    []DeliveryError{{ChatID: "-2", Error: "blocked"}},
	}}
	srv := NewServer(0, relay, newTestRegistry(t, "-1", "-2", "-3"), nullEntry())

	req := httptest.NewRequest(http.MethodPost, "/notify", strings.NewReader(notifyBody()))
	rec := serveNotifier(t, srv, req)

	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("expected 207 for a partial delivery, got %d", rec.Code)
	}

	var body notifyResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !body.OK || !body.Partial || body.Sent != 2 || len(body.Errors) != 1 {
		t.Fatalf("unexpected response body: %+v", body)
	}
}

func TestNotifyBroadcastErrorReturns500(t *testing.T) {
	relay := &fakeBroadcaster{err: errors.New("relay broken")}
	srv := NewServer(0, relay, newTestRegistry(t), nullEntry())

	req := httptest.NewRequest(http.MethodPost, "/notify", strings.NewReader(notifyBody()))
	rec := serveNotifier(t, srv, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for a relay error, got %d", rec.Code)
	}
}

func TestNotifierHealthReportsConfigurationAndCount(t *testing.T) {
	srv := NewServer(0, &fakeBroadcaster{}, newTestRegistry(t, "-1", "-2"), nullEntry())

	rec := serveNotifier(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Status != "ok" || !body.Configured || body.ChatCount != 2 {
		t.Fatalf("unexpected health body: %+v", body)
	}
}

func TestNotifierHealthUnconfigured(t *testing.T) {
	srv := NewServer(0, nil, newTestRegistry(t), nullEntry())

	rec := serveNotifier(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Configured {
		t.Fatalf("expected configured=false without a relay")
	}
	if body.Status != "ok" {
		t.Fatalf("expected status ok even when unconfigured, got %q", body.Status)
	}
}
