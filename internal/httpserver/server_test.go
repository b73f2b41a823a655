package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"speedrss/internal/domain"
	"speedrss/internal/extract"
	"speedrss/internal/ingest"
)

type fakeSubmitter struct {
	result  ingest.Result
	err     error
	lastURL string
}

func (f *fakeSubmitter) Submit(_ context.Context, rawURL string) (ingest.Result, error) {
	f.lastURL = rawURL
	if f.err != nil {
		return ingest.Result{}, f.err
	}
	return f.result, nil
}

type fakePostReader struct {
	posts      []domain.Post
	post       domain.Post
	listErr    error
	getErr     error
	updateErr  error
	lastFilter domain.ListFilter
	lastID     string
	lastUpdate domain.PostUpdate
}

func (f *fakePostReader) List(_ context.Context, filter domain.ListFilter) ([]domain.Post, error) {
	f.lastFilter = filter
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.posts, nil
}

func (f *fakePostReader) GetByID(_ context.Context, id string) (domain.Post, error) {
	f.lastID = id
	if f.getErr != nil {
		return domain.Post{}, f.getErr
	}
	return f.post, nil
}

func (f *fakePostReader) Update(_ context.Context, id string, update domain.PostUpdate) (domain.Post, error) {
	f.lastID = id
	f.lastUpdate = update
	if f.updateErr != nil {
		return domain.Post{}, f.updateErr
	}
	return f.post, nil
}

type fakeChecker struct {
	err error
}

func (f *fakeChecker) Ping(context.Context) error {
	return f.err
}

type fakeCounter struct {
	count int64
	err   error
}

func (f *fakeCounter) CountPosts(context.Context) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.count, nil
}

func postFixture() domain.Post {
	return domain.Post{
		ID:        "post-1",
		SourceURL: "https://x.com/alice/status/1",
		Author:    "@alice",
		Title:     "Hello world",
		Content:   "Hello world",
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newTestServer(submitter Submitter, posts PostReader, checker MongoChecker, counter PostCounter) *Server {
	nullLogger, _ := test.NewNullLogger()
	return NewServer(0, submitter, posts, checker, counter, nullLogger.WithField("service", "test"))
}

func serve(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestSubmitCreatedReturns201(t *testing.T) {
	submitter := &fakeSubmitter{result: ingest.Result{Post: postFixture(), Created: true}}
	srv := newTestServer(submitter, &fakePostReader{}, &fakeChecker{}, &fakeCounter{})

	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(`{"url":"https://x.com/alice/status/1"}`))
	rec := serve(t, srv, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if submitter.lastURL != "https://x.com/alice/status/1" {
		t.Fatalf("expected url to reach the pipeline, got %q", submitter.lastURL)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["id"] != "post-1" || body["sourceUrl"] != "https://x.com/alice/status/1" {
		t.Fatalf("unexpected response body: %v", body)
	}
}

func TestSubmitDuplicateReturns200(t *testing.T) {
	submitter := &fakeSubmitter{result: ingest.Result{Post: postFixture(), Created: false}}
	srv := newTestServer(submitter, &fakePostReader{}, &fakeChecker{}, &fakeCounter{})

	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(`{"url":"https://x.com/alice/status/1"}`))
	rec := serve(t, srv, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for resubmission, got %d", rec.Code)
	}
}

func TestSubmitErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{"malformed body", "{not json", nil, http.StatusBadRequest},
		{"missing url", `{}`, ingest.ErrMissingURL, http.StatusBadRequest},
		{"invalid url", `{"url":"https://example.com/x"}`, ingest.ErrInvalidURL, http.StatusBadRequest},
		{"unavailable post", `{"url":"https://x.com/a/status/1"}`, extract.ErrUnavailable, http.StatusUnprocessableEntity},
		{"invalid at extraction", `{"url":"https://x.com/a/status/1"}`, extract.ErrInvalidURL, http.StatusUnprocessableEntity},
		{"upstream status", `{"url":"https://x.com/a/status/1"}`, &extract.UpstreamError{StatusCode: 500}, http.StatusBadGateway},
		{"upstream transport", `{"url":"https://x.com/a/status/1"}`, &extract.UpstreamError{Err: errors.New("timeout")}, http.StatusBadGateway},
		{"storage failure", `{"url":"https://x.com/a/status/1"}`, errors.New("mongo down"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(&fakeSubmitter{err: tc.err}, &fakePostReader{}, &fakeChecker{}, &fakeCounter{})

			req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(tc.body))
			rec := serve(t, srv, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}

			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode error body: %v", err)
			}
			if body["error"] == "" {
				t.Fatalf("expected an error message in the body")
			}
		})
	}
}

func TestFeedReturnsPostsWithCORS(t *testing.T) {
	posts := &fakePostReader{posts: []domain.Post{postFixture()}}
	srv := newTestServer(&fakeSubmitter{}, posts, &fakeChecker{}, &fakeCounter{})

	rec := serve(t, srv, httptest.NewRequest(http.MethodGet, "/feed", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected permissive CORS header")
	}
	if posts.lastFilter.Limit != domain.ListDefaultLimit {
		t.Fatalf("expected default limit %d, got %d", domain.ListDefaultLimit, posts.lastFilter.Limit)
	}

	var body struct {
		Posts []struct {
			ID string `json:"id"`
		} `json:"posts"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Posts) != 1 || body.Posts[0].ID != "post-1" {
		t.Fatalf("unexpected feed body: %+v", body)
	}
}

func TestFeedPassesQueryFilters(t *testing.T) {
	posts := &fakePostReader{}
	srv := newTestServer(&fakeSubmitter{}, posts, &fakeChecker{}, &fakeCounter{})

	rec := serve(t, srv, httptest.NewRequest(http.MethodGet, "/feed?limit=5&author=%40alice&since=2026-08-01T00:00:00Z", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if posts.lastFilter.Limit != 5 {
		t.Fatalf("expected limit 5, got %d", posts.lastFilter.Limit)
	}
	if posts.lastFilter.Author != "@alice" {
		t.Fatalf("expected author filter, got %q", posts.lastFilter.Author)
	}
	want := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if !posts.lastFilter.Since.Equal(want) {
		t.Fatalf("expected since %v, got %v", want, posts.lastFilter.Since)
	}
}

func TestFeedRejectsBadQueryParameters(t *testing.T) {
	srv := newTestServer(&fakeSubmitter{}, &fakePostReader{}, &fakeChecker{}, &fakeCounter{})

	for _, target := range []string{"/feed?limit=abc", "/feed?since=yesterday"} {
		rec := serve(t, srv, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestFeedForwardsOutOfRangeLimitsForClamping(t *testing.T) {
	posts := &fakePostReader{}
	srv := newTestServer(&fakeSubmitter{}, posts, &fakeChecker{}, &fakeCounter{})

	serve(t, srv, httptest.NewRequest(http.MethodGet, "/feed?limit=1000", nil))
	if posts.lastFilter.Limit != 1000 {
		t.Fatalf("expected raw limit to pass through for repository clamping, got %d", posts.lastFilter.Limit)
	}

	serve(t, srv, httptest.NewRequest(http.MethodGet, "/feed?limit=0", nil))
	if posts.lastFilter.Limit != 0 {
		t.Fatalf("expected explicit zero limit to pass through, got %d", posts.lastFilter.Limit)
	}
}

func TestFeedRSSRendersDocument(t *testing.T) {
	posts := &fakePostReader{posts: []domain.Post{postFixture()}}
	srv := newTestServer(&fakeSubmitter{}, posts, &fakeChecker{}, &fakeCounter{})

	req := httptest.NewRequest(http.MethodGet, "/feed/rss", nil)
	req.Host = "feeds.example.com"
	rec := serve(t, srv, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/rss+xml; charset=utf-8" {
		t.Fatalf("expected rss content type, got %q", ct)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected permissive CORS header")
	}

	doc := rec.Body.String()
	if !strings.Contains(doc, `<rss version="2.0"`) {
		t.Fatalf("expected rss document, got:\n%s", doc)
	}
	if !strings.Contains(doc, "http://feeds.example.com/feed</link>") {
		t.Fatalf("expected channel link derived from request host, got:\n%s", doc)
	}
	if !strings.Contains(doc, `href="http://feeds.example.com/feed/rss"`) {
		t.Fatalf("expected self link, got:\n%s", doc)
	}
}

func TestGetPostByID(t *testing.T) {
	posts := &fakePostReader{post: postFixture()}
	srv := newTestServer(&fakeSubmitter{}, posts, &fakeChecker{}, &fakeCounter{})

	rec := serve(t, srv, httptest.NewRequest(http.MethodGet, "/posts/post-1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if posts.lastID != "post-1" {
		t.Fatalf("expected lookup for post-1, got %q", posts.lastID)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected permissive CORS header")
	}
}

func TestGetPostNotFound(t *testing.T) {
	posts := &fakePostReader{getErr: domain.ErrPostNotFound}
	srv := newTestServer(&fakeSubmitter{}, posts, &fakeChecker{}, &fakeCounter{})

	rec := serve(t, srv, httptest.NewRequest(http.MethodGet, "/posts/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestUpdatePostAppliesPartialUpdate(t *testing.T) {
	updated := postFixture()
	updated.Title = "Edited"
	posts := &fakePostReader{post: updated}
	srv := newTestServer(&fakeSubmitter{}, posts, &fakeChecker{}, &fakeCounter{})

	req := httptest.NewRequest(http.MethodPatch, "/posts/post-1", strings.NewReader(`{"title":"Edited"}`))
	rec := serve(t, srv, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if posts.lastUpdate.Title == nil || *posts.lastUpdate.Title != "Edited" {
		t.Fatalf("expected title update to reach the repository, got %+v", posts.lastUpdate)
	}
	if posts.lastUpdate.Author != nil {
		t.Fatalf("expected absent fields to stay nil")
	}
}

func TestUpdatePostNotFound(t *testing.T) {
	posts := &fakePostReader{updateErr: domain.ErrPostNotFound}
	srv := newTestServer(&fakeSubmitter{}, posts, &fakeChecker{}, &fakeCounter{})

	req := httptest.NewRequest(http.MethodPatch, "/posts/missing", strings.NewReader(`{"title":"x"}`))
	rec := serve(t, srv, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestUpdatePostRejectsMalformedBody(t *testing.T) {
	srv := newTestServer(&fakeSubmitter{}, &fakePostReader{}, &fakeChecker{}, &fakeCounter{})

	req := httptest.NewRequest(http.MethodPatch, "/posts/post-1", strings.NewReader("{broken"))
	rec := serve(t, srv, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHealthReportsOKWithPostCount(t *testing.T) {
	srv := newTestServer(&fakeSubmitter{}, &fakePostReader{}, &fakeChecker{}, &fakeCounter{count: 7})

	rec := serve(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode health body: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %q", body.Status)
	}
	if body.Posts != 7 {
		t.Fatalf("expected post count 7, got %d", body.Posts)
	}
}

func TestHealthDegradedOnMongoFailure(t *testing.T) {
	srv := newTestServer(&fakeSubmitter{}, &fakePostReader{}, &fakeChecker{err: errors.New("ping failed")}, &fakeCounter{})

	rec := serve(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode health body: %v", err)
	}
	if body.Status != "degraded" || body.Mongo != "error" {
		t.Fatalf("expected degraded health with mongo error, got %+v", body)
	}
}

func TestMethodNotAllowedOnFeed(t *testing.T) {
	srv := newTestServer(&fakeSubmitter{}, &fakePostReader{}, &fakeChecker{}, &fakeCounter{})

	rec := serve(t, srv, httptest.NewRequest(http.MethodPost, "/feed", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
