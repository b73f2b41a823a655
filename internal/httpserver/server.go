// Package httpserver exposes the ingestion and feed endpoints of the feed
// service.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"speedrss/internal/domain"
	"speedrss/internal/extract"
	"speedrss/internal/feed"
	"speedrss/internal/ingest"
	"speedrss/internal/logging"
)

const (
	readHeaderTimeout = 2 * time.Second
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	mongoPingTimeout  = 2 * time.Second
)

// Submitter runs one URL submission through the ingestion pipeline.
type Submitter interface {
	Submit(ctx context.Context, rawURL string) (ingest.Result, error)
}

// PostReader serves feed queries and the administrative update path.
type PostReader interface {
	List(ctx context.Context, filter domain.ListFilter) ([]domain.Post, error)
	GetByID(ctx context.Context, id string) (domain.Post, error)
	Update(ctx context.Context, id string, update domain.PostUpdate) (domain.Post, error)
}

// MongoChecker defines the subset of store behavior required for health.
type MongoChecker interface {
	Ping(ctx context.Context) error
}

// PostCounter reports the stored post count for diagnostics.
type PostCounter interface {
	CountPosts(ctx context.Context) (int64, error)
}

// Server hosts the feed service HTTP surface and owns the underlying server.
type Server struct {
	server    *http.Server
	submitter Submitter
	posts     PostReader
	checker   MongoChecker
	counter   PostCounter
	logger    *logrus.Entry
}

// NewServer constructs the feed service server on the provided port.
func NewServer(port int, submitter Submitter, posts PostReader, checker MongoChecker, counter PostCounter, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logging.Logger()
	}

	srv := &Server{
		submitter: submitter,
		posts:     posts,
		checker:   checker,
		counter:   counter,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /submit", srv.handleSubmit)
	mux.HandleFunc("GET /feed", srv.handleFeed)
	mux.HandleFunc("GET /feed/rss", srv.handleFeedRSS)
	mux.HandleFunc("GET /posts/{id}", srv.handleGetPost)
	mux.HandleFunc("PATCH /posts/{id}", srv.handleUpdatePost)
	mux.HandleFunc("GET /health", srv.handleHealth)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
	}

	return srv
}

// ListenAndServe starts the server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event": "http_listen",
		"addr":  s.server.Addr,
	}).Info("starting feed server")

	if err := s.server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			s.logger.WithField("event", "http_stopped").Info("feed server stopped")
			return nil
		}

		return fmt.Errorf("feed server listen: %w", err)
	}

	s.logger.WithField("event", "http_stopped").Info("feed server stopped")
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

type submitRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, `Missing or invalid body: { "url": "<X status URL>" }`)
		return
	}

	result, err := s.submitter.Submit(r.Context(), req.URL)
	if err != nil {
		s.writeSubmitError(w, req.URL, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}

	writeJSON(w, status, feed.FromPost(result.Post))
}

// writeSubmitError maps pipeline failures onto the response contract:
// missing/malformed input is 400, content faults (invalid or unavailable
// remote post) are 422, upstream faults are 502.
func (s *Server) writeSubmitError(w http.ResponseWriter, rawURL string, err error) {
	var upstream *extract.UpstreamError

	switch {
	case errors.Is(err, ingest.ErrMissingURL):
		writeError(w, http.StatusBadRequest, `Missing or invalid body: { "url": "<X status URL>" }`)
	case errors.Is(err, ingest.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, "Invalid X/Twitter status URL. Use e.g. https://x.com/username/status/123...")
	case errors.Is(err, extract.ErrInvalidURL), errors.Is(err, extract.ErrUnavailable):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &upstream):
		s.logger.WithFields(logging.Fields{
			"event":      "submit_upstream_error",
			"source_url": rawURL,
		}).WithError(err).Warn("embed upstream failure")
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.WithFields(logging.Fields{
			"event":      "submit_error",
			"source_url": rawURL,
		}).WithError(err).Error("submission failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	filter, ok := s.parseListFilter(w, r)
	if !ok {
		return
	}

	posts, err := s.posts.List(r.Context(), filter)
	if err != nil {
		s.logger.WithField("event", "feed_error").WithError(err).Error("feed listing failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	allowCrossOrigin(w)
	writeJSON(w, http.StatusOK, map[string]any{"posts": feed.FromPosts(posts)})
}

func (s *Server) handleFeedRSS(w http.ResponseWriter, r *http.Request) {
	filter, ok := s.parseListFilter(w, r)
	if !ok {
		return
	}

	posts, err := s.posts.List(r.Context(), filter)
	if err != nil {
		s.logger.WithField("event", "feed_rss_error").WithError(err).Error("rss listing failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	baseURL := requestBaseURL(r)
	body, err := feed.RenderRSS(baseURL, baseURL+r.URL.RequestURI(), posts)
	if err != nil {
		s.logger.WithField("event", "feed_rss_error").WithError(err).Error("rss rendering failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	allowCrossOrigin(w)
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		s.logger.WithField("event", "feed_rss_write_error").WithError(err).Error("failed to write rss response")
	}
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	allowCrossOrigin(w)

	post, err := s.posts.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrPostNotFound) {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		s.logger.WithField("event", "get_post_error").WithError(err).Error("post lookup failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, feed.FromPost(post))
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	var update domain.PostUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid update body")
		return
	}

	post, err := s.posts.Update(r.Context(), r.PathValue("id"), update)
	if err != nil {
		if errors.Is(err, domain.ErrPostNotFound) {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		s.logger.WithField("event", "update_post_error").WithError(err).Error("post update failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, feed.FromPost(post))
}

type healthResponse struct {
	Status string `json:"status"`
	Mongo  string `json:"mongo,omitempty"`
	Posts  int64  `json:"posts"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}

	pingCtx, cancel := context.WithTimeout(r.Context(), mongoPingTimeout)
	defer cancel()

	if s.checker == nil {
		resp.Status = "degraded"
		resp.Mongo = "error"
		s.logger.WithField("event", "health_mongo_missing").Warn("mongo checker is not configured for health endpoint")
	} else if err := s.checker.Ping(pingCtx); err != nil {
		resp.Status = "degraded"
		resp.Mongo = "error"
		s.logger.WithField("event", "health_mongo_error").WithError(err).Warn("mongo ping failed during health check")
	}

	if s.counter != nil {
		if count, err := s.counter.CountPosts(pingCtx); err == nil {
			resp.Posts = count
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// parseListFilter reads limit/author/since query parameters. An absent limit
// defaults to 50; the repository clamps whatever value is passed through.
func (s *Server) parseListFilter(w http.ResponseWriter, r *http.Request) (domain.ListFilter, bool) {
	filter := domain.ListFilter{
		Limit:  domain.ListDefaultLimit,
		Author: r.URL.Query().Get("author"),
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit parameter")
			return domain.ListFilter{}, false
		}
		filter.Limit = limit
	}

	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid since parameter, expected RFC3339 timestamp")
			return domain.ListFilter{}, false
		}
		filter.Since = since
	}

	return filter, true
}

func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func allowCrossOrigin(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
