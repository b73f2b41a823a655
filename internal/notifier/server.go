package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"speedrss/internal/domain"
	"speedrss/internal/logging"
	"speedrss/internal/registry"
)

const (
	readHeaderTimeout = 2 * time.Second
	broadcastTimeout  = 60 * time.Second

	noTargetsNotice = "No channels or groups added yet. Add the bot to a channel or group, then send /start there to register."
)

// Broadcaster delivers a post to every registered chat.
type Broadcaster interface {
	Broadcast(ctx context.Context, post domain.Post) (Outcome, error)
}

// Server hosts the notification endpoint and owns the underlying HTTP
// server. A nil relay marks the service as unconfigured: /notify answers 503
// while /health keeps reporting the registry size.
type Server struct {
	server   *http.Server
	relay    Broadcaster
	registry *registry.Registry
	logger   *logrus.Entry
}

// NewServer constructs a notifier server on the provided port.
func NewServer(port int, relay Broadcaster, reg *registry.Registry, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logging.Logger()
	}

	srv := &Server{
		relay:    relay,
		registry: reg,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /notify", srv.handleNotify)
	mux.HandleFunc("GET /health", srv.handleHealth)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv
}

// ListenAndServe starts the notifier server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event": "notify_listen",
		"addr":  s.server.Addr,
	}).Info("starting notifier server")

	if err := s.server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			s.logger.WithField("event", "notify_stopped").Info("notifier server stopped")
			return nil
		}

		return fmt.Errorf("notifier server listen: %w", err)
	}

	s.logger.WithField("event", "notify_stopped").Info("notifier server stopped")
	return nil
}

// Shutdown gracefully stops the notifier server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

type notifyResponse struct {
	OK      bool            `json:"ok"`
	Sent    int             `json:"sent"`
	Partial bool            `json:"partial,omitempty"`
	Message string          `json:"message,omitempty"`
	Errors  []DeliveryError `json:"errors,omitempty"`
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var post domain.Post
	if err := json.NewDecoder(r.Body).Decode(&post); err != nil || post.SourceURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing post payload or sourceUrl"})
		return
	}

	if s.relay == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Bot not configured: set TELEGRAM_TOKEN"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), broadcastTimeout)
	defer cancel()

	outcome, err := s.relay.Broadcast(ctx, post)
	if err != nil {
		s.logger.WithField("event", "notify_error").WithError(err).Error("broadcast failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	switch {
	case outcome.Attempted == 0:
		writeJSON(w, http.StatusOK, notifyResponse{
			OK:      true,
			Message: noTargetsNotice,
		})
	case outcome.AllFailed():
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":   "Failed to send to any chat",
			"details": outcome.Errors,
		})
	case outcome.Partial():
		writeJSON(w, http.StatusMultiStatus, notifyResponse{
			OK:      true,
			Partial: true,
			Sent:    outcome.Sent,
			Errors:  outcome.Errors,
		})
	default:
		writeJSON(w, http.StatusOK, notifyResponse{
			OK:   true,
			Sent: outcome.Sent,
		})
	}
}

type healthResponse struct {
	Status     string `json:"status"`
	Configured bool   `json:"configured"`
	ChatCount  int    `json:"chatCount"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:     "ok",
		Configured: s.relay != nil,
	}
	if s.registry != nil {
		resp.ChatCount = s.registry.Count()
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Logger().WithField("event", "notify_write_error").WithError(err).Error("failed to encode response")
	}
}
