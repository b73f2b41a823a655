package notifier

import (
	"context"
	"errors"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"speedrss/internal/domain"
	"speedrss/internal/logging"
	"speedrss/internal/registry"
)

// messageSender captures the subset of bot behavior the relay needs, allowing
// tests to substitute a fake for the Telegram client.
type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// DeliveryError records one failed delivery target.
type DeliveryError struct {
	ChatID string `json:"chatId"`
	Error  string `json:"error"`
}

// Outcome summarizes one broadcast: how many targets were attempted and
// which of them failed.
type Outcome struct {
	Attempted int
	Sent      int
	Errors    []DeliveryError
}

// AllFailed reports that every attempted delivery failed.
func (o Outcome) AllFailed() bool {
	return o.Attempted > 0 && o.Sent == 0
}

// Partial reports that some but not all deliveries failed.
func (o Outcome) Partial() bool {
	return len(o.Errors) > 0 && o.Sent > 0
}

// Relay formats a post and delivers it to every registered chat.
type Relay struct {
	sender   messageSender
	registry *registry.Registry
	logger   *logrus.Entry
}

// NewRelay constructs a Relay.
func NewRelay(sender messageSender, reg *registry.Registry, logger *logrus.Entry) *Relay {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Relay{
		sender:   sender,
		registry: reg,
		logger:   logger,
	}
}

// FormatMessage renders the delivery text: author line, cleaned body, and
// source URL separated by blank lines, with empty entries omitted.
func FormatMessage(post domain.Post) string {
	author := post.Author
	if author == "" {
		author = "Unknown"
	}

	lines := make([]string, 0, 3)
	for _, line := range []string{author, CleanContent(post.Content), post.SourceURL} {
		if line != "" {
			lines = append(lines, line)
		}
	}

	return strings.Join(lines, "\n\n")
}

// Broadcast delivers the post to every registered chat sequentially.
// Per-target failures are collected, never fatal to the batch.
func (r *Relay) Broadcast(ctx context.Context, post domain.Post) (Outcome, error) {
	if r == nil || r.sender == nil || r.registry == nil {
		return Outcome{}, errors.New("relay is not initialized")
	}
	if ctx == nil {
		return Outcome{}, errors.New("context is required")
	}

	chatIDs := r.registry.Load()
	outcome := Outcome{Attempted: len(chatIDs)}

	if len(chatIDs) == 0 {
		r.logger.WithField("event", "broadcast_no_targets").Info("no chats registered, nothing to deliver")
		return outcome, nil
	}

	text := FormatMessage(post)

	for _, chatID := range chatIDs {
		_, err := r.sender.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   text,
			LinkPreviewOptions: &models.LinkPreviewOptions{
				IsDisabled: bot.True(),
			},
		})
		if err != nil {
			outcome.Errors = append(outcome.Errors, DeliveryError{
				ChatID: chatID,
				Error:  err.Error(),
			})
			r.logger.WithFields(logging.Fields{
				"event":   "broadcast_target_failed",
				"chat_id": chatID,
				"post_id": post.ID,
			}).WithError(err).Warn("delivery to chat failed")
			continue
		}
		outcome.Sent++
	}

	r.logger.WithFields(logging.Fields{
		"event":   "broadcast_done",
		"post_id": post.ID,
		"sent":    outcome.Sent,
		"failed":  len(outcome.Errors),
	}).Info("broadcast finished")

	return outcome, nil
}
