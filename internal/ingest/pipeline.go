// Package ingest orchestrates post submission: validate, dedup, extract,
// persist, and fan out the notification callback.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"speedrss/internal/domain"
	"speedrss/internal/extract"
	"speedrss/internal/logging"
)

const notifyTimeout = 10 * time.Second

var (
	// ErrMissingURL reports an empty or whitespace-only submission.
	ErrMissingURL = errors.New("missing url")

	// ErrInvalidURL reports a submission that does not match the accepted
	// status-URL format.
	ErrInvalidURL = errors.New("invalid status url format")
)

// PostStore is the subset of the post repository the pipeline depends on.
type PostStore interface {
	Create(ctx context.Context, post domain.Post) (domain.Post, error)
	FindBySourceURL(ctx context.Context, sourceURL string) (domain.Post, error)
}

// Extractor derives post content from a validated status URL.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (extract.Result, error)
}

// Result is the outcome of one submission. Created distinguishes a fresh post
// from an idempotent resubmission of an existing source URL.
type Result struct {
	Post    domain.Post
	Created bool
}

// Pipeline wires the submission workflow together. The notify URL is
// optional; when set, newly created posts are pushed to it on a detached
// goroutine whose result is only ever logged.
type Pipeline struct {
	store      PostStore
	extractor  Extractor
	notifyURL  string
	httpClient *http.Client
	logger     *logrus.Entry
}

// NewPipeline constructs a Pipeline.
func NewPipeline(store PostStore, extractor Extractor, notifyURL string, logger *logrus.Entry) *Pipeline {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Pipeline{
		store:      store,
		extractor:  extractor,
		notifyURL:  notifyURL,
		httpClient: &http.Client{Timeout: notifyTimeout},
		logger:     logger,
	}
}

// Submit runs one submission through the pipeline. Resubmitting a source URL
// that already has a post returns the existing post with Created=false; a
// duplicate-key race during create is resolved the same way.
func (p *Pipeline) Submit(ctx context.Context, rawURL string) (Result, error) {
	if p == nil || p.store == nil || p.extractor == nil {
		return Result{}, errors.New("pipeline is not initialized")
	}
	if ctx == nil {
		return Result{}, errors.New("context is required")
	}

	sourceURL := strings.TrimSpace(rawURL)
	if sourceURL == "" {
		return Result{}, ErrMissingURL
	}
	if !extract.IsStatusURL(sourceURL) {
		return Result{}, ErrInvalidURL
	}

	existing, err := p.store.FindBySourceURL(ctx, sourceURL)
	if err == nil {
		p.logger.WithFields(logging.Fields{
			"event":      "submit_duplicate",
			"post_id":    existing.ID,
			"source_url": sourceURL,
		}).Info("returning existing post for resubmitted url")
		return Result{Post: existing}, nil
	}
	if !errors.Is(err, domain.ErrPostNotFound) {
		return Result{}, fmt.Errorf("dedup lookup: %w", err)
	}

	extracted, err := p.extractor.Extract(ctx, sourceURL)
	if err != nil {
		return Result{}, err
	}

	post, err := p.store.Create(ctx, domain.Post{
		SourceURL:         sourceURL,
		Author:            extracted.Author,
		AuthorURL:         extracted.AuthorURL,
		AuthorDisplayName: extracted.AuthorDisplayName,
		Title:             extracted.Title,
		Content:           extracted.Content,
	})
	if errors.Is(err, domain.ErrDuplicateSourceURL) {
		// Lost a race with a concurrent submission; the unique index is the
		// authoritative dedup signal, so surface the winner's row.
		winner, findErr := p.store.FindBySourceURL(ctx, sourceURL)
		if findErr != nil {
			return Result{}, fmt.Errorf("refetch after duplicate: %w", findErr)
		}
		return Result{Post: winner}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("persist post: %w", err)
	}

	p.logger.WithFields(logging.Fields{
		"event":      "post_created",
		"post_id":    post.ID,
		"source_url": post.SourceURL,
		"author":     post.Author,
	}).Info("stored new post")

	p.dispatchNotification(post)

	return Result{Post: post, Created: true}, nil
}

// dispatchNotification pushes the post to the notifier without blocking the
// submission response. Failures are logged and never surfaced to the
// submitter.
func (p *Pipeline) dispatchNotification(post domain.Post) {
	if p.notifyURL == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if err := p.postNotification(ctx, post); err != nil {
			p.logger.WithFields(logging.Fields{
				"event":   "notify_failed",
				"post_id": post.ID,
			}).WithError(err).Warn("notification callback failed")
		}
	}()
}

func (p *Pipeline) postNotification(ctx context.Context, post domain.Post) error {
	payload, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("marshal post: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.notifyURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build notify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify endpoint returned status %d", resp.StatusCode)
	}

	return nil
}
