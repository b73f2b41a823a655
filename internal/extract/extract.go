// Package extract validates status URLs and derives post content from the
// third-party oEmbed endpoint.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"speedrss/internal/logging"
)

const (
	defaultTimeout = 15 * time.Second

	// unknownHandle is used when neither author URL nor display name yields
	// a usable handle.
	unknownHandle = "unknown"

	// emptyContent is stored when the embed carries no body text.
	emptyContent = "(no text)"

	titleMaxLen  = 100
	titleCutLen  = 97
	titleTrailer = "…"
)

var (
	// ErrInvalidURL reports that the input does not match the accepted
	// status-URL shape.
	ErrInvalidURL = errors.New("invalid status url")

	// ErrUnavailable reports a private or deleted post (upstream 404/403).
	ErrUnavailable = errors.New("post not found or unavailable (private/deleted)")
)

// UpstreamError reports a third-party embed failure that is not the caller's
// fault: an unexpected HTTP status, a transport error, or a malformed body.
type UpstreamError struct {
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch embed: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("fetch embed: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

var statusURLPattern = regexp.MustCompile(`(?i)^https?://(www\.)?(x\.com|twitter\.com)/[^/]+/status/\d+(\?.*)?$`)

// IsStatusURL reports whether the candidate matches the accepted source
// format: http(s)://[www.]{x.com|twitter.com}/<segment>/status/<digits> with
// an optional query string.
func IsStatusURL(candidate string) bool {
	return statusURLPattern.MatchString(strings.TrimSpace(candidate))
}

// Result holds the fields derived from one embed response. It is transient
// and folded into a Post by the ingestion pipeline.
type Result struct {
	Author            string
	AuthorURL         string
	AuthorDisplayName string
	Title             string
	Content           string
}

type oembedResponse struct {
	AuthorName string `json:"author_name"`
	AuthorURL  string `json:"author_url"`
	HTML       string `json:"html"`
}

// Client fetches embed data over HTTP. The endpoint is configurable so tests
// can point it at a local stub.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *logrus.Entry
}

// NewClient constructs an extraction client for the given oEmbed endpoint.
func NewClient(endpoint string, logger *logrus.Entry) *Client {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

// Extract fetches and normalizes the embed for a status URL. A single
// upstream failure is surfaced immediately; there are no retries.
func (c *Client) Extract(ctx context.Context, rawURL string) (Result, error) {
	if c == nil || c.httpClient == nil {
		return Result{}, errors.New("extract client is not initialized")
	}
	if ctx == nil {
		return Result{}, errors.New("context is required")
	}

	trimmed := strings.TrimSpace(rawURL)
	if !IsStatusURL(trimmed) {
		return Result{}, ErrInvalidURL
	}

	requestURL := c.endpoint + "?url=" + url.QueryEscape(trimmed)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden {
		return Result{}, ErrUnavailable
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, &UpstreamError{StatusCode: resp.StatusCode}
	}

	var body oembedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, &UpstreamError{Err: fmt.Errorf("decode embed response: %w", err)}
	}

	result := deriveResult(body)

	c.logger.WithFields(logging.Fields{
		"event":      "extract_ok",
		"source_url": trimmed,
		"author":     result.Author,
	}).Debug("extracted post content")

	return result, nil
}

func deriveResult(body oembedResponse) Result {
	author := body.AuthorName
	if body.AuthorURL != "" {
		author = handleFromAuthorURL(body.AuthorURL)
	}
	if author == "" {
		author = unknownHandle
	}

	text := stripHTML(body.HTML)

	title := text
	if runes := []rune(text); len(runes) > titleMaxLen {
		title = string(runes[:titleCutLen]) + titleTrailer
	}
	if title == "" {
		title = author
	}

	content := text
	if content == "" {
		content = emptyContent
	}

	return Result{
		Author:            author,
		AuthorURL:         body.AuthorURL,
		AuthorDisplayName: body.AuthorName,
		Title:             title,
		Content:           content,
	}
}

// handleFromAuthorURL derives an @handle from the first non-empty path
// segment of the author profile URL.
func handleFromAuthorURL(authorURL string) string {
	parsed, err := url.Parse(authorURL)
	if err != nil {
		return unknownHandle
	}

	for _, segment := range strings.Split(parsed.Path, "/") {
		if segment != "" {
			return "@" + segment
		}
	}

	return unknownHandle
}

var (
	scriptPattern     = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// stripHTML removes script blocks entirely, replaces remaining tags with a
// single space, collapses whitespace, and trims.
func stripHTML(html string) string {
	text := scriptPattern.ReplaceAllString(html, "")
	text = tagPattern.ReplaceAllString(text, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
