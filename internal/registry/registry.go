// Package registry maintains the durable set of notification target chat ids
// in a JSON file artifact.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"speedrss/internal/logging"
)

// Registry is a file-backed chat id set. Every read reloads the file and
// every mutation rewrites it, so staleness is bounded by the gap between
// operations. A missing or corrupt file is treated as an empty set.
type Registry struct {
	path   string
	logger *logrus.Entry
}

// New constructs a Registry persisting to the given file path.
func New(path string, logger *logrus.Entry) *Registry {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registry{
		path:   path,
		logger: logger,
	}
}

// Load reads the registered chat ids from disk. The canonical shape is a
// JSON array of strings; the legacy {"chatIds": [...]} object and numeric
// ids are tolerated.
func (r *Registry) Load() []string {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.logger.WithField("event", "registry_read_error").WithError(err).Warn("failed to read chats file, treating as empty")
		}
		return []string{}
	}

	ids, err := decodeChatIDs(raw)
	if err != nil {
		r.logger.WithField("event", "registry_decode_error").WithError(err).Warn("corrupt chats file, treating as empty")
		return []string{}
	}

	return ids
}

// Count returns the number of registered chat ids.
func (r *Registry) Count() int {
	return len(r.Load())
}

// Add registers a chat id, returning true only when it was newly added. An
// id that is empty after trimming is rejected.
func (r *Registry) Add(chatID string) (bool, error) {
	if r == nil {
		return false, errors.New("registry is not initialized")
	}

	id := strings.TrimSpace(chatID)
	if id == "" {
		return false, nil
	}

	ids := r.Load()
	for _, existing := range ids {
		if existing == id {
			return false, nil
		}
	}

	ids = append(ids, id)
	if err := r.save(ids); err != nil {
		return false, err
	}

	return true, nil
}

// Remove deregisters a chat id; removing an absent id is a no-op.
func (r *Registry) Remove(chatID string) error {
	if r == nil {
		return errors.New("registry is not initialized")
	}

	id := strings.TrimSpace(chatID)
	ids := r.Load()

	kept := make([]string, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}

	if len(kept) == len(ids) {
		return nil
	}

	return r.save(kept)
}

// save rewrites the backing file via a temp file and rename. The poller is
// the only writer, so this read-modify-write needs no locking.
func (r *Registry) save(ids []string) error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create chats dir: %w", err)
	}

	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal chat ids: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "chats-*.json")
	if err != nil {
		return fmt.Errorf("create temp chats file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write chats file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close chats file: %w", err)
	}

	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace chats file: %w", err)
	}

	return nil
}

func decodeChatIDs(raw []byte) ([]string, error) {
	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		return stringifyIDs(list), nil
	}

	var legacy struct {
		ChatIDs []any `json:"chatIds"`
	}
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil, err
	}

	return stringifyIDs(legacy.ChatIDs), nil
}

func stringifyIDs(values []any) []string {
	ids := make([]string, 0, len(values))
	for _, value := range values {
		var id string
		switch v := value.(type) {
		case string:
			id = strings.TrimSpace(v)
		case float64:
			id = strconv.FormatInt(int64(v), 10)
		default:
			continue
		}
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
