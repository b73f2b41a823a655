package domain

import "errors"

var (
	// ErrDuplicateSourceURL reports that a post with the same source URL
	// already exists. The unique index is the authoritative guard; callers
	// should treat this as an idempotent-resubmission signal.
	ErrDuplicateSourceURL = errors.New("post with this source url already exists")

	// ErrPostNotFound reports that no post matched the lookup key.
	ErrPostNotFound = errors.New("post not found")
)
