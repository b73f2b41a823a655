// Package domain defines the post model and its persistence operations.
package domain

import "time"

// Post is a stored feed entry extracted from an external status URL. The
// source URL is unique per post and immutable once created.
type Post struct {
	ID                string    `bson:"_id" json:"id"`
	SourceURL         string    `bson:"source_url" json:"sourceUrl"`
	Author            string    `bson:"author" json:"author"`
	AuthorURL         string    `bson:"author_url,omitempty" json:"authorUrl,omitempty"`
	AuthorDisplayName string    `bson:"author_display_name,omitempty" json:"authorDisplayName,omitempty"`
	Title             string    `bson:"title" json:"title"`
	Content           string    `bson:"content" json:"content"`
	CreatedAt         time.Time `bson:"created_at" json:"createdAt"`
}

// PostUpdate carries the amendable fields for the administrative update path.
// Nil fields retain their prior value.
type PostUpdate struct {
	Author            *string `json:"author"`
	AuthorURL         *string `json:"authorUrl"`
	AuthorDisplayName *string `json:"authorDisplayName"`
	Title             *string `json:"title"`
	Content           *string `json:"content"`
}

// ListFilter narrows and bounds a post listing. Limit is clamped to [1,100]
// by the repository; callers apply their own default for an absent limit.
type ListFilter struct {
	Limit  int
	Author string
	Since  time.Time
}
