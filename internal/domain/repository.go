package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// ListDefaultLimit is applied by callers when no limit was requested.
	ListDefaultLimit = 50
	// ListMaxLimit caps a single listing regardless of the requested value.
	ListMaxLimit = 100
)

type postCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
}

// PostRepository persists and retrieves posts in MongoDB.
type PostRepository struct {
	collection postCollection
}

// NewPostRepository constructs a PostRepository.
func NewPostRepository(collection postCollection) *PostRepository {
	return &PostRepository{collection: collection}
}

// Create inserts a post, assigning an id and creation timestamp when absent.
// A source URL collision surfaces as ErrDuplicateSourceURL via the unique
// index on source_url.
func (r *PostRepository) Create(ctx context.Context, post Post) (Post, error) {
	if r == nil || r.collection == nil {
		return Post{}, errors.New("post repository is not initialized")
	}
	if ctx == nil {
		return Post{}, errors.New("context is required")
	}
	if post.SourceURL == "" {
		return Post{}, errors.New("source url is required")
	}

	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}

	if _, err := r.collection.InsertOne(ctx, post); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return Post{}, ErrDuplicateSourceURL
		}
		return Post{}, fmt.Errorf("insert post: %w", err)
	}

	return post, nil
}

// FindBySourceURL fetches a post by its source URL, returning ErrPostNotFound
// when no post has been created for it.
func (r *PostRepository) FindBySourceURL(ctx context.Context, sourceURL string) (Post, error) {
	if r == nil || r.collection == nil {
		return Post{}, errors.New("post repository is not initialized")
	}
	if ctx == nil {
		return Post{}, errors.New("context is required")
	}
	if sourceURL == "" {
		return Post{}, errors.New("source url is required")
	}

	return r.decodeOne(r.collection.FindOne(ctx, bson.M{"source_url": sourceURL}))
}

// GetByID fetches a post by id, returning ErrPostNotFound when absent.
func (r *PostRepository) GetByID(ctx context.Context, id string) (Post, error) {
	if r == nil || r.collection == nil {
		return Post{}, errors.New("post repository is not initialized")
	}
	if ctx == nil {
		return Post{}, errors.New("context is required")
	}
	if id == "" {
		return Post{}, errors.New("id is required")
	}

	return r.decodeOne(r.collection.FindOne(ctx, bson.M{"_id": id}))
}

// List returns posts newest first, optionally narrowed by exact author match
// and minimum creation time. The limit is clamped to [1,ListMaxLimit].
func (r *PostRepository) List(ctx context.Context, filter ListFilter) ([]Post, error) {
	if r == nil || r.collection == nil {
		return nil, errors.New("post repository is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	limit := filter.Limit
	if limit < 1 {
		limit = 1
	}
	if limit > ListMaxLimit {
		limit = ListMaxLimit
	}

	query := bson.M{}
	if filter.Author != "" {
		query["author"] = filter.Author
	}
	if !filter.Since.IsZero() {
		query["created_at"] = bson.M{"$gte": filter.Since}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("find posts: %w", err)
	}

	posts := make([]Post, 0, limit)
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}

	return posts, nil
}

// Update amends a post in place, retaining prior values for nil fields, and
// returns the updated document. ErrPostNotFound is returned for unknown ids.
func (r *PostRepository) Update(ctx context.Context, id string, update PostUpdate) (Post, error) {
	if r == nil || r.collection == nil {
		return Post{}, errors.New("post repository is not initialized")
	}
	if ctx == nil {
		return Post{}, errors.New("context is required")
	}
	if id == "" {
		return Post{}, errors.New("id is required")
	}

	set := bson.M{}
	if update.Author != nil {
		set["author"] = *update.Author
	}
	if update.AuthorURL != nil {
		set["author_url"] = *update.AuthorURL
	}
	if update.AuthorDisplayName != nil {
		set["author_display_name"] = *update.AuthorDisplayName
	}
	if update.Title != nil {
		set["title"] = *update.Title
	}
	if update.Content != nil {
		set["content"] = *update.Content
	}

	if len(set) == 0 {
		return r.GetByID(ctx, id)
	}

	result := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)

	return r.decodeOne(result)
}

func (r *PostRepository) decodeOne(result *mongo.SingleResult) (Post, error) {
	if result == nil {
		return Post{}, errors.New("find post returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Post{}, ErrPostNotFound
		}
		return Post{}, fmt.Errorf("find post: %w", err)
	}

	var post Post
	if err := result.Decode(&post); err != nil {
		return Post{}, fmt.Errorf("decode post: %w", err)
	}

	return post, nil
}
