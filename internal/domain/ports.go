package domain

import (
	"context"
	"time"
)

type ReviewRepository interface {
	// Write paths
	UpsertReview(ctx context.Context, r Review) error
	MarkReplied(ctx context.Context, locationID, externalReviewID string, at time.Time) error

	// Read paths
	GetReview(ctx context.Context, locationID, externalReviewID string) (Review, error)
	ListReviews(ctx context.Context, locationID string, pg PageQuery) (ReviewsPage, error)
}

type AuditRepository interface {
	InsertAuditRecord(ctx context.Context, rec AuditRecord) error
}

// ReviewSource returns raw platform payloads; mapping happens in the app layer.
type ReviewSource interface {
	FetchReviews(ctx context.Context, locationID string, since *time.Time) ([]map[string]any, error)
}

type Analyzer interface {
	AnalyzeReview(ctx context.Context, in AnalysisInput) (Analysis, error)
}

type Publisher interface {
	PublishReply(ctx context.Context, locationID, externalReviewID, text string) error
	PublishPost(ctx context.Context, locationID, content string) (PostAck, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

type PostAck struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// Read models & queries
type PageQuery struct {
	Limit  int
	Status *Status
}

type ReviewsPage struct {
	Items []Review
}

// BatchCounts is the observable outcome of one reconciliation run.
type BatchCounts struct {
	Fetched           int `json:"fetched"`
	Processed         int `json:"processed"`
	Analyzed          int `json:"analyzed"`
	Errors            int `json:"errors"`
	NewOrUpdatedSaved int `json:"new_or_updated_saved"`
}
