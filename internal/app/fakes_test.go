package app_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"reviewdesk/internal/domain"
	"reviewdesk/internal/shared"
)

// ---- fakes ----

type fakeRepo struct {
	mu        sync.Mutex
	rows      map[string]domain.Review
	upserts   int
	marks     int
	failOn    map[string]error // keyed by external id
	listCalls int
}

func newFakeRepo() *fakeRepo { return &fakeRepo{rows: map[string]domain.Review{}, failOn: map[string]error{}} }

func key(loc, ext string) string { return loc + "|" + ext }

func (f *fakeRepo) UpsertReview(ctx context.Context, r domain.Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn[r.ExternalReviewID]; err != nil {
		return err
	}
	f.upserts++
	f.rows[key(r.LocationID, r.ExternalReviewID)] = r
	return nil
}

func (f *fakeRepo) MarkReplied(ctx context.Context, loc, ext string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn[ext]; err != nil {
		return err
	}
	r, ok := f.rows[key(loc, ext)]
	if !ok {
		return domain.ErrNotFound
	}
	f.marks++
	r.Status = domain.StatusReplied
	r.RepliedAt = &at
	r.NeedsApprovalSince = nil
	f.rows[key(loc, ext)] = r
	return nil
}

func (f *fakeRepo) GetReview(ctx context.Context, loc, ext string) (domain.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[key(loc, ext)]
	if !ok {
		return domain.Review{}, domain.ErrNotFound
	}
	return r, nil
}

func (f *fakeRepo) ListReviews(ctx context.Context, loc string, pg domain.PageQuery) (domain.ReviewsPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	var out []domain.Review
	for _, r := range f.rows {
		if r.LocationID != loc || (pg.Status != nil && r.Status != *pg.Status) {
			continue
		}
		out = append(out, r)
	}
	return domain.ReviewsPage{Items: out}, nil
}

func (f *fakeRepo) writes() int { return f.upserts + f.marks }

type fakeSource struct {
	items []map[string]any
	err   error
}

func (f *fakeSource) FetchReviews(ctx context.Context, loc string, since *time.Time) ([]map[string]any, error) {
	return f.items, f.err
}

type fakeAnalyzer struct {
	calls int
	fn    func(in domain.AnalysisInput) (domain.Analysis, error)
}

func (f *fakeAnalyzer) AnalyzeReview(ctx context.Context, in domain.AnalysisInput) (domain.Analysis, error) {
	f.calls++
	return f.fn(in)
}

type fakeCache struct {
	store map[string]any
	dels  int
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if c.store == nil {
		return false, nil
	}
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	if d, ok := dst.(*domain.ReviewsPage); ok {
		*d = v.(domain.ReviewsPage)
	}
	return true, nil
}
func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	if c.store == nil {
		c.store = map[string]any{}
	}
	c.store[key] = v
	return nil
}
func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.dels++
	delete(c.store, key)
	return nil
}

type fakePublisher struct {
	mu      sync.Mutex
	replies map[string]string
	posts   []string
	err     error
}

func (p *fakePublisher) PublishReply(ctx context.Context, loc, ext, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if p.replies == nil {
		p.replies = map[string]string{}
	}
	p.replies[ext] = text
	return nil
}

func (p *fakePublisher) PublishPost(ctx context.Context, loc, content string) (domain.PostAck, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return domain.PostAck{}, p.err
	}
	p.posts = append(p.posts, content)
	return domain.PostAck{ID: "post-1", State: "LIVE", CreatedAt: time.Now()}, nil
}

type fakeAuditor struct {
	mu     sync.Mutex
	events []domain.AuditEvent
	err    error
}

func (a *fakeAuditor) Record(ctx context.Context, e domain.AuditEvent) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	a.events = append(a.events, e)
	return "audit-1", nil
}

// ---- helpers ----

const signature = "The Bright Smile Team"

func testPolicy() shared.Policy {
	return shared.Policy{
		BusinessName:     "Bright Smile Dental",
		Signature:        signature,
		MinWords:         5,
		MaxWords:         120,
		BannedPhrases:    []string{"guaranteed"},
		BusinessPhone:    "555-123-4567",
		RiskFlagPatterns: []string{"hipaa", "qc failed"},
	}
}

func goodDraft(first string) string {
	return "Dear " + first + ", thank you for visiting Bright Smile Dental and for the kind words. " + signature
}

func analysisFor(sentiment domain.Sentiment, flags ...string) func(domain.AnalysisInput) (domain.Analysis, error) {
	return func(in domain.AnalysisInput) (domain.Analysis, error) {
		return domain.Analysis{
			Sentiment:  sentiment,
			Urgency:    domain.UrgencyLow,
			Topics:     []string{"staff"},
			RiskFlags:  flags,
			ReplyDraft: goodDraft("Ana"),
		}, nil
	}
}

var errAnalyzer = errors.New("analyzer unavailable")

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func payload(id string, rating any, comment string, updated time.Time) map[string]any {
	return map[string]any{
		"reviewId":   id,
		"reviewer":   map[string]any{"displayName": "Ana Lopez"},
		"starRating": rating,
		"comment":    comment,
		"createTime": t0.Format(time.RFC3339),
		"updateTime": updated.Format(time.RFC3339),
	}
}

func withReply(p map[string]any, at time.Time) map[string]any {
	p["reviewReply"] = map[string]any{"comment": "Thanks!", "updateTime": at.Format(time.RFC3339)}
	return p
}

func ptr[T any](v T) *T { return &v }
