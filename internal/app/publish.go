package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"reviewdesk/internal/adapters/observability"
	"reviewdesk/internal/compliance"
	"reviewdesk/internal/domain"
	"reviewdesk/internal/shared"
)

// Auditor is satisfied by *audit.Trail.
type Auditor interface {
	Record(ctx context.Context, e domain.AuditEvent) (string, error)
}

type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

type ReplyRequest struct {
	LocationID       string
	ExternalReviewID string
	Text             *string // nil publishes the stored draft
	Actor            *Actor  // nil for machine-initiated publishes
}

type PostRequest struct {
	LocationID string
	Content    string
	Actor      *Actor
}

type PublishResult struct {
	Text       string             `json:"text"`
	Violations []domain.Violation `json:"violations"`
	AuditID    string             `json:"audit_id,omitempty"`
	Post       *domain.PostAck    `json:"post,omitempty"`
}

type PublishSummary struct {
	Published int `json:"published"`
	Blocked   int `json:"blocked"`
	Failed    int `json:"failed"`
}

// PublicationService is the only path by which text leaves the system.
type PublicationService struct {
	repo       domain.ReviewRepository
	publisher  domain.Publisher
	auditor    Auditor
	cache      domain.Cache
	policy     shared.Policy
	businessID string
	workers    int
	now        func() time.Time
}

func NewPublicationService(r domain.ReviewRepository, p domain.Publisher, a Auditor, cache domain.Cache, policy shared.Policy, businessID string, workers int) *PublicationService {
	if workers <= 0 {
		workers = 1
	}
	return &PublicationService{
		repo: r, publisher: p, auditor: a, cache: cache, policy: policy,
		businessID: businessID, workers: workers, now: time.Now,
	}
}

// Check previews the guard outcome without publishing anything.
func (s *PublicationService) Check(target domain.Target, text, reviewText string) compliance.Result {
	return compliance.Check(compliance.Input{Target: target, Text: text, ReviewText: reviewText}, s.policy.Compliance())
}

// PublishReply guards the reply text, publishes the sanitized version and audits it.
func (s *PublicationService) PublishReply(ctx context.Context, req ReplyRequest) (PublishResult, error) {
	if s.businessID == "" {
		return PublishResult{}, domain.ErrMissingBusinessID
	}
	rv, err := s.repo.GetReview(ctx, req.LocationID, req.ExternalReviewID)
	if err != nil {
		return PublishResult{}, fmt.Errorf("load review %s: %w", req.ExternalReviewID, err)
	}
	if rv.Status == domain.StatusReplied {
		return PublishResult{}, domain.ErrAlreadyReplied
	}

	text := deref(rv.ReplyDraft)
	if req.Text != nil {
		text = *req.Text
	}
	if strings.TrimSpace(text) == "" {
		return PublishResult{}, domain.ErrEmptyText
	}

	g := s.Check(domain.TargetReviewReply, text, deref(rv.Comment))
	res := PublishResult{Text: g.SanitizedText, Violations: g.Violations}
	s.observeViolations(g)
	if g.Blocked {
		observability.ObservePublish(string(domain.TargetReviewReply), "blocked")
		return res, &domain.BlockedError{Target: domain.TargetReviewReply, Codes: g.BlockingCodes()}
	}

	if err := s.publisher.PublishReply(ctx, req.LocationID, req.ExternalReviewID, g.SanitizedText); err != nil {
		observability.ObservePublish(string(domain.TargetReviewReply), "failed")
		return res, fmt.Errorf("publish reply %s: %w", req.ExternalReviewID, err)
	}
	observability.ObservePublish(string(domain.TargetReviewReply), "published")

	// The platform already has the reply; the next reconciliation converges on failure.
	if err := s.repo.MarkReplied(ctx, req.LocationID, req.ExternalReviewID, s.now()); err != nil {
		log.Warn().Err(err).Str("location_id", req.LocationID).Str("review_id", req.ExternalReviewID).Msg("mark replied after publish failed")
	}
	if s.cache != nil {
		invalidateReviews(ctx, s.cache, req.LocationID)
	}

	action := domain.AuditReplyPublished
	if req.Actor != nil {
		action = domain.AuditReplyApproved
	}
	targetID := req.ExternalReviewID
	res.AuditID = s.audit(ctx, domain.AuditEvent{
		Action:         action,
		TargetType:     domain.TargetReviewReply,
		TargetID:       &targetID,
		OriginalText:   text,
		SanitizedText:  g.SanitizedText,
		ViolationCodes: g.Codes(),
		Metadata:       map[string]any{"location_id": req.LocationID, "rating": rv.Rating},
	}, req.Actor)
	return res, nil
}

// PublishPost guards and publishes a marketing post.
func (s *PublicationService) PublishPost(ctx context.Context, req PostRequest) (PublishResult, error) {
	if s.businessID == "" {
		return PublishResult{}, domain.ErrMissingBusinessID
	}
	if strings.TrimSpace(req.LocationID) == "" {
		return PublishResult{}, domain.ErrMissingLocationID
	}
	if strings.TrimSpace(req.Content) == "" {
		return PublishResult{}, domain.ErrEmptyText
	}

	g := s.Check(domain.TargetMarketingPost, req.Content, "")
	res := PublishResult{Text: g.SanitizedText, Violations: g.Violations}
	s.observeViolations(g)
	if g.Blocked {
		observability.ObservePublish(string(domain.TargetMarketingPost), "blocked")
		return res, &domain.BlockedError{Target: domain.TargetMarketingPost, Codes: g.BlockingCodes()}
	}

	ack, err := s.publisher.PublishPost(ctx, req.LocationID, g.SanitizedText)
	if err != nil {
		observability.ObservePublish(string(domain.TargetMarketingPost), "failed")
		return res, fmt.Errorf("publish post: %w", err)
	}
	observability.ObservePublish(string(domain.TargetMarketingPost), "published")
	res.Post = &ack

	var targetID *string
	if ack.ID != "" {
		id := ack.ID
		targetID = &id
	}
	res.AuditID = s.audit(ctx, domain.AuditEvent{
		Action:         domain.AuditPostPublished,
		TargetType:     domain.TargetMarketingPost,
		TargetID:       targetID,
		OriginalText:   req.Content,
		SanitizedText:  g.SanitizedText,
		ViolationCodes: g.Codes(),
		Metadata:       map[string]any{"location_id": req.LocationID, "state": ack.State},
	}, req.Actor)
	return res, nil
}

// PublishAutoApproved publishes stored drafts of AutoApproved reviews, several
// reviews at a time. Individual failures are counted, not returned.
func (s *PublicationService) PublishAutoApproved(ctx context.Context, locationID string) (PublishSummary, error) {
	st := domain.StatusAutoApproved
	page, err := s.repo.ListReviews(ctx, locationID, domain.PageQuery{Limit: 200, Status: &st})
	if err != nil {
		return PublishSummary{}, fmt.Errorf("list auto-approved reviews: %w", err)
	}

	var (
		mu  sync.Mutex
		sum PublishSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, rv := range page.Items {
		if rv.ReplyDraft == nil {
			continue
		}
		rv := rv // per-iteration copy (pre-Go 1.22 loop semantics)
		g.Go(func() error {
			_, err := s.PublishReply(gctx, ReplyRequest{LocationID: locationID, ExternalReviewID: rv.ExternalReviewID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sum.Published++
			case errors.Is(err, domain.ErrComplianceBlocked):
				sum.Blocked++
				log.Info().Str("review_id", rv.ExternalReviewID).Err(err).Msg("auto publish blocked")
			default:
				sum.Failed++
				log.Warn().Str("review_id", rv.ExternalReviewID).Err(err).Msg("auto publish failed")
			}
			return nil
		})
	}
	_ = g.Wait()
	return sum, nil
}

// audit records e; failures are logged and counted but never returned.
func (s *PublicationService) audit(ctx context.Context, e domain.AuditEvent, actor *Actor) string {
	e.BusinessID = s.businessID
	if actor != nil {
		id, role := actor.ID, actor.Role
		e.ActorID = &id
		if role != "" {
			e.ActorRole = &role
		}
	}
	id, err := s.auditor.Record(ctx, e)
	if err != nil {
		observability.ObserveAuditFailure()
		log.Error().Err(err).Str("business_id", s.businessID).Str("action", string(e.Action)).Msg("audit write failed")
		return ""
	}
	return id
}

func (s *PublicationService) observeViolations(r compliance.Result) {
	for _, v := range r.Violations {
		observability.ObserveViolation(string(v.Code))
	}
}
