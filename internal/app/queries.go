package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"reviewdesk/internal/domain"
)

type QueryService struct {
	repo     domain.ReviewRepository
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.ReviewRepository, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, cacheTTL: ttl}
}

// cached listing variants; writers invalidate all of them
var (
	cachedLimits   = []int{50, 100, 200}
	cachedStatuses = []string{"all", string(domain.StatusPendingAnalysis), string(domain.StatusAutoApproved), string(domain.StatusNeedsApproval), string(domain.StatusReplied)}
)

func reviewsKey(locationID string, pg domain.PageQuery) string {
	status := "all"
	if pg.Status != nil {
		status = string(*pg.Status)
	}
	return fmt.Sprintf("reviews:%s:%d:%s", locationID, pg.Limit, status)
}

// only limits that invalidateReviews knows about are cached
func cacheableLimit(n int) bool {
	for _, l := range cachedLimits {
		if l == n {
			return true
		}
	}
	return false
}

func (s *QueryService) GetReview(ctx context.Context, locationID, externalReviewID string) (domain.Review, error) {
	return s.repo.GetReview(ctx, locationID, externalReviewID)
}

func (s *QueryService) ListReviews(ctx context.Context, locationID string, pg domain.PageQuery) (domain.ReviewsPage, error) {
	key := reviewsKey(locationID, pg)
	useCache := s.cache != nil && cacheableLimit(pg.Limit)
	var out domain.ReviewsPage
	if useCache {
		if ok, _ := s.cache.Get(ctx, key, &out); ok {
			return out, nil
		}
	}

	rs, err := s.repo.ListReviews(ctx, locationID, pg)
	if err != nil {
		return domain.ReviewsPage{}, err
	}

	// copy slice to avoid aliasing the repo's backing array
	copyRS := deepCopyReviewsPage(rs)

	// optional size guard
	if useCache {
		if b, _ := json.Marshal(copyRS); len(b) < 1_000_000 {
			_ = s.cache.Set(ctx, key, copyRS, int(s.cacheTTL.Seconds()))
		}
	}
	return copyRS, nil
}

func deepCopyReviewsPage(in domain.ReviewsPage) domain.ReviewsPage {
	out := domain.ReviewsPage{}
	if n := len(in.Items); n > 0 {
		out.Items = make([]domain.Review, n)
		copy(out.Items, in.Items)
	}
	return out
}

// invalidateReviews drops every cached listing variant for a location.
func invalidateReviews(ctx context.Context, c domain.Cache, locationID string) {
	for _, lim := range cachedLimits {
		for _, st := range cachedStatuses {
			_ = c.Del(ctx, fmt.Sprintf("reviews:%s:%d:%s", locationID, lim, st))
		}
	}
}
