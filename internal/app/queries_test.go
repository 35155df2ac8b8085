package app_test

import (
	"context"
	"testing"
	"time"

	"reviewdesk/internal/app"
	"reviewdesk/internal/domain"
)

func TestListReviews_CacheMissThenHit(t *testing.T) {
	repo := seededRepo(
		pendingReview("r1", "d1", domain.StatusAutoApproved),
		pendingReview("r2", "d2", domain.StatusNeedsApproval),
	)
	cache := &fakeCache{}
	svc := app.NewQueryService(repo, cache, 5*time.Minute)

	st := domain.StatusNeedsApproval
	q := domain.PageQuery{Limit: 50, Status: &st}
	first, err := svc.ListReviews(context.Background(), "loc-1", q)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(first.Items) != 1 || first.Items[0].ExternalReviewID != "r2" {
		t.Fatalf("unexpected page: %+v", first)
	}
	if _, err := svc.ListReviews(context.Background(), "loc-1", q); err != nil {
		t.Fatalf("err: %v", err)
	}
	if repo.listCalls != 1 {
		t.Fatalf("second read should be served from cache, repo calls=%d", repo.listCalls)
	}
	if _, ok := cache.store["reviews:loc-1:50:NeedsApproval"]; !ok {
		t.Fatalf("unexpected cache keys: %v", cache.store)
	}
}

func TestListReviews_UncachedLimitGoesToRepo(t *testing.T) {
	repo := seededRepo(pendingReview("r1", "d1", domain.StatusAutoApproved))
	svc := app.NewQueryService(repo, &fakeCache{}, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := svc.ListReviews(context.Background(), "loc-1", domain.PageQuery{Limit: 7}); err != nil {
			t.Fatalf("err: %v", err)
		}
	}
	if repo.listCalls != 2 {
		t.Fatalf("expected repo on every call, got %d", repo.listCalls)
	}
}

func TestReconcileInvalidatesListingCache(t *testing.T) {
	repo := newFakeRepo()
	cache := &fakeCache{}
	svc := app.NewQueryService(repo, cache, time.Minute)
	if _, err := svc.ListReviews(context.Background(), "loc-1", domain.PageQuery{Limit: 100}); err != nil {
		t.Fatalf("err: %v", err)
	}

	src := &fakeSource{items: []map[string]any{payload("r1", 5, "Great", t0)}}
	rec := app.NewReconciler(src, &fakeAnalyzer{fn: analysisFor(domain.SentimentPositive)}, repo, cache, testPolicy())
	if _, err := rec.Reconcile(context.Background(), "loc-1", nil); err != nil {
		t.Fatalf("err: %v", err)
	}

	page, err := svc.ListReviews(context.Background(), "loc-1", domain.PageQuery{Limit: 100})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("stale listing after reconcile: %+v", page)
	}
}
