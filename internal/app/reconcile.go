package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"reviewdesk/internal/adapters/observability"
	"reviewdesk/internal/domain"
	"reviewdesk/internal/quality"
	"reviewdesk/internal/shared"
)

const (
	flagQCFailed = "QC failed: "
	flagHIPAA    = "HIPAA: high-confidence PHI in draft"
)

// Reconciler merges platform review state into the local store.
// Records of one location are processed strictly in source order.
type Reconciler struct {
	source   domain.ReviewSource
	analyzer domain.Analyzer
	repo     domain.ReviewRepository
	cache    domain.Cache
	policy   shared.Policy
	now      func() time.Time
}

func NewReconciler(src domain.ReviewSource, an domain.Analyzer, r domain.ReviewRepository, cache domain.Cache, p shared.Policy) *Reconciler {
	return &Reconciler{source: src, analyzer: an, repo: r, cache: cache, policy: p, now: time.Now}
}

// Reconcile runs one batch for a location. Only a missing location id or a
// failed fetch aborts the batch; per-record failures are counted.
func (s *Reconciler) Reconcile(ctx context.Context, locationID string, since *time.Time) (domain.BatchCounts, error) {
	var counts domain.BatchCounts
	if strings.TrimSpace(locationID) == "" {
		return counts, domain.ErrMissingLocationID
	}

	raw, err := s.source.FetchReviews(ctx, locationID, since)
	if err != nil {
		return counts, fmt.Errorf("fetch reviews for %s: %w", locationID, err)
	}
	counts.Fetched = len(raw)

	for _, payload := range raw {
		s.reconcileOne(ctx, locationID, payload, &counts)
	}

	if counts.NewOrUpdatedSaved > 0 && s.cache != nil {
		invalidateReviews(ctx, s.cache, locationID)
	}
	return counts, nil
}

func (s *Reconciler) reconcileOne(ctx context.Context, locationID string, payload map[string]any, counts *domain.BatchCounts) {
	counts.Processed++
	l := log.With().Str("location_id", locationID).Logger()

	ext, err := mapExternalReview(payload)
	if err != nil {
		counts.Errors++
		observability.ObserveReconcile("error")
		l.Warn().Err(err).Msg("skipping unmappable review")
		return
	}
	l = l.With().Str("review_id", ext.ExternalID).Logger()

	var existing *domain.Review
	switch cur, err := s.repo.GetReview(ctx, locationID, ext.ExternalID); {
	case err == nil:
		existing = &cur
	case errors.Is(err, domain.ErrNotFound):
	default:
		counts.Errors++
		observability.ObserveReconcile("error")
		l.Warn().Err(err).Msg("load review failed")
		return
	}

	updated := isUpdated(existing, ext)
	hasReply := domain.HasReply(ext.Reply)

	// Content unchanged: only converge reply state, never re-analyze.
	if existing != nil && !updated {
		if hasReply {
			if replyConverged(existing) {
				observability.ObserveReconcile("skipped")
				return
			}
			at := domain.ReplyTime(ext.Reply, s.now())
			if err := s.repo.MarkReplied(ctx, locationID, ext.ExternalID, at); err != nil {
				counts.Errors++
				observability.ObserveReconcile("error")
				l.Warn().Err(err).Msg("mark replied failed")
				return
			}
			counts.NewOrUpdatedSaved++
			observability.ObserveReconcile("replied")
			return
		}
		if !needsAnalysis(existing, false, false) {
			observability.ObserveReconcile("skipped")
			return
		}
	}

	var out analysisOutcome
	if needsAnalysis(existing, updated, hasReply) {
		out, err = s.analyze(ctx, ext)
		if err != nil {
			// keep whatever analysis we already had
			counts.Errors++
			observability.ObserveReconcile("error")
			l.Warn().Err(err).Str("err_type", observability.LabelErr(err)).Msg("analysis failed; keeping previous draft")
		} else {
			counts.Analyzed++
			observability.ObserveReconcile("analyzed")
		}
	}

	if existing != nil && !updated && !out.ok {
		return // nothing new to write
	}

	merged := mergeReview(existing, locationID, ext, out, s.now(), s.policy.IsRiskFlag)
	if err := s.repo.UpsertReview(ctx, merged); err != nil {
		counts.Errors++
		observability.ObserveReconcile("error")
		l.Warn().Err(err).Msg("upsert review failed")
		return
	}
	counts.NewOrUpdatedSaved++
	observability.ObserveReconcile("saved")
	l.Debug().Str("status", string(merged.Status)).Msg("review saved")
}

// analyze calls the analysis capability and gates its draft.
func (s *Reconciler) analyze(ctx context.Context, ext domain.ExternalReview) (analysisOutcome, error) {
	a, err := s.analyzer.AnalyzeReview(ctx, domain.AnalysisInput{
		AuthorName: ext.AuthorName,
		Rating:     ext.Rating,
		Comment:    deref(ext.Comment),
		CreateTime: ext.CreateTime,
	})
	if err != nil {
		return analysisOutcome{}, err
	}

	gate := quality.Check(a.ReplyDraft, s.policy.Contract(ext.AuthorName, deref(ext.Comment)))
	flags := append([]string(nil), a.RiskFlags...)
	if gate.Blocked {
		flags = append(flags, flagHIPAA)
	}
	if !gate.OK {
		flags = append(flags, flagQCFailed+strings.Join(gate.Issues, "; "))
	}
	for _, v := range gate.Violations {
		observability.ObserveViolation(string(v.Code))
	}

	out := analysisOutcome{
		ok:         true,
		analysis:   a,
		draft:      gate.SanitizedText,
		flags:      flags,
		gateFailed: gate.Blocked || !gate.OK,
	}
	if len(a.ReplyVariants) > 0 {
		if b, err := json.Marshal(a.ReplyVariants); err == nil {
			out.variants = b
		}
	}
	return out, nil
}

// ReconcileAll runs every location with bounded parallelism across locations.
// Missing business or location ids fail the whole run.
func (s *Reconciler) ReconcileAll(ctx context.Context, businessID string, locationIDs []string, since *time.Time, workers int) (map[string]domain.BatchCounts, error) {
	if strings.TrimSpace(businessID) == "" {
		return nil, domain.ErrMissingBusinessID
	}
	if len(locationIDs) == 0 {
		return nil, domain.ErrMissingLocationID
	}
	if workers <= 0 {
		workers = 1
	}

	sem := semaphore.NewWeighted(int64(workers))
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	out := make(map[string]domain.BatchCounts, len(locationIDs))

	for _, id := range locationIDs {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			break
		}
		wg.Add(1)
		go func(locationID string) {
			defer wg.Done()
			defer sem.Release(1)

			c, err := s.Reconcile(ctx, locationID, since)
			mu.Lock()
			defer mu.Unlock()
			out[locationID] = c
			if err != nil {
				errs = append(errs, err)
			}
		}(id)
	}
	wg.Wait()
	return out, errors.Join(errs...)
}
