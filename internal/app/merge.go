package app

import (
	"time"

	"reviewdesk/internal/domain"
)

// analysisOutcome is the gated result of one analysis attempt.
type analysisOutcome struct {
	ok         bool
	analysis   domain.Analysis
	draft      string   // sanitized draft
	flags      []string // analyzer flags plus quality-gate flags
	gateFailed bool     // draft failed the quality gate or was blocked
	variants   []byte
}

// isUpdated: the record is new, or the platform timestamp strictly advanced.
func isUpdated(existing *domain.Review, ext domain.ExternalReview) bool {
	if existing == nil {
		return true
	}
	if ext.UpdateTime == nil {
		return false
	}
	return existing.UpdatedAt == nil || ext.UpdateTime.After(*existing.UpdatedAt)
}

// needsAnalysis decides whether a fresh analysis call is warranted.
func needsAnalysis(existing *domain.Review, updated, hasExternalReply bool) bool {
	if hasExternalReply {
		return false
	}
	if existing == nil {
		return true
	}
	if existing.Status == domain.StatusReplied {
		return false
	}
	return updated || existing.Sentiment == "" || existing.ReplyDraft == nil || existing.Status == domain.StatusPendingAnalysis
}

// decideStatus maps a successful analysis to an approval route.
func decideStatus(rating int, sentiment domain.Sentiment, flags []string, isRisk func(string) bool) domain.Status {
	for _, f := range flags {
		if isRisk(f) {
			return domain.StatusNeedsApproval
		}
	}
	if rating <= 3 || sentiment == domain.SentimentNegative {
		return domain.StatusNeedsApproval
	}
	return domain.StatusAutoApproved
}

// mergeReview builds the row to persist. Precedence per analysis field is
// fresh analysis > existing value > null; external reply state always wins.
func mergeReview(
	existing *domain.Review,
	locationID string,
	ext domain.ExternalReview,
	out analysisOutcome,
	now time.Time,
	isRisk func(string) bool,
) domain.Review {
	var r domain.Review
	if existing != nil {
		r = *existing
	} else {
		r = domain.Review{
			LocationID:       locationID,
			ExternalReviewID: ext.ExternalID,
			Status:           domain.StatusPendingAnalysis,
		}
	}

	r.AuthorName = ext.AuthorName
	r.Rating = ext.Rating
	r.Comment = ext.Comment
	r.CreatedAt = ext.CreateTime
	r.UpdatedAt = ext.UpdateTime
	if len(ext.RawJSON) > 0 {
		r.RawJSON = ext.RawJSON
	}

	if out.ok {
		a := out.analysis
		draft := out.draft
		r.Sentiment = a.Sentiment
		r.Urgency = a.Urgency
		r.Topics = a.Topics
		r.SuggestedActions = a.SuggestedActions
		r.RiskFlags = out.flags
		r.ReplyDraft = &draft
		r.ReplyLanguageCode = a.ReplyLanguageCode
		if len(out.variants) > 0 {
			r.ReplyVariantsJSON = out.variants
		}
		analyzedAt := now
		r.LastAnalyzedAt = &analyzedAt
		if r.Status != domain.StatusReplied {
			// gate failures route to a human whatever the configured vocabulary
			r.Status = decideStatus(r.Rating, a.Sentiment, a.RiskFlags, isRisk)
			if out.gateFailed {
				r.Status = domain.StatusNeedsApproval
			}
		}
	}

	if domain.HasReply(ext.Reply) {
		r.Status = domain.StatusReplied
		if r.RepliedAt == nil {
			at := domain.ReplyTime(ext.Reply, now)
			r.RepliedAt = &at
		}
	}

	r.NeedsApprovalSince = mergeNeedsApprovalSince(existing, r.Status, now)
	return r
}

// mergeNeedsApprovalSince keeps the first time a review entered NeedsApproval.
func mergeNeedsApprovalSince(existing *domain.Review, status domain.Status, now time.Time) *time.Time {
	if status != domain.StatusNeedsApproval {
		return nil
	}
	if existing != nil && existing.Status == domain.StatusNeedsApproval && existing.NeedsApprovalSince != nil {
		return existing.NeedsApprovalSince
	}
	t := now
	return &t
}

// replyConverged reports whether local state already reflects an external reply.
func replyConverged(r *domain.Review) bool {
	return r.Status == domain.StatusReplied && r.RepliedAt != nil
}
