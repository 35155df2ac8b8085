package app

import (
	"strings"
	"testing"
	"time"

	"reviewdesk/internal/domain"
)

var mergeNow = time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

func isRisk(f string) bool { return strings.Contains(strings.ToLower(f), "hipaa") }

func TestDecideStatus(t *testing.T) {
	if got := decideStatus(5, domain.SentimentPositive, nil, isRisk); got != domain.StatusAutoApproved {
		t.Fatalf("got %s", got)
	}
	if got := decideStatus(3, domain.SentimentPositive, nil, isRisk); got != domain.StatusNeedsApproval {
		t.Fatalf("rating 3: got %s", got)
	}
	if got := decideStatus(5, domain.SentimentNegative, nil, isRisk); got != domain.StatusNeedsApproval {
		t.Fatalf("negative: got %s", got)
	}
	if got := decideStatus(5, domain.SentimentPositive, []string{"HIPAA risk"}, isRisk); got != domain.StatusNeedsApproval {
		t.Fatalf("risk flag: got %s", got)
	}
	if got := decideStatus(5, domain.SentimentPositive, []string{"praise"}, isRisk); got != domain.StatusAutoApproved {
		t.Fatalf("benign flag: got %s", got)
	}
}

func TestNeedsAnalysis(t *testing.T) {
	analyzed := &domain.Review{Sentiment: domain.SentimentPositive, ReplyDraft: ptrStr("d"), Status: domain.StatusAutoApproved}
	replied := &domain.Review{Status: domain.StatusReplied}
	cases := []struct {
		name     string
		existing *domain.Review
		updated  bool
		reply    bool
		want     bool
	}{
		{"new", nil, true, false, true},
		{"new with reply", nil, true, true, false},
		{"unchanged", analyzed, false, false, false},
		{"updated", analyzed, true, false, true},
		{"missing draft", &domain.Review{Sentiment: domain.SentimentPositive, Status: domain.StatusAutoApproved}, false, false, true},
		{"pending", &domain.Review{Sentiment: domain.SentimentPositive, ReplyDraft: ptrStr("d"), Status: domain.StatusPendingAnalysis}, false, false, true},
		{"replied stays replied", replied, true, false, false},
	}
	for _, c := range cases {
		if got := needsAnalysis(c.existing, c.updated, c.reply); got != c.want {
			t.Fatalf("%s: got %v want %v", c.name, got, c.want)
		}
	}
}

func TestMergeReview_RepliedIsAbsorbing(t *testing.T) {
	repliedAt := mergeNow.Add(-time.Hour)
	existing := &domain.Review{
		LocationID: "loc-1", ExternalReviewID: "r1", Status: domain.StatusReplied, RepliedAt: &repliedAt,
	}
	out := analysisOutcome{ok: true, analysis: domain.Analysis{Sentiment: domain.SentimentNegative}, draft: "d"}
	got := mergeReview(existing, "loc-1", domain.ExternalReview{ExternalID: "r1", Rating: 1}, out, mergeNow, isRisk)
	if got.Status != domain.StatusReplied || !got.RepliedAt.Equal(repliedAt) || got.NeedsApprovalSince != nil {
		t.Fatalf("replied review regressed: %+v", got)
	}
}

func TestMergeReview_NeedsApprovalSinceIsStable(t *testing.T) {
	since := mergeNow.Add(-48 * time.Hour)
	existing := &domain.Review{
		LocationID: "loc-1", ExternalReviewID: "r1", Status: domain.StatusNeedsApproval, NeedsApprovalSince: &since,
	}
	out := analysisOutcome{ok: true, analysis: domain.Analysis{Sentiment: domain.SentimentNegative}, draft: "d"}
	got := mergeReview(existing, "loc-1", domain.ExternalReview{ExternalID: "r1", Rating: 2}, out, mergeNow, isRisk)
	if got.NeedsApprovalSince == nil || !got.NeedsApprovalSince.Equal(since) {
		t.Fatalf("expected first entry time to be kept, got %v", got.NeedsApprovalSince)
	}

	out.analysis.Sentiment = domain.SentimentPositive
	got = mergeReview(existing, "loc-1", domain.ExternalReview{ExternalID: "r1", Rating: 5}, out, mergeNow, isRisk)
	if got.Status != domain.StatusAutoApproved || got.NeedsApprovalSince != nil {
		t.Fatalf("leaving NeedsApproval should clear the timestamp: %+v", got)
	}
}

func TestMergeReview_ReplyTimeFromEvidence(t *testing.T) {
	at := mergeNow.Add(-3 * time.Hour)
	got := mergeReview(nil, "loc-1", domain.ExternalReview{ExternalID: "r1", Reply: domain.ReplyTimestamp{At: at}}, analysisOutcome{}, mergeNow, isRisk)
	if got.Status != domain.StatusReplied || !got.RepliedAt.Equal(at) {
		t.Fatalf("unexpected: %+v", got)
	}
	got = mergeReview(nil, "loc-1", domain.ExternalReview{ExternalID: "r1", Reply: domain.ReplyFlag{}}, analysisOutcome{}, mergeNow, isRisk)
	if !got.RepliedAt.Equal(mergeNow) {
		t.Fatalf("flag-only reply should use now, got %v", got.RepliedAt)
	}
	got = mergeReview(nil, "loc-1", domain.ExternalReview{ExternalID: "r1", Reply: domain.NoReply{}}, analysisOutcome{}, mergeNow, isRisk)
	if got.Status != domain.StatusPendingAnalysis || got.RepliedAt != nil {
		t.Fatalf("unexpected: %+v", got)
	}
}

func TestMergeReview_GateFailureForcesApproval(t *testing.T) {
	never := func(string) bool { return false }
	out := analysisOutcome{
		ok:         true,
		analysis:   domain.Analysis{Sentiment: domain.SentimentPositive},
		draft:      "d",
		flags:      []string{"QC failed: signature mismatch"},
		gateFailed: true,
	}
	got := mergeReview(nil, "loc-1", domain.ExternalReview{ExternalID: "r1", Rating: 5}, out, mergeNow, never)
	if got.Status != domain.StatusNeedsApproval {
		t.Fatalf("expected NeedsApproval, got %s", got.Status)
	}

	// only analyzer flags go through the vocabulary
	out.gateFailed = false
	got = mergeReview(nil, "loc-1", domain.ExternalReview{ExternalID: "r1", Rating: 5}, out, mergeNow, isRisk)
	if got.Status != domain.StatusAutoApproved {
		t.Fatalf("expected AutoApproved, got %s", got.Status)
	}
}
