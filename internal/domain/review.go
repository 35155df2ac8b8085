package domain

import "time"

type Status string

const (
	StatusPendingAnalysis Status = "PendingAnalysis"
	StatusAutoApproved    Status = "AutoApproved"
	StatusNeedsApproval   Status = "NeedsApproval"
	StatusReplied         Status = "Replied"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Review is the local row for one (location, external review) pair.
type Review struct {
	ID               int64
	LocationID       string
	ExternalReviewID string

	AuthorName string
	Rating     int // 1..5, 0 when the platform value could not be mapped
	Comment    *string
	CreatedAt  *time.Time // platform timestamps
	UpdatedAt  *time.Time

	Sentiment         Sentiment // "" until analyzed
	Urgency           Urgency
	Topics            []string
	SuggestedActions  []string
	RiskFlags         []string
	ReplyDraft        *string
	ReplyLanguageCode *string
	ReplyVariantsJSON []byte // optional A/B candidates

	Status             Status
	RepliedAt          *time.Time
	LastAnalyzedAt     *time.Time
	NeedsApprovalSince *time.Time
	LastReminderAt     *time.Time
	EscalationLevel    int

	RawJSON []byte // last platform payload
}

// Analysis is what the analysis capability returns for one review.
type Analysis struct {
	Sentiment         Sentiment `json:"sentiment"`
	Urgency           Urgency   `json:"urgency"`
	Topics            []string  `json:"topics"`
	SuggestedActions  []string  `json:"suggested_actions"`
	RiskFlags         []string  `json:"risk_flags"`
	ReplyDraft        string    `json:"reply_draft"`
	ReplyLanguageCode *string   `json:"reply_language_code,omitempty"`
	ReplyVariants     []string  `json:"reply_variants,omitempty"`
}

type AnalysisInput struct {
	AuthorName string     `json:"author_name"`
	Rating     int        `json:"rating"`
	Comment    string     `json:"comment"`
	CreateTime *time.Time `json:"create_time,omitempty"`
}
