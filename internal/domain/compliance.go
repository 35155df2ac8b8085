package domain

type Target string

const (
	TargetReviewReply   Target = "review_reply"
	TargetMarketingPost Target = "marketing_post"
)

type ViolationCode string

const (
	CodeNeverConfirmPatient         ViolationCode = "NeverConfirmPatient"
	CodeBannedPhraseMatch           ViolationCode = "BannedPhraseMatch"
	CodeHighConfidencePHI           ViolationCode = "HighConfidencePHI"
	CodePossiblePHI                 ViolationCode = "PossiblePHI"
	CodeProcedureMentionNotInReview ViolationCode = "ProcedureMentionNotInReview"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Violation struct {
	Code     ViolationCode     `json:"code"`
	Severity Severity          `json:"severity"`
	Message  string            `json:"message"`
	Meta     map[string]string `json:"meta,omitempty"`
}
