package domain

import "time"

type AuditAction string

const (
	AuditReplyApproved  AuditAction = "reply.approved"
	AuditReplyPublished AuditAction = "reply.published"
	AuditPostPublished  AuditAction = "post.published"
)

// AuditEvent is the input to the audit trail. Texts are hashed, never stored.
type AuditEvent struct {
	BusinessID     string
	ActorID        *string
	ActorRole      *string
	Action         AuditAction
	TargetType     Target
	TargetID       *string
	OriginalText   string
	SanitizedText  string
	ViolationCodes []ViolationCode
	Metadata       map[string]any
}

// AuditRecord is the persisted, text-free form of an AuditEvent.
type AuditRecord struct {
	ID                string
	BusinessID        string
	ActorID           *string
	ActorRole         *string
	Action            AuditAction
	TargetType        Target
	TargetID          *string
	OriginalTextHash  string
	SanitizedTextHash string
	ViolationCodes    []byte // JSON array
	MetadataJSON      []byte
	CreatedAt         time.Time
}
