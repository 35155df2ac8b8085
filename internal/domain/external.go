package domain

import "time"

// ExternalReview is one review as reported by the review platform.
type ExternalReview struct {
	ExternalID string
	AuthorName string
	Rating     int
	Comment    *string
	CreateTime *time.Time
	UpdateTime *time.Time
	Reply      ReplyEvidence
	RawJSON    []byte
}

// ReplyEvidence is the set of reply shapes the platform is known to send.
// Implementations: NoReply, ReplyComment, ReplyTimestamp, ReplyFlag.
type ReplyEvidence interface {
	replyEvidence()
}

// NoReply means the platform reports no owner reply.
type NoReply struct{}

// ReplyComment carries the reply text and, when present, its timestamp.
type ReplyComment struct {
	Comment string
	At      *time.Time
}

// ReplyTimestamp is a reply known only by the time it was posted.
type ReplyTimestamp struct {
	At time.Time
}

// ReplyFlag is a bare "has reply" marker with no content or time.
type ReplyFlag struct{}

func (NoReply) replyEvidence()        {}
func (ReplyComment) replyEvidence()   {}
func (ReplyTimestamp) replyEvidence() {}
func (ReplyFlag) replyEvidence()      {}

// HasReply reports whether the evidence shows an existing reply.
func HasReply(ev ReplyEvidence) bool {
	switch e := ev.(type) {
	case ReplyComment:
		return e.Comment != ""
	case ReplyTimestamp, ReplyFlag:
		return true
	default:
		return false
	}
}

// ReplyTime picks the most specific timestamp available, falling back to now.
func ReplyTime(ev ReplyEvidence, now time.Time) time.Time {
	switch e := ev.(type) {
	case ReplyComment:
		if e.At != nil {
			return *e.At
		}
	case ReplyTimestamp:
		return e.At
	}
	return now
}
