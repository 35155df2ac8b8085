package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reviewdesk/internal/domain"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}
func valJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
func valEnum[T ~string](v T) any {
	if v == "" {
		return nil
	}
	return string(v)
}

// jsonList stores nil as SQL NULL and everything else as a JSON array.
func jsonList(xs []string) any {
	if xs == nil {
		return nil
	}
	b, _ := json.Marshal(xs)
	return string(b)
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) UpsertReview(ctx context.Context, rv domain.Review) error {
	_, err := r.db.ExecContext(ctx, upsertReviewSQL,
		rv.LocationID,
		rv.ExternalReviewID,
		rv.AuthorName,
		rv.Rating,
		valStr(rv.Comment),
		valTime(rv.CreatedAt),
		valTime(rv.UpdatedAt),
		valEnum(rv.Sentiment),
		valEnum(rv.Urgency),
		jsonList(rv.Topics),
		jsonList(rv.SuggestedActions),
		jsonList(rv.RiskFlags),
		valStr(rv.ReplyDraft),
		valStr(rv.ReplyLanguageCode),
		valJSON(rv.ReplyVariantsJSON),
		string(rv.Status),
		valTime(rv.RepliedAt),
		valTime(rv.LastAnalyzedAt),
		valTime(rv.NeedsApprovalSince),
		valTime(rv.LastReminderAt),
		rv.EscalationLevel,
		valJSON(rv.RawJSON),
	)
	if err != nil {
		return fmt.Errorf("upsert review %s/%s: %w", rv.LocationID, rv.ExternalReviewID, err)
	}
	return nil
}

// MarkReplied moves a review to Replied without touching its content.
// An earlier replied_at is kept.
func (r *Repo) MarkReplied(ctx context.Context, locationID, externalReviewID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, markRepliedSQL, at.UTC(), locationID, externalReviewID)
	if err != nil {
		return fmt.Errorf("mark replied %s/%s: %w", locationID, externalReviewID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	// zero affected rows is also what MySQL reports for an unchanged row
	var one int
	if err := r.db.QueryRowContext(ctx, reviewExistsSQL, locationID, externalReviewID).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	}
	return nil
}

func (r *Repo) GetReview(ctx context.Context, locationID, externalReviewID string) (domain.Review, error) {
	rv, err := scanReview(r.db.QueryRowContext(ctx, getReviewSQL, locationID, externalReviewID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Review{}, domain.ErrNotFound
		}
		return domain.Review{}, err
	}
	return rv, nil
}

func (r *Repo) ListReviews(ctx context.Context, locationID string, pg domain.PageQuery) (domain.ReviewsPage, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if pg.Status != nil {
		rows, err = r.db.QueryContext(ctx, listReviewsByStatusSQL, locationID, string(*pg.Status), pg.Limit)
	} else {
		rows, err = r.db.QueryContext(ctx, listReviewsSQL, locationID, pg.Limit)
	}
	if err != nil {
		return domain.ReviewsPage{}, err
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return domain.ReviewsPage{}, err
		}
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return domain.ReviewsPage{}, err
	}
	return domain.ReviewsPage{Items: out}, nil
}

func (r *Repo) InsertAuditRecord(ctx context.Context, rec domain.AuditRecord) error {
	_, err := r.db.ExecContext(ctx, insertAuditSQL,
		rec.ID,
		rec.BusinessID,
		valStr(rec.ActorID),
		valStr(rec.ActorRole),
		string(rec.Action),
		string(rec.TargetType),
		valStr(rec.TargetID),
		rec.OriginalTextHash,
		rec.SanitizedTextHash,
		string(rec.ViolationCodes),
		valJSON(rec.MetadataJSON),
		rec.CreatedAt.UTC(),
	)
	return err
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanReview(s rowScanner) (domain.Review, error) {
	var rv domain.Review
	var (
		comment, sentiment, urgency      sql.NullString
		draft, langCode                  sql.NullString
		createdAt, updatedAt             sql.NullTime
		repliedAt, analyzedAt            sql.NullTime
		approvalSince, remindedAt        sql.NullTime
		topics, actions, flags, variants []byte
		raw                              []byte
		status                           string
	)
	if err := s.Scan(
		&rv.ID,
		&rv.LocationID,
		&rv.ExternalReviewID,
		&rv.AuthorName,
		&rv.Rating,
		&comment,
		&createdAt,
		&updatedAt,
		&sentiment,
		&urgency,
		&topics,
		&actions,
		&flags,
		&draft,
		&langCode,
		&variants,
		&status,
		&repliedAt,
		&analyzedAt,
		&approvalSince,
		&remindedAt,
		&rv.EscalationLevel,
		&raw,
	); err != nil {
		return domain.Review{}, err
	}

	rv.Comment = strPtr(comment)
	rv.CreatedAt = timePtr(createdAt)
	rv.UpdatedAt = timePtr(updatedAt)
	rv.Sentiment = domain.Sentiment(sentiment.String)
	rv.Urgency = domain.Urgency(urgency.String)
	_ = json.Unmarshal(topics, &rv.Topics)
	_ = json.Unmarshal(actions, &rv.SuggestedActions)
	_ = json.Unmarshal(flags, &rv.RiskFlags)
	rv.ReplyDraft = strPtr(draft)
	rv.ReplyLanguageCode = strPtr(langCode)
	if len(variants) > 0 {
		rv.ReplyVariantsJSON = variants
	}
	rv.Status = domain.Status(status)
	rv.RepliedAt = timePtr(repliedAt)
	rv.LastAnalyzedAt = timePtr(analyzedAt)
	rv.NeedsApprovalSince = timePtr(approvalSince)
	rv.LastReminderAt = timePtr(remindedAt)
	if len(raw) > 0 {
		rv.RawJSON = raw
	}
	return rv, nil
}
