package mysql

// Note: `comment` is a keyword in some dialects; keep it quoted everywhere.
const reviewColumns = "id, location_id, external_review_id, author_name, rating, `comment`,\n" +
	"  review_created_at, review_updated_at, sentiment, urgency, topics, suggested_actions,\n" +
	"  risk_flags, reply_draft, reply_language_code, reply_variants, status, replied_at,\n" +
	"  last_analyzed_at, needs_approval_since, last_reminder_at, escalation_level, raw"

// One row per (location, external review). The reconciler has already merged
// the row, so every column is overwritten; reply state only moves forward.
const upsertReviewSQL = "INSERT INTO reviews\n" +
	"  (location_id, external_review_id, author_name, rating, `comment`,\n" +
	"   review_created_at, review_updated_at, sentiment, urgency, topics, suggested_actions,\n" +
	"   risk_flags, reply_draft, reply_language_code, reply_variants, status, replied_at,\n" +
	"   last_analyzed_at, needs_approval_since, last_reminder_at, escalation_level, raw)\n" +
	"VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)\n" +
	"ON DUPLICATE KEY UPDATE\n" +
	"  author_name          = VALUES(author_name),\n" +
	"  rating               = VALUES(rating),\n" +
	"  `comment`            = VALUES(`comment`),\n" +
	"  review_created_at    = VALUES(review_created_at),\n" +
	"  review_updated_at    = VALUES(review_updated_at),\n" +
	"  sentiment            = VALUES(sentiment),\n" +
	"  urgency              = VALUES(urgency),\n" +
	"  topics               = VALUES(topics),\n" +
	"  suggested_actions    = VALUES(suggested_actions),\n" +
	"  risk_flags           = VALUES(risk_flags),\n" +
	"  reply_draft          = VALUES(reply_draft),\n" +
	"  reply_language_code  = VALUES(reply_language_code),\n" +
	"  reply_variants       = COALESCE(VALUES(reply_variants), reviews.reply_variants),\n" +
	"  status               = IF(reviews.status = 'Replied', reviews.status, VALUES(status)),\n" +
	"  replied_at           = COALESCE(reviews.replied_at, VALUES(replied_at)),\n" +
	"  last_analyzed_at     = VALUES(last_analyzed_at),\n" +
	"  needs_approval_since = VALUES(needs_approval_since),\n" +
	"  last_reminder_at     = VALUES(last_reminder_at),\n" +
	"  escalation_level     = VALUES(escalation_level),\n" +
	"  raw                  = COALESCE(VALUES(raw), reviews.raw)\n"

const markRepliedSQL = `
UPDATE reviews
SET status               = 'Replied',
    replied_at           = COALESCE(replied_at, ?),
    needs_approval_since = NULL
WHERE location_id = ? AND external_review_id = ?
`

const reviewExistsSQL = `SELECT 1 FROM reviews WHERE location_id = ? AND external_review_id = ?`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const getReviewSQL = "SELECT " + reviewColumns + "\nFROM reviews\nWHERE location_id = ? AND external_review_id = ?"

// Newest platform reviews first; rows without a platform timestamp sort last.
const listReviewsSQL = "SELECT " + reviewColumns + "\nFROM reviews\nWHERE location_id = ?\n" +
	"ORDER BY review_created_at IS NULL, review_created_at DESC, id DESC\nLIMIT ?"

const listReviewsByStatusSQL = "SELECT " + reviewColumns + "\nFROM reviews\nWHERE location_id = ? AND status = ?\n" +
	"ORDER BY review_created_at IS NULL, review_created_at DESC, id DESC\nLIMIT ?"

const insertAuditSQL = `
INSERT INTO audit_events
  (id, business_id, actor_id, actor_role, action, target_type, target_id,
   original_text_hash, sanitized_text_hash, violation_codes, metadata, created_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`
