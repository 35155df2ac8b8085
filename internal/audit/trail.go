package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"reviewdesk/internal/domain"
)

// Trail writes hash-committed audit records. Raw text never reaches the store.
type Trail struct {
	repo domain.AuditRepository
	now  func() time.Time
}

func New(repo domain.AuditRepository) *Trail {
	return &Trail{repo: repo, now: time.Now}
}

// Digest is the content hash stored in place of text.
func Digest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Record persists e and returns the new record id.
func (t *Trail) Record(ctx context.Context, e domain.AuditEvent) (string, error) {
	if strings.TrimSpace(e.BusinessID) == "" {
		return "", fmt.Errorf("audit: %w", domain.ErrMissingBusinessID)
	}

	codes, err := json.Marshal(codeSet(e.ViolationCodes))
	if err != nil {
		return "", fmt.Errorf("audit: marshal violation codes: %w", err)
	}
	var meta []byte
	if len(e.Metadata) > 0 {
		if meta, err = json.Marshal(e.Metadata); err != nil {
			return "", fmt.Errorf("audit: marshal metadata: %w", err)
		}
	}

	rec := domain.AuditRecord{
		ID:                uuid.NewString(),
		BusinessID:        e.BusinessID,
		ActorID:           e.ActorID,
		ActorRole:         e.ActorRole,
		Action:            e.Action,
		TargetType:        e.TargetType,
		TargetID:          e.TargetID,
		OriginalTextHash:  Digest(e.OriginalText),
		SanitizedTextHash: Digest(e.SanitizedText),
		ViolationCodes:    codes,
		MetadataJSON:      meta,
		CreatedAt:         t.now().UTC(),
	}
	if err := t.repo.InsertAuditRecord(ctx, rec); err != nil {
		return "", fmt.Errorf("audit: insert %s: %w", e.Action, err)
	}
	return rec.ID, nil
}

// codeSet dedupes and sorts so equal sets serialize identically.
func codeSet(in []domain.ViolationCode) []string {
	seen := make(map[domain.ViolationCode]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, c := range in {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, string(c))
	}
	sort.Strings(out)
	return out
}
