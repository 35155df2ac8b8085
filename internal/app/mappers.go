package app

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"reviewdesk/internal/domain"
)

/********** alias registries (single source of truth) **********/

var reviewAliases = map[string][]string{
	"external_id": {"reviewId", "review_id", "id", "name"},
	"author":      {"reviewer.displayName", "reviewer.name", "authorName", "author_name", "author"},
	"comment":     {"comment", "text", "review_text", "body"},
	"create_time": {"createTime", "create_time", "createdAt", "created_at"},
	"update_time": {"updateTime", "update_time", "updatedAt", "updated_at"},
	"rating":      {"starRating", "star_rating", "rating", "stars"},
}

var replyAliases = map[string][]string{
	"container": {"reviewReply", "review_reply", "reply", "ownerResponse", "owner_response"},
	"comment":   {"comment", "text", "body"},
	"time":      {"updateTime", "update_time", "createTime", "create_time", "createdAt", "created_at", "time"},
	"flag":      {"hasReply", "has_reply", "replied"},
	"flag_time": {"repliedAt", "replied_at", "replyTime", "reply_time"},
}

// textual star levels; anything else maps to 0
var starEnum = map[string]int{
	"ONE": 1, "TWO": 2, "THREE": 3, "FOUR": 4, "FIVE": 5,
}

var errNoExternalID = errors.New("external review has no id")

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// lookupStr returns string at path or "".
func lookupStr(m map[string]any, path string) string {
	if v := lookupAny(m, path); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// firstNonEmpty: first non-empty string for a named alias set.
func firstNonEmpty(m map[string]any, aliases map[string][]string, key string) string {
	for _, p := range aliases[key] {
		if s := strings.TrimSpace(lookupStr(m, p)); s != "" {
			return s
		}
	}
	return ""
}

func firstTime(m map[string]any, aliases map[string][]string, key string) *time.Time {
	for _, p := range aliases[key] {
		if t := parseTime(lookupStr(m, p)); t != nil {
			return t
		}
	}
	return nil
}

func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			// the store keeps microseconds; finer precision would look newer on every pass
			u := t.UTC().Truncate(time.Microsecond)
			return &u
		}
	}
	return nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func ptrStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

/********** rating **********/

// normalizeRating accepts a number, a numeric string or a ONE..FIVE enum.
func normalizeRating(v any) int {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0
		}
		f = n
	case string:
		s := strings.ToUpper(strings.TrimSpace(t))
		if n, ok := starEnum[s]; ok {
			return n
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = n
	default:
		return 0
	}
	n := int(math.Round(f))
	if n < 1 || n > 5 {
		return 0
	}
	return n
}

func ratingOf(m map[string]any) int {
	for _, p := range reviewAliases["rating"] {
		if v := lookupAny(m, p); v != nil {
			return normalizeRating(v)
		}
	}
	return 0
}

/********** reply evidence **********/

// ExtractReplyEvidence recognizes the reply shapes the platform is known to send.
func ExtractReplyEvidence(m map[string]any) domain.ReplyEvidence {
	for _, key := range replyAliases["container"] {
		switch v := m[key].(type) {
		case map[string]any:
			comment := firstNonEmpty(v, replyAliases, "comment")
			at := firstTime(v, replyAliases, "time")
			if comment != "" {
				return domain.ReplyComment{Comment: comment, At: at}
			}
			if at != nil {
				return domain.ReplyTimestamp{At: *at}
			}
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return domain.ReplyComment{Comment: s}
			}
		}
	}
	for _, key := range replyAliases["flag"] {
		if b, ok := m[key].(bool); ok && b {
			if at := firstTime(m, replyAliases, "flag_time"); at != nil {
				return domain.ReplyTimestamp{At: *at}
			}
			return domain.ReplyFlag{}
		}
	}
	return domain.NoReply{}
}

/********** review mapper **********/

func mapExternalReview(r map[string]any) (domain.ExternalReview, error) {
	id := firstNonEmpty(r, reviewAliases, "external_id")
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		id = id[i+1:] // resource names like accounts/1/locations/2/reviews/abc
	}
	if id == "" {
		return domain.ExternalReview{}, errNoExternalID
	}

	ext := domain.ExternalReview{
		ExternalID: id,
		AuthorName: firstNonEmpty(r, reviewAliases, "author"),
		Rating:     ratingOf(r),
		Comment:    ptrStr(firstNonEmpty(r, reviewAliases, "comment")),
		CreateTime: firstTime(r, reviewAliases, "create_time"),
		UpdateTime: firstTime(r, reviewAliases, "update_time"),
		Reply:      ExtractReplyEvidence(r),
	}
	if ext.UpdateTime == nil {
		ext.UpdateTime = ext.CreateTime
	}

	if raw, err := json.Marshal(r); err == nil {
		ext.RawJSON = raw
	} else {
		log.Error().Err(err).Str("context", "mapExternalReview").Msg("marshal review failed")
	}
	return ext, nil
}
