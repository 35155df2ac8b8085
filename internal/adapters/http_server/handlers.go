package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"reviewdesk/internal/app"
	"reviewdesk/internal/domain"
)

type Handlers struct {
	Q *app.QueryService
	P *app.PublicationService
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// blockedProblem is the 422 body for a publication refused by the guard.
type blockedProblem struct {
	problem
	Codes      []domain.ViolationCode `json:"codes"`
	Violations []domain.Violation     `json:"violations"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Route("/v1/locations/{locationID}", func(r chi.Router) {
		r.Get("/reviews", h.listReviews)
		r.Get("/reviews/{reviewID}", h.getReview)
		r.Post("/reviews/{reviewID}/reply", h.publishReply)
		r.Post("/posts", h.publishPost)
	})
	s.mux.Post("/v1/compliance/check", h.checkText)
}

// reviewView is the API shape of a stored review; raw platform payloads stay internal.
type reviewView struct {
	LocationID         string           `json:"location_id"`
	ExternalReviewID   string           `json:"external_review_id"`
	AuthorName         string           `json:"author_name"`
	Rating             int              `json:"rating"`
	Comment            *string          `json:"comment"`
	CreatedAt          *time.Time       `json:"created_at"`
	UpdatedAt          *time.Time       `json:"updated_at"`
	Sentiment          domain.Sentiment `json:"sentiment,omitempty"`
	Urgency            domain.Urgency   `json:"urgency,omitempty"`
	Topics             []string         `json:"topics"`
	SuggestedActions   []string         `json:"suggested_actions"`
	RiskFlags          []string         `json:"risk_flags"`
	ReplyDraft         *string          `json:"reply_draft"`
	ReplyLanguageCode  *string          `json:"reply_language_code,omitempty"`
	ReplyVariants      json.RawMessage  `json:"reply_variants,omitempty"`
	Status             domain.Status    `json:"status"`
	RepliedAt          *time.Time       `json:"replied_at"`
	LastAnalyzedAt     *time.Time       `json:"last_analyzed_at"`
	NeedsApprovalSince *time.Time       `json:"needs_approval_since"`
}

func toView(r domain.Review) reviewView {
	v := reviewView{
		LocationID:         r.LocationID,
		ExternalReviewID:   r.ExternalReviewID,
		AuthorName:         r.AuthorName,
		Rating:             r.Rating,
		Comment:            r.Comment,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		Sentiment:          r.Sentiment,
		Urgency:            r.Urgency,
		Topics:             r.Topics,
		SuggestedActions:   r.SuggestedActions,
		RiskFlags:          r.RiskFlags,
		ReplyDraft:         r.ReplyDraft,
		ReplyLanguageCode:  r.ReplyLanguageCode,
		Status:             r.Status,
		RepliedAt:          r.RepliedAt,
		LastAnalyzedAt:     r.LastAnalyzedAt,
		NeedsApprovalSince: r.NeedsApprovalSince,
	}
	if json.Valid(r.ReplyVariantsJSON) {
		v.ReplyVariants = r.ReplyVariantsJSON
	}
	return v
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	// If client already has this version, short-circuit.
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("failed to write body")
	}
}

func parseStatus(s string) (*domain.Status, bool) {
	if s == "" {
		return nil, true
	}
	st := domain.Status(s)
	switch st {
	case domain.StatusPendingAnalysis, domain.StatusAutoApproved, domain.StatusNeedsApproval, domain.StatusReplied:
		return &st, true
	}
	return nil, false
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	locationID := chi.URLParam(r, "locationID")

	limit := 50
	if ls := r.URL.Query().Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > 200 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
			return
		}
		limit = l
	}
	status, ok := parseStatus(r.URL.Query().Get("status"))
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid status", "status must be PendingAnalysis, AutoApproved, NeedsApproval or Replied")
		return
	}

	out, err := h.Q.ListReviews(r.Context(), locationID, domain.PageQuery{Limit: limit, Status: status})
	if err != nil {
		log.Error().Err(err).Str("location_id", locationID).Msg("list reviews failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "could not list reviews")
		return
	}
	items := make([]reviewView, 0, len(out.Items))
	for _, rv := range out.Items {
		items = append(items, toView(rv))
	}
	writeCached(w, r, map[string]any{"items": items})
}

func (h *Handlers) getReview(w http.ResponseWriter, r *http.Request) {
	rv, err := h.Q.GetReview(r.Context(), chi.URLParam(r, "locationID"), chi.URLParam(r, "reviewID"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Not Found", "review not found")
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "could not load review")
		return
	}
	writeCached(w, r, toView(rv))
}

type replyBody struct {
	Text *string `json:"text"`
}

func (h *Handlers) publishReply(w http.ResponseWriter, r *http.Request) {
	var body replyBody
	if err := decodeOptional(r, &body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", err.Error())
		return
	}
	res, err := h.P.PublishReply(r.Context(), app.ReplyRequest{
		LocationID:       chi.URLParam(r, "locationID"),
		ExternalReviewID: chi.URLParam(r, "reviewID"),
		Text:             body.Text,
		Actor:            actorFrom(r.Context()),
	})
	if err != nil {
		writePublishError(w, err, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type postBody struct {
	Content string `json:"content"`
}

func (h *Handlers) publishPost(w http.ResponseWriter, r *http.Request) {
	var body postBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "expected JSON with a content field")
		return
	}
	res, err := h.P.PublishPost(r.Context(), app.PostRequest{
		LocationID: chi.URLParam(r, "locationID"),
		Content:    body.Content,
		Actor:      actorFrom(r.Context()),
	})
	if err != nil {
		writePublishError(w, err, res)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type checkBody struct {
	Target     domain.Target `json:"target"`
	Text       string        `json:"text"`
	ReviewText string        `json:"review_text"`
}

type checkResponse struct {
	Blocked       bool                   `json:"blocked"`
	SanitizedText string                 `json:"sanitized_text"`
	Codes         []domain.ViolationCode `json:"codes"`
	Violations    []domain.Violation     `json:"violations"`
}

func (h *Handlers) checkText(w http.ResponseWriter, r *http.Request) {
	var body checkBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "expected JSON with target and text")
		return
	}
	if body.Target == "" {
		body.Target = domain.TargetReviewReply
	}
	if body.Target != domain.TargetReviewReply && body.Target != domain.TargetMarketingPost {
		writeProblem(w, http.StatusBadRequest, "Invalid target", "target must be review_reply or marketing_post")
		return
	}
	res := h.P.Check(body.Target, body.Text, body.ReviewText)
	writeJSON(w, http.StatusOK, checkResponse{
		Blocked:       res.Blocked,
		SanitizedText: res.SanitizedText,
		Codes:         res.Codes(),
		Violations:    res.Violations,
	})
}

// decodeOptional accepts an empty body as the zero value.
func decodeOptional(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == io.EOF {
		return nil
	}
	return err
}

func writePublishError(w http.ResponseWriter, err error, res app.PublishResult) {
	var be *domain.BlockedError
	switch {
	case errors.As(err, &be):
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(blockedProblem{
			problem:    problem{Type: "about:blank", Title: "Blocked by compliance guard", Status: http.StatusUnprocessableEntity, Detail: err.Error()},
			Codes:      be.Codes,
			Violations: res.Violations,
		})
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", "review not found")
	case errors.Is(err, domain.ErrAlreadyReplied):
		writeProblem(w, http.StatusConflict, "Already replied", err.Error())
	case errors.Is(err, domain.ErrEmptyText), errors.Is(err, domain.ErrMissingLocationID):
		writeProblem(w, http.StatusBadRequest, "Nothing to publish", err.Error())
	case errors.Is(err, domain.ErrMissingBusinessID):
		log.Error().Err(err).Msg("publication service has no business id")
		writeProblem(w, http.StatusInternalServerError, "Misconfigured", "business id is not configured")
	default:
		log.Warn().Err(err).Msg("publish failed")
		writeProblem(w, http.StatusBadGateway, "Publish failed", strings.TrimSpace(err.Error()))
	}
}
