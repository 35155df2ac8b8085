package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	server "reviewdesk/internal/adapters/http_server"
	"reviewdesk/internal/app"
	"reviewdesk/internal/domain"
	"reviewdesk/internal/shared"
)

type memRepo struct {
	mu   sync.Mutex
	rows map[string]domain.Review
}

func (m *memRepo) UpsertReview(ctx context.Context, r domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[r.ExternalReviewID] = r
	return nil
}

func (m *memRepo) MarkReplied(ctx context.Context, loc, ext string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[ext]
	if !ok {
		return domain.ErrNotFound
	}
	r.Status, r.RepliedAt = domain.StatusReplied, &at
	m.rows[ext] = r
	return nil
}

func (m *memRepo) GetReview(ctx context.Context, loc, ext string) (domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[ext]
	if !ok || r.LocationID != loc {
		return domain.Review{}, domain.ErrNotFound
	}
	return r, nil
}

func (m *memRepo) ListReviews(ctx context.Context, loc string, pg domain.PageQuery) (domain.ReviewsPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Review
	for _, r := range m.rows {
		if r.LocationID == loc && (pg.Status == nil || *pg.Status == r.Status) {
			out = append(out, r)
		}
	}
	return domain.ReviewsPage{Items: out}, nil
}

type stubPublisher struct {
	err  error
	sent []string
}

func (p *stubPublisher) PublishReply(ctx context.Context, loc, ext, text string) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, text)
	return nil
}

func (p *stubPublisher) PublishPost(ctx context.Context, loc, content string) (domain.PostAck, error) {
	if p.err != nil {
		return domain.PostAck{}, p.err
	}
	p.sent = append(p.sent, content)
	return domain.PostAck{ID: "p-1", State: "LIVE"}, nil
}

type stubAuditor struct{ events []domain.AuditEvent }

func (a *stubAuditor) Record(ctx context.Context, e domain.AuditEvent) (string, error) {
	a.events = append(a.events, e)
	return "audit-1", nil
}

const sig = "The Bright Smile Team"

func newTestServer(t *testing.T, pub *stubPublisher, aud *stubAuditor) *httptest.Server {
	t.Helper()
	comment := "Friendly staff"
	draft := "Dear Ana, thank you for the kind words about Bright Smile Dental. " + sig
	risky := "Dear Ana, we have your date of birth on file. " + sig
	repo := &memRepo{rows: map[string]domain.Review{
		"r1": {LocationID: "loc-1", ExternalReviewID: "r1", AuthorName: "Ana Lopez", Rating: 5, Comment: &comment, ReplyDraft: &draft, Status: domain.StatusNeedsApproval},
		"r2": {LocationID: "loc-1", ExternalReviewID: "r2", AuthorName: "Ana Lopez", Rating: 2, Comment: &comment, ReplyDraft: &risky, Status: domain.StatusNeedsApproval},
		"r3": {LocationID: "loc-1", ExternalReviewID: "r3", AuthorName: "Bo", Rating: 5, Status: domain.StatusReplied},
	}}
	policy := shared.Policy{BusinessName: "Bright Smile Dental", Signature: sig, MinWords: 5, MaxWords: 120}

	srv := server.New()
	srv.MountHandlers(&server.Handlers{
		Q: app.NewQueryService(repo, nil, time.Minute),
		P: app.NewPublicationService(repo, pub, aud, nil, policy, "biz-1", 2),
	})
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, body string, hdr map[string]string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func TestListReviews_FiltersAndValidates(t *testing.T) {
	ts := newTestServer(t, &stubPublisher{}, &stubAuditor{})

	res, err := http.Get(ts.URL + "/v1/locations/loc-1/reviews?status=Replied")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer res.Body.Close()
	var body struct {
		Items []struct {
			ExternalReviewID string `json:"external_review_id"`
			Status           string `json:"status"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.StatusCode != http.StatusOK || len(body.Items) != 1 || body.Items[0].ExternalReviewID != "r3" {
		t.Fatalf("unexpected response %d: %+v", res.StatusCode, body)
	}
	if res.Header.Get("ETag") == "" {
		t.Fatalf("expected an ETag")
	}

	for _, q := range []string{"?limit=0", "?limit=500", "?status=Archived"} {
		res, err := http.Get(ts.URL + "/v1/locations/loc-1/reviews" + q)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", q, res.StatusCode)
		}
	}
}

func TestGetReview_NotFound(t *testing.T) {
	ts := newTestServer(t, &stubPublisher{}, &stubAuditor{})
	res, err := http.Get(ts.URL + "/v1/locations/loc-1/reviews/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.StatusCode)
	}
}

func TestPublishReply_ApprovedByActor(t *testing.T) {
	pub, aud := &stubPublisher{}, &stubAuditor{}
	ts := newTestServer(t, pub, aud)

	res := post(t, ts.URL+"/v1/locations/loc-1/reviews/r1/reply", "", map[string]string{"X-Actor-ID": "user-7", "X-Actor-Role": "manager"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	if len(pub.sent) != 1 || len(aud.events) != 1 || aud.events[0].Action != domain.AuditReplyApproved {
		t.Fatalf("unexpected publish/audit: %v %+v", pub.sent, aud.events)
	}

	again := post(t, ts.URL+"/v1/locations/loc-1/reviews/r1/reply", "", nil)
	if again.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on second publish, got %d", again.StatusCode)
	}
}

func TestPublishReply_BlockedIs422WithCodes(t *testing.T) {
	pub := &stubPublisher{}
	ts := newTestServer(t, pub, &stubAuditor{})

	res := post(t, ts.URL+"/v1/locations/loc-1/reviews/r2/reply", "", nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.StatusCode)
	}
	var body struct {
		Codes []string `json:"codes"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Codes) != 1 || body.Codes[0] != "HighConfidencePHI" || len(pub.sent) != 0 {
		t.Fatalf("unexpected body %+v, sent %v", body, pub.sent)
	}
}

func TestPublishReply_TransportFailureIs502(t *testing.T) {
	ts := newTestServer(t, &stubPublisher{err: errors.New("remote 503")}, &stubAuditor{})
	res := post(t, ts.URL+"/v1/locations/loc-1/reviews/r1/reply", `{"text":"Dear Ana, thanks for visiting Bright Smile Dental. `+sig+`"}`, nil)
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", res.StatusCode)
	}
}

func TestPublishPost(t *testing.T) {
	pub, aud := &stubPublisher{}, &stubAuditor{}
	ts := newTestServer(t, pub, aud)

	res := post(t, ts.URL+"/v1/locations/loc-1/posts", `{"content":"Open late on Fridays!"}`, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", res.StatusCode)
	}
	if len(pub.sent) != 1 || aud.events[0].Action != domain.AuditPostPublished {
		t.Fatalf("unexpected publish/audit: %v %+v", pub.sent, aud.events)
	}
	if bad := post(t, ts.URL+"/v1/locations/loc-1/posts", `{"content":"  "}`, nil); bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty content, got %d", bad.StatusCode)
	}
}

func TestComplianceCheck(t *testing.T) {
	ts := newTestServer(t, &stubPublisher{}, &stubAuditor{})

	res := post(t, ts.URL+"/v1/compliance/check", `{"target":"review_reply","text":"Thanks! Call me at 555-987-6543."}`, nil)
	var body struct {
		Blocked       bool     `json:"blocked"`
		SanitizedText string   `json:"sanitized_text"`
		Codes         []string `json:"codes"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Blocked || !strings.Contains(body.SanitizedText, "[phone removed]") || len(body.Codes) != 1 || body.Codes[0] != "PossiblePHI" {
		t.Fatalf("unexpected check result: %+v", body)
	}

	if bad := post(t, ts.URL+"/v1/compliance/check", `{"target":"tweet","text":"x"}`, nil); bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown target, got %d", bad.StatusCode)
	}
}
