package analysis_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"reviewdesk/internal/adapters/analysis"
	"reviewdesk/internal/domain"
)

func TestClient_AnalyzeReview(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/analyze" || r.Header.Get("X-API-Key") != "k" {
			t.Errorf("unexpected request %s key=%q", r.URL.Path, r.Header.Get("X-API-Key"))
		}
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var in domain.AnalysisInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sentiment":   "negative",
			"urgency":     "high",
			"topics":      []string{"wait time"},
			"risk_flags":  []string{},
			"reply_draft": "Dear " + in.AuthorName + ", sorry.",
		})
	}))
	defer ts.Close()

	cl := analysis.New(ts.URL, "k", 100)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	a, err := cl.AnalyzeReview(ctx, domain.AnalysisInput{AuthorName: "Ana", Rating: 1, Comment: "Long wait"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if a.Sentiment != domain.SentimentNegative || a.Urgency != domain.UrgencyHigh || a.ReplyDraft != "Dear Ana, sorry." {
		t.Fatalf("unexpected analysis: %+v", a)
	}
}

func TestClient_RejectsIncompleteAnalysis(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sentiment":"ecstatic","reply_draft":"hi"}`))
	}))
	defer ts.Close()

	_, err := analysis.New(ts.URL, "", 100).AnalyzeReview(context.Background(), domain.AnalysisInput{})
	if !errors.Is(err, analysis.ErrInvalidAnalysis) {
		t.Fatalf("expected ErrInvalidAnalysis, got %v", err)
	}
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "bad input", http.StatusBadRequest)
	}))
	defer ts.Close()

	if _, err := analysis.New(ts.URL, "", 100).AnalyzeReview(context.Background(), domain.AnalysisInput{}); err == nil {
		t.Fatalf("expected error")
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected a single attempt, got %d", hits)
	}
}
