// Package analysis is the HTTP client for the review analysis service.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"reviewdesk/internal/adapters/observability"
	"reviewdesk/internal/adapters/retry"
	"reviewdesk/internal/domain"
)

var ErrInvalidAnalysis = errors.New("analysis: invalid response")

type Client struct {
	url string
	hc  *http.Client
	key string
	rl  *rate.Limiter
}

// New builds a client for POST {base}/v1/analyze. rps <= 0 defaults to 2.
func New(base, key string, rps int) *Client {
	if rps <= 0 {
		rps = 2
	}
	return &Client{
		url: strings.TrimRight(base, "/") + "/v1/analyze",
		hc:  &http.Client{Timeout: 60 * time.Second},
		key: key,
		rl:  rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// AnalyzeReview returns the structured analysis for one review. A response
// without a known sentiment or a reply draft is an error.
func (c *Client) AnalyzeReview(ctx context.Context, in domain.AnalysisInput) (domain.Analysis, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return domain.Analysis{}, err
	}
	if err := c.rl.Wait(ctx); err != nil {
		return domain.Analysis{}, err
	}

	var lastErr error
	for i := 0; i < retry.Attempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return domain.Analysis{}, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.key != "" {
			req.Header.Set("X-API-Key", c.key)
		}

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("analyzer", "analyze", 0, time.Since(start))
			if ctx.Err() != nil {
				return domain.Analysis{}, ctx.Err()
			}
			lastErr = err
			if i < retry.Attempts-1 && retry.SleepCtx(ctx, retry.Backoff(i)) {
				continue
			}
			return domain.Analysis{}, lastErr
		}
		observability.ObserveExternal("analyzer", "analyze", resp.StatusCode, time.Since(start))

		switch {
		case resp.StatusCode == http.StatusOK:
			var a domain.Analysis
			err := json.NewDecoder(resp.Body).Decode(&a)
			resp.Body.Close()
			if err != nil {
				return domain.Analysis{}, fmt.Errorf("%w: %v", ErrInvalidAnalysis, err)
			}
			return a, validate(a)

		case retry.Retryable(resp.StatusCode):
			wait := retry.After(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = retry.Backoff(i)
			}
			lastErr = fmt.Errorf("analyzer %d", resp.StatusCode)
			if i < retry.Attempts-1 && retry.SleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return domain.Analysis{}, ctx.Err()
			}
			return domain.Analysis{}, lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return domain.Analysis{}, fmt.Errorf("analyzer status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}
	return domain.Analysis{}, lastErr
}

func validate(a domain.Analysis) error {
	switch a.Sentiment {
	case domain.SentimentPositive, domain.SentimentNeutral, domain.SentimentNegative:
	default:
		return fmt.Errorf("%w: sentiment %q", ErrInvalidAnalysis, a.Sentiment)
	}
	if strings.TrimSpace(a.ReplyDraft) == "" {
		return fmt.Errorf("%w: empty reply draft", ErrInvalidAnalysis)
	}
	return nil
}
