// Package platform talks to the review platform: it lists reviews, puts owner
// replies and creates local posts.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"reviewdesk/internal/adapters/observability"
	"reviewdesk/internal/adapters/retry"
	"reviewdesk/internal/domain"
)

const (
	pageSize = 50
	maxPages = 100
)

type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
}

func New(base, key string, rps int) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 20 * time.Second},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// ---- Public API ----

type reviewsPage struct {
	Reviews       []map[string]any `json:"reviews"`
	NextPageToken string           `json:"nextPageToken"`
}

// FetchReviews follows page tokens until the platform stops returning one.
// since, when set, is passed as updatedSince.
func (c *Client) FetchReviews(ctx context.Context, locationID string, since *time.Time) ([]map[string]any, error) {
	var out []map[string]any
	token := ""
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("pageSize", strconv.Itoa(pageSize))
		if token != "" {
			q.Set("pageToken", token)
		}
		if since != nil {
			q.Set("updatedSince", since.UTC().Format(time.RFC3339))
		}

		var pg reviewsPage
		u := fmt.Sprintf("%s/%s/reviews?%s", c.base, locationID, q.Encode())
		if err := c.do(ctx, http.MethodGet, "reviews", u, nil, &pg); err != nil {
			return nil, err
		}
		out = append(out, pg.Reviews...)
		if pg.NextPageToken == "" || pg.NextPageToken == token {
			return out, nil
		}
		token = pg.NextPageToken
	}
	return out, fmt.Errorf("platform: more than %d review pages for %s", maxPages, locationID)
}

// PublishReply creates or replaces the owner reply of a review.
func (c *Client) PublishReply(ctx context.Context, locationID, externalReviewID, text string) error {
	body, err := json.Marshal(map[string]string{"comment": text})
	if err != nil {
		return err
	}
	u := fmt.Sprintf("%s/%s/reviews/%s/reply", c.base, locationID, url.PathEscape(externalReviewID))
	return c.do(ctx, http.MethodPut, "reply", u, body, nil)
}

// PublishPost creates a standard local post and returns the platform's ack.
func (c *Client) PublishPost(ctx context.Context, locationID, content string) (domain.PostAck, error) {
	body, err := json.Marshal(map[string]string{"summary": content, "topicType": "STANDARD", "languageCode": "en"})
	if err != nil {
		return domain.PostAck{}, err
	}
	var raw struct {
		Name       string `json:"name"`
		State      string `json:"state"`
		CreateTime string `json:"createTime"`
	}
	u := fmt.Sprintf("%s/%s/localPosts", c.base, locationID)
	if err := c.do(ctx, http.MethodPost, "local_posts", u, body, &raw); err != nil {
		return domain.PostAck{}, err
	}

	ack := domain.PostAck{ID: raw.Name, State: raw.State, CreatedAt: time.Now().UTC()}
	if i := strings.LastIndexByte(ack.ID, '/'); i >= 0 {
		ack.ID = ack.ID[i+1:]
	}
	if t, err := time.Parse(time.RFC3339, raw.CreateTime); err == nil {
		ack.CreatedAt = t.UTC()
	}
	return ack, nil
}

// ---- Internals ----

var (
	ErrNotFound     = errors.New("platform: not found")
	ErrUnauthorized = errors.New("platform: unauthorized")
	ErrForbidden    = errors.New("platform: forbidden")
)

// do performs one request with client-side rate limiting, retries, and JSON
// decode into out (nil skips decoding). Retries on 429 and transient 5xx,
// honoring Retry-After when provided.
func (c *Client) do(ctx context.Context, method, endpoint, u string, body []byte, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < retry.Attempts; i++ {
		// build a fresh request each attempt
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, rdr)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.key)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "reviewdesk/1.0")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("platform", endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < retry.Attempts-1 && retry.SleepCtx(ctx, retry.Backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal("platform", endpoint, resp.StatusCode, time.Since(start))

		switch {
		case resp.StatusCode == http.StatusNoContent || (resp.StatusCode/100 == 2 && out == nil):
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil

		case resp.StatusCode/100 == 2:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return ErrNotFound

		case resp.StatusCode == http.StatusUnauthorized:
			resp.Body.Close()
			return ErrUnauthorized

		case resp.StatusCode == http.StatusForbidden:
			resp.Body.Close()
			return ErrForbidden

		case retry.Retryable(resp.StatusCode):
			wait := retry.After(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = retry.Backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i < retry.Attempts-1 && retry.SleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}
	return lastErr
}
