// Package platform talks to the X API: tweet creation, media upload, and
// profile lookup. It is the only package that performs network calls on
// the publish path.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"quill/internal/errs"
)

// Credentials is the secret bundle for one platform account.
type Credentials struct {
	BearerToken    string
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

// Receipt identifies a created tweet.
type Receipt struct {
	ID  string
	URL string
}

// Profile is the subset of account fields shown to the user.
type Profile struct {
	ID             string
	Username       string
	Name           string
	FollowersCount int
	FollowingCount int
	TweetCount     int
}

// Client is an X API client: bearer auth for reads, OAuth 1.0a for writes.
type Client struct {
	baseURL     string
	uploadURL   string
	creds       Credentials
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
	nowFn       func() time.Time
	nonceFn     func() string
}

func NewClient(creds Credentials) *Client {
	return &Client{
		baseURL:     "https://api.twitter.com/2",
		uploadURL:   "https://upload.twitter.com/1.1",
		creds:       creds,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		limiter:     newDefaultLimiter(),
		maxAttempts: getEnvInt("X_API_MAX_ATTEMPTS", 5),
		baseBackoff: time.Duration(getEnvInt("X_API_BASE_BACKOFF_MS", 500)) * time.Millisecond,
		nowFn:       time.Now,
		nonceFn:     defaultNonce,
	}
}

// newDefaultLimiter creates a request smoother using env overrides if present.
func newDefaultLimiter() *rate.Limiter {
	rps := 2.0
	burst := 10
	if v := os.Getenv("X_API_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			rps = f
		}
	}
	if v := os.Getenv("X_API_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			burst = n
		}
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func (c *Client) bearer(req *http.Request) {
	if c.creds.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.creds.BearerToken)
	}
	req.Header.Set("Accept", "application/json")
}

// PostContent creates a tweet with optional pre-uploaded media handles.
func (c *Client) PostContent(ctx context.Context, text string, mediaHandles []string) (Receipt, error) {
	body := map[string]any{"text": text}
	if len(mediaHandles) > 0 {
		body["media"] = map[string]any{"media_ids": mediaHandles}
	}
	payload, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tweets", bytes.NewReader(payload))
	if err != nil {
		return Receipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.oauth1Sign(req, nil)
	if err := c.limiter.Wait(ctx); err != nil {
		return Receipt{}, err
	}
	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return Receipt{}, &errs.ExternalCallError{Op: "post_content", Transient: true, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Receipt{}, statusError("post_content", resp.StatusCode)
	}
	var raw struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Receipt{}, &errs.ExternalCallError{Op: "post_content", Transient: true, Err: err}
	}
	return Receipt{ID: raw.Data.ID, URL: "https://x.com/i/web/status/" + raw.Data.ID}, nil
}

// GetProfile returns the authenticated account's profile.
func (c *Client) GetProfile(ctx context.Context) (Profile, error) {
	u := c.baseURL + "/users/me?" + encodeQuery(map[string]string{"user.fields": "public_metrics"})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Profile{}, err
	}
	c.bearer(req)
	if err := c.limiter.Wait(ctx); err != nil {
		return Profile{}, err
	}
	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return Profile{}, &errs.ExternalCallError{Op: "profile_lookup", Transient: true, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Profile{}, statusError("profile_lookup", resp.StatusCode)
	}
	var raw struct {
		Data struct {
			ID            string `json:"id"`
			Name          string `json:"name"`
			Username      string `json:"username"`
			PublicMetrics struct {
				FollowersCount int `json:"followers_count"`
				FollowingCount int `json:"following_count"`
				TweetCount     int `json:"tweet_count"`
			} `json:"public_metrics"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Profile{}, &errs.ExternalCallError{Op: "profile_lookup", Transient: true, Err: err}
	}
	return Profile{
		ID:             raw.Data.ID,
		Username:       raw.Data.Username,
		Name:           raw.Data.Name,
		FollowersCount: raw.Data.PublicMetrics.FollowersCount,
		FollowingCount: raw.Data.PublicMetrics.FollowingCount,
		TweetCount:     raw.Data.PublicMetrics.TweetCount,
	}, nil
}

// statusError maps an HTTP status onto the transient/permanent split:
// 429 and 5xx may succeed on a later attempt, other 4xx never will.
func statusError(op string, status int) error {
	transient := status == http.StatusTooManyRequests || status >= 500
	return &errs.ExternalCallError{Op: op, Transient: transient, Err: fmt.Errorf("x api status %d", status)}
}

func (c *Client) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	backoff := c.baseBackoff
	var lastErr error
	var body []byte
	if req.Body != nil {
		body, _ = readAll(req)
	}
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err := c.httpClient.Do(cloneRequest(ctx, req, body))
		if err == nil {
			if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599) {
				ra := resp.Header.Get("Retry-After")
				_ = resp.Body.Close()
				wait := backoff
				if ra != "" {
					if secs, err := strconv.Atoi(ra); err == nil {
						wait = time.Duration(secs) * time.Second
					} else if t, err := http.ParseTime(ra); err == nil {
						if d := time.Until(t); d > 0 {
							wait = d
						}
					}
				}
				// jitter +/-20%
				jitter := time.Duration(float64(wait) * 0.2)
				if jitter > 0 {
					wait = wait - jitter + time.Duration(time.Now().UnixNano()%int64(2*jitter))
				}
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				backoff *= 2
				lastErr = fmt.Errorf("x api status %d", resp.StatusCode)
				continue
			}
			return resp, nil
		}
		lastErr = err
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("request failed after %d attempts: %v", c.maxAttempts, lastErr)
}

func readAll(req *http.Request) ([]byte, error) {
	defer req.Body.Close()
	var buf bytes.Buffer
	_, err := buf.ReadFrom(req.Body)
	return buf.Bytes(), err
}

// cloneRequest re-arms the body so retries resend it.
func cloneRequest(ctx context.Context, req *http.Request, body []byte) *http.Request {
	out := req.Clone(ctx)
	if body != nil {
		out.Body = noopCloser{bytes.NewReader(body)}
		out.ContentLength = int64(len(body))
	}
	return out
}

type noopCloser struct{ *bytes.Reader }

func (noopCloser) Close() error { return nil }

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil && i > 0 {
		return i
	}
	return def
}
