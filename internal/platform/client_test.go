package platform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quill/internal/errs"
)

func newTestClient(ts *httptest.Server) *Client {
	c := NewClient(Credentials{
		BearerToken:    "bt",
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
		AccessToken:    "at",
		AccessSecret:   "as",
	})
	c.baseURL = ts.URL
	c.uploadURL = ts.URL
	c.httpClient = ts.Client()
	c.maxAttempts = 3
	c.baseBackoff = 10 * time.Millisecond
	return c
}

func TestPostContentSignsAndParsesReceipt(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "OAuth ") {
			t.Fatalf("expected OAuth header, got %q", auth)
		}
		if !strings.Contains(auth, "oauth_signature=") {
			t.Fatalf("missing signature in %q", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"12345"}}`))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	rec, err := c.PostContent(context.Background(), "hello world", nil)
	if err != nil {
		t.Fatalf("PostContent: %v", err)
	}
	if rec.ID != "12345" {
		t.Fatalf("expected id 12345, got %q", rec.ID)
	}
	if !strings.HasSuffix(rec.URL, "/12345") {
		t.Fatalf("unexpected url %q", rec.URL)
	}
}

func TestOAuth1SignatureIsDeterministic(t *testing.T) {
	c := NewClient(Credentials{ConsumerKey: "ck", ConsumerSecret: "cs", AccessToken: "at", AccessSecret: "as"})
	c.nowFn = func() time.Time { return time.Unix(1700000000, 0) }
	c.nonceFn = func() string { return "fixednonce" }

	req1, _ := http.NewRequest(http.MethodPost, "https://api.twitter.com/2/tweets", nil)
	req2, _ := http.NewRequest(http.MethodPost, "https://api.twitter.com/2/tweets", nil)
	c.oauth1Sign(req1, nil)
	c.oauth1Sign(req2, nil)
	if req1.Header.Get("Authorization") != req2.Header.Get("Authorization") {
		t.Fatal("same inputs should produce the same signature")
	}
	if !strings.Contains(req1.Header.Get("Authorization"), `oauth_timestamp="1700000000"`) {
		t.Fatalf("timestamp not injected: %q", req1.Header.Get("Authorization"))
	}
}

func TestDoWithRetryHonors429(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"id":"9"}}`))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	if _, err := c.PostContent(context.Background(), "retry me", nil); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if attempts < 2 {
		t.Fatalf("expected at least 2 attempts, got %d", attempts)
	}
}

func TestClientErrorIsPermanent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	c := newTestClient(ts)
	_, err := c.PostContent(context.Background(), "nope", nil)
	var ext *errs.ExternalCallError
	if !errors.As(err, &ext) {
		t.Fatalf("expected ExternalCallError, got %v", err)
	}
	if ext.Transient {
		t.Fatal("403 should be permanent")
	}
}

func TestGetProfileUsesBearer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer bt" {
			t.Fatalf("expected bearer auth, got %q", got)
		}
		_, _ = w.Write([]byte(`{"data":{"id":"1","name":"Quill","username":"quill","public_metrics":{"followers_count":10,"following_count":5,"tweet_count":42}}}`))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	p, err := c.GetProfile(context.Background())
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.Username != "quill" || p.FollowersCount != 10 {
		t.Fatalf("unexpected profile %+v", p)
	}
}
