package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "quill.yaml")
	cfg := Default()
	cfg.Account.Username = "quill_test"
	cfg.Publish.Timeout = 10 * time.Second
	if err := Save(p, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Account.Username != "quill_test" {
		t.Fatalf("username lost: %q", got.Account.Username)
	}
	if got.Publish.Timeout != 10*time.Second {
		t.Fatalf("timeout lost: %v", got.Publish.Timeout)
	}
	pc, ok := got.RateLimits.Operations["post_create"]
	if !ok || pc.MaxCalls != 50 || pc.Window != 24*time.Hour {
		t.Fatalf("post_create policy lost: %+v", pc)
	}
}

func TestResolveEnv(t *testing.T) {
	t.Setenv("X_BEARER_TOKEN", "env-bearer")
	t.Setenv("X_CONSUMER_KEY", "ck")
	var cfg Config
	cfg.Credentials.ConsumerKey = "explicit"
	cfg.ResolveEnv()
	if cfg.Credentials.BearerToken != "env-bearer" {
		t.Fatalf("bearer not resolved: %q", cfg.Credentials.BearerToken)
	}
	if cfg.Credentials.ConsumerKey != "explicit" {
		t.Fatal("explicit value must win over env")
	}
}

func TestHasWriteCredentials(t *testing.T) {
	var cfg Config
	if cfg.HasWriteCredentials() {
		t.Fatal("empty bundle should not count")
	}
	cfg.Credentials = CredentialsConfig{ConsumerKey: "a", ConsumerSecret: "b", AccessToken: "c", AccessSecret: "d"}
	if !cfg.HasWriteCredentials() {
		t.Fatal("full bundle should count")
	}
}
