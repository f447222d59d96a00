package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Address != ":8470" {
		t.Fatalf("address = %q", cfg.Server.Address)
	}
	if cfg.OpenReview.Strategy != "api" {
		t.Fatalf("strategy = %q", cfg.OpenReview.Strategy)
	}
	if len(cfg.OpenReview.APIBases) != 3 {
		t.Fatalf("api bases = %v", cfg.OpenReview.APIBases)
	}
	if cfg.OpenReview.LookupTTL != 7*24*time.Hour || cfg.OpenReview.CitationTTL != 30*24*time.Hour {
		t.Fatalf("ttls = %v / %v", cfg.OpenReview.LookupTTL, cfg.OpenReview.CitationTTL)
	}
	if cfg.OpenReview.SearchTimeout != 24*time.Second || cfg.OpenReview.ForumTimeout != 20*time.Second {
		t.Fatalf("timeouts = %v / %v", cfg.OpenReview.SearchTimeout, cfg.OpenReview.ForumTimeout)
	}
	if cfg.Storage.Cache != "memory" {
		t.Fatalf("cache backend = %q", cfg.Storage.Cache)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("ORLINK_SERVER_ADDRESS", ":9000")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Address != ":9000" {
		t.Fatalf("address = %q, want :9000", cfg.Server.Address)
	}
}

func TestOpenReviewValidate(t *testing.T) {
	bad := OpenReviewConfig{Strategy: "psychic", WebBase: "https://openreview.net"}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
	noBases := OpenReviewConfig{Strategy: "api", WebBase: "https://openreview.net"}
	if err := noBases.Validate(); err == nil {
		t.Fatal("expected error for api strategy without bases")
	}
	browser := OpenReviewConfig{Strategy: "browser", WebBase: "https://openreview.net"}
	if err := browser.Validate(); err != nil {
		t.Fatalf("browser strategy should not require bases: %v", err)
	}
}

func TestStorageValidate(t *testing.T) {
	if err := (StorageConfig{Cache: "postgres"}).Validate(); err == nil {
		t.Fatal("expected error for unknown cache backend")
	}
	if err := (StorageConfig{Cache: "redis"}).Validate(); err == nil {
		t.Fatal("expected error for redis without host/port")
	}
	ok := StorageConfig{Cache: "redis", Redis: RedisConfig{Host: "localhost", Port: "6379"}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid redis config rejected: %v", err)
	}
}
