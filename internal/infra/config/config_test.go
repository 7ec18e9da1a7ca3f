package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"APP_ENV", "HTTP_ADDR", "MONGO_URI", "KAFKA_BROKERS", "SESSION_TTL", "ADMIN_EMAILS", "RETRY_BACKOFF", "S3_ENDPOINT"} {
		t.Setenv(key, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":3000" {
		t.Fatalf("expected :3000, got %q", cfg.HTTPAddr)
	}
	if cfg.SessionTTL != 24*time.Hour || cfg.ResetTokenTTL != time.Hour {
		t.Fatalf("unexpected ttls %v %v", cfg.SessionTTL, cfg.ResetTokenTTL)
	}
	if len(cfg.KafkaBrokers) != 0 || cfg.MongoURI != "" {
		t.Fatalf("expected no external adapters, got %+v", cfg)
	}
	if cfg.S3Enabled() {
		t.Fatalf("expected s3 disabled without endpoint")
	}
	if len(cfg.RetryBackoff) != 3 || cfg.RetryBackoff[2] != 30*time.Second {
		t.Fatalf("unexpected backoff %v", cfg.RetryBackoff)
	}
}

func TestLoadParsesListsAndRejectsBadValues(t *testing.T) {
	t.Setenv("ADMIN_EMAILS", " ops@kisaan.test, ,help@kisaan.test ")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("APP_ENV", "PROD")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if strings.Join(cfg.AdminEmails, "|") != "ops@kisaan.test|help@kisaan.test" {
		t.Fatalf("unexpected admin emails %v", cfg.AdminEmails)
	}
	if len(cfg.KafkaBrokers) != 2 {
		t.Fatalf("expected 2 brokers, got %v", cfg.KafkaBrokers)
	}
	if !cfg.SessionSecure {
		t.Fatalf("expected secure cookies in prod")
	}

	t.Setenv("SESSION_TTL", "forever")
	if _, err := Load(); err == nil {
		t.Fatalf("expected invalid SESSION_TTL to fail")
	}
	t.Setenv("SESSION_TTL", "")
	t.Setenv("REDIS_DB", "x")
	if _, err := Load(); err == nil {
		t.Fatalf("expected invalid REDIS_DB to fail")
	}
}
