package config

import (
	"testing"
	"time"
)

var allKeys = []string{
	"BACKEND_URL", "BACKEND_TIMEOUT", "BACKEND_RATE_LIMIT", "BACKEND_RATE_BURST", "IDENTIFY_STRATEGY", "MATCH_THRESHOLD",
	"EMBEDDING_URL", "EMBEDDING_TIMEOUT", "DESCRIPTOR_CACHE_PATH", "LOCAL_INDEX",
	"CAMERA_DIR", "CAMERA_USER_AGENT", "CAMERA_FACING_MODE_ONLY", "MAX_UPLOAD_DIMENSION",
	"LOG_LEVEL", "LOG_FILE", "WEB_HOST", "WEB_PORT", "WEB_ALLOWED_ORIGINS", "WEB_REQUEST_TIMEOUT",
}

// clearEnv blanks every key for the duration of the test; empty values mean unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Backend.URL != "http://localhost:5000/api" {
		t.Errorf("unexpected backend URL %q", cfg.Backend.URL)
	}
	if cfg.Backend.Timeout != 30*time.Second {
		t.Errorf("unexpected timeout %v", cfg.Backend.Timeout)
	}
	if cfg.Backend.RateLimit != 10 || cfg.Backend.RateBurst != 5 {
		t.Errorf("unexpected rate limit %d/%d", cfg.Backend.RateLimit, cfg.Backend.RateBurst)
	}
	if cfg.Identify.Strategy != "remote" || cfg.Identify.Threshold != 0.6 {
		t.Errorf("unexpected identify config %+v", cfg.Identify)
	}
	if cfg.Web.Port != 8085 || cfg.Web.Addr() != "0.0.0.0:8085" {
		t.Errorf("unexpected web config %+v", cfg.Web)
	}
	if len(cfg.Web.AllowedOrigins) != 0 {
		t.Errorf("expected no allowed origins, got %v", cfg.Web.AllowedOrigins)
	}
	if cfg.Camera.MaxUploadDimension != 1280 || cfg.Camera.FacingModeOnly {
		t.Errorf("unexpected camera config %+v", cfg.Camera)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should be valid: %v", err)
	}
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("BACKEND_URL", "https://attendance.example.com/api/")
	t.Setenv("BACKEND_TIMEOUT", "45")
	t.Setenv("BACKEND_RATE_LIMIT", "0")
	t.Setenv("IDENTIFY_STRATEGY", "LOCAL")
	t.Setenv("MATCH_THRESHOLD", "0.45")
	t.Setenv("LOCAL_INDEX", "hnsw")
	t.Setenv("CAMERA_FACING_MODE_ONLY", "true")
	t.Setenv("MAX_UPLOAD_DIMENSION", "0")
	t.Setenv("WEB_PORT", "9000")
	t.Setenv("WEB_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("WEB_REQUEST_TIMEOUT", "90s")

	cfg := Load()

	if cfg.Backend.URL != "https://attendance.example.com/api" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.Backend.URL)
	}
	if cfg.Backend.Timeout != 45*time.Second {
		t.Errorf("expected 45s, got %v", cfg.Backend.Timeout)
	}
	if cfg.Backend.RateLimit != 0 {
		t.Errorf("expected rate limit disabled, got %d", cfg.Backend.RateLimit)
	}
	if cfg.Identify.Strategy != "local" || cfg.Identify.Threshold != 0.45 || !cfg.Identify.UseIndex() {
		t.Errorf("unexpected identify config %+v", cfg.Identify)
	}
	if !cfg.Camera.FacingModeOnly || cfg.Camera.MaxUploadDimension != 0 {
		t.Errorf("unexpected camera config %+v", cfg.Camera)
	}
	if cfg.Web.Port != 9000 || cfg.Web.RequestTimeout != 90*time.Second {
		t.Errorf("unexpected web config %+v", cfg.Web)
	}
	if len(cfg.Web.AllowedOrigins) != 2 || cfg.Web.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins %v", cfg.Web.AllowedOrigins)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("BACKEND_TIMEOUT", "soon")
	t.Setenv("MATCH_THRESHOLD", "-1")
	t.Setenv("WEB_PORT", "http")
	t.Setenv("BACKEND_RATE_BURST", "-3")
	t.Setenv("CAMERA_FACING_MODE_ONLY", "maybe")

	cfg := Load()

	if cfg.Backend.Timeout != 30*time.Second {
		t.Errorf("expected default timeout, got %v", cfg.Backend.Timeout)
	}
	if cfg.Identify.Threshold != 0.6 {
		t.Errorf("expected default threshold, got %v", cfg.Identify.Threshold)
	}
	if cfg.Web.Port != 8085 {
		t.Errorf("expected default port, got %d", cfg.Web.Port)
	}
	if cfg.Backend.RateBurst != 5 {
		t.Errorf("expected default burst, got %d", cfg.Backend.RateBurst)
	}
	if cfg.Camera.FacingModeOnly {
		t.Error("expected default facing mode")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"no backend", func(c *Config) { c.Backend.URL = "" }, true},
		{"unknown strategy", func(c *Config) { c.Identify.Strategy = "magic" }, true},
		{"local without embedding service", func(c *Config) {
			c.Identify.Strategy = "local"
			c.Identify.EmbeddingURL = ""
		}, true},
		{"local", func(c *Config) { c.Identify.Strategy = "local" }, false},
		{"unknown index", func(c *Config) { c.Identify.LocalIndex = "faiss" }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
