package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
channels:
  approved:
    TrendWave: "TrendWave Now"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Render.Concurrency != 2 {
		t.Errorf("render concurrency default = %d, want 2", cfg.Render.Concurrency)
	}
	if cfg.Upload.PrivacyStatus != "private" {
		t.Errorf("privacy default = %q", cfg.Upload.PrivacyStatus)
	}
	if cfg.Upload.ChannelConcurrency != 1 {
		t.Errorf("channel concurrency default = %d, want 1", cfg.Upload.ChannelConcurrency)
	}
	if cfg.Paths.Ledger != "upload_history.jsonl" {
		t.Errorf("ledger path default = %q", cfg.Paths.Ledger)
	}
	if cfg.UploadTimeout() != 30*time.Minute {
		t.Errorf("upload timeout default = %v", cfg.UploadTimeout())
	}
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
channels:
  approved:
    TrendWave: "TrendWave Now"
    SpaceMind: "SpaceMind AI"
  strict_identity: true
render:
  concurrency: 4
  command: render-scene
upload:
  privacy_status: unlisted
  channel_concurrency: 2
timeouts:
  upload_sec: 600
paths:
  ledger: /var/log/shorts/history.jsonl
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Channels.StrictIdentity {
		t.Error("strict_identity not honored")
	}
	if cfg.Render.Concurrency != 4 || cfg.Render.Command != "render-scene" {
		t.Errorf("render config = %+v", cfg.Render)
	}
	if cfg.Upload.PrivacyStatus != "unlisted" || cfg.Upload.ChannelConcurrency != 2 {
		t.Errorf("upload config = %+v", cfg.Upload)
	}
	if cfg.UploadTimeout() != 10*time.Minute {
		t.Errorf("upload timeout = %v", cfg.UploadTimeout())
	}
	if cfg.Channels.Approved["SpaceMind"] != "SpaceMind AI" {
		t.Errorf("approved map = %v", cfg.Channels.Approved)
	}
}

func TestLoad_NoChannels(t *testing.T) {
	path := writeConfig(t, `render: {concurrency: 1}`)
	if _, err := Load(path); err == nil {
		t.Fatal("config without approved channels must fail")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing config file must fail")
	}
}
