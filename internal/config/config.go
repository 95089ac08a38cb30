package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Channels ChannelsConfig `yaml:"channels"`
	Render   RenderConfig   `yaml:"render"`
	Upload   UploadConfig   `yaml:"upload"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Paths    PathsConfig    `yaml:"paths"`
}

type ChannelsConfig struct {
	// Approved maps a channel key (the value of "channel"/"type" in the
	// content JSON) to the display name the live account must carry.
	Approved map[string]string `yaml:"approved"`
	// StrictIdentity switches the ownership check from bidirectional
	// substring matching to exact-match-after-normalization.
	StrictIdentity bool `yaml:"strict_identity"`
}

type RenderConfig struct {
	// Concurrency caps simultaneous renders. Each render is memory-heavy;
	// anything above 2 has been seen to exhaust host RAM.
	Concurrency int      `yaml:"concurrency"`
	Command     string   `yaml:"command"`
	CommandArgs []string `yaml:"command_args"`
}

type UploadConfig struct {
	CategoryID        string   `yaml:"category_id"`
	PrivacyStatus     string   `yaml:"privacy_status"`
	DefaultTags       []string `yaml:"default_tags"`
	TuneInPhrase      string   `yaml:"tune_in_phrase"`
	DefaultLanguage   string   `yaml:"default_language"`
	NotifySubscribers bool     `yaml:"notify_subscribers"`
	// ChannelConcurrency allows uploads for independent channels to run in
	// parallel. 1 keeps the whole batch sequential.
	ChannelConcurrency int `yaml:"channel_concurrency"`
}

type TimeoutsConfig struct {
	AuthSec     int `yaml:"auth_sec"`
	IdentitySec int `yaml:"identity_sec"`
	UploadSec   int `yaml:"upload_sec"`
}

type PathsConfig struct {
	Renders      string `yaml:"renders"`
	Backups      string `yaml:"backups"`
	Ledger       string `yaml:"ledger"`
	ChannelsDir  string `yaml:"channels_dir"`
	ClientSecret string `yaml:"client_secret"`
	Work         string `yaml:"work"`
}

// Load reads the YAML config and fills in defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if len(cfg.Channels.Approved) == 0 {
		return nil, fmt.Errorf("config %s: channels.approved must list at least one channel", path)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Render.Concurrency <= 0 {
		c.Render.Concurrency = 2
	}
	if c.Upload.CategoryID == "" {
		c.Upload.CategoryID = "24"
	}
	if c.Upload.PrivacyStatus == "" {
		c.Upload.PrivacyStatus = "private"
	}
	if len(c.Upload.DefaultTags) == 0 {
		c.Upload.DefaultTags = []string{"news", "shorts", "trends"}
	}
	if c.Upload.TuneInPhrase == "" {
		c.Upload.TuneInPhrase = "Tune with us for more such news."
	}
	if c.Upload.DefaultLanguage == "" {
		c.Upload.DefaultLanguage = "en"
	}
	if c.Upload.ChannelConcurrency <= 0 {
		c.Upload.ChannelConcurrency = 1
	}
	if c.Timeouts.AuthSec <= 0 {
		c.Timeouts.AuthSec = 30
	}
	if c.Timeouts.IdentitySec <= 0 {
		c.Timeouts.IdentitySec = 20
	}
	if c.Timeouts.UploadSec <= 0 {
		c.Timeouts.UploadSec = 1800
	}
	if c.Paths.Renders == "" {
		c.Paths.Renders = "renders"
	}
	if c.Paths.Backups == "" {
		c.Paths.Backups = "backups"
	}
	if c.Paths.Ledger == "" {
		c.Paths.Ledger = "upload_history.jsonl"
	}
	if c.Paths.ChannelsDir == "" {
		c.Paths.ChannelsDir = "channels"
	}
	if c.Paths.ClientSecret == "" {
		c.Paths.ClientSecret = "client_secret.json"
	}
	if c.Paths.Work == "" {
		c.Paths.Work = "work"
	}
}

// AuthTimeout is the deadline for token refresh round-trips. The interactive
// authorization wait is deliberately not covered by it.
func (c *Config) AuthTimeout() time.Duration {
	return time.Duration(c.Timeouts.AuthSec) * time.Second
}

func (c *Config) IdentityTimeout() time.Duration {
	return time.Duration(c.Timeouts.IdentitySec) * time.Second
}

func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.Timeouts.UploadSec) * time.Second
}
