// Package content loads and validates the JSON scene list that drives a
// batch. One scene = one planned short video.
package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// CTAPhrase is the mandatory closing call-to-action. It must appear in the
// details of exactly the last scene of each channel group and nowhere
// earlier; an early CTA corrupts multi-scene narrative pacing.
const CTAPhrase = "tune with us"

var (
	ErrMalformedInput  = errors.New("malformed content file")
	ErrPolicyViolation = errors.New("content policy violation")
)

// Metadata carries the per-scene upload metadata block.
type Metadata struct {
	Title                 string   `json:"title"`
	Description           string   `json:"description"`
	Tags                  []string `json:"tags"`
	CategoryID            string   `json:"category_id"`
	PrivacyStatus         string   `json:"privacy_status"`
	SelfDeclaredSynthetic bool     `json:"self_declared_synthetic"`
}

// Scene is one planned video. Scenes are immutable after Load; the scheduler
// and dispatcher refer to them by Index.
type Scene struct {
	Index     int      `json:"index"`
	Channel   string   `json:"channel"`
	Type      string   `json:"type"`
	Headline  string   `json:"headline"`
	HookText  string   `json:"hook_text"`
	Details   string   `json:"details"`
	SearchKey string   `json:"search_key"`
	Metadata  Metadata `json:"metadata"`
}

// TargetChannel resolves the destination channel key: "channel" wins, "type"
// is the legacy fallback.
func (s *Scene) TargetChannel() string {
	if s.Channel != "" {
		return s.Channel
	}
	return s.Type
}

// HasCTA reports whether the scene's details contain the closing
// call-to-action phrase.
func (s *Scene) HasCTA() bool {
	return strings.Contains(strings.ToLower(s.Details), CTAPhrase)
}

// Load parses the content file and validates every scene against the
// approved channel set and the CTA placement policy. It fails before any
// work starts: schema problems as ErrMalformedInput, CTA placement as
// ErrPolicyViolation, both naming the offending scene index.
func Load(path string, approved map[string]string) ([]Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrMalformedInput, path, err)
	}

	var scenes []Scene
	if err := json.Unmarshal(data, &scenes); err != nil {
		return nil, fmt.Errorf("%w: %s must be a JSON list of scene objects: %v", ErrMalformedInput, path, err)
	}
	if len(scenes) == 0 {
		return nil, fmt.Errorf("%w: %s contains no scenes", ErrMalformedInput, path)
	}

	for i := range scenes {
		scenes[i].Index = i
		if err := validateScene(&scenes[i], approved); err != nil {
			return nil, err
		}
	}

	if err := validateCTA(scenes); err != nil {
		return nil, err
	}
	return scenes, nil
}

func validateScene(s *Scene, approved map[string]string) error {
	required := []struct {
		name  string
		value string
	}{
		{"channel/type", s.TargetChannel()},
		{"headline", s.Headline},
		{"hook_text", s.HookText},
		{"details", s.Details},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: scene %d missing or empty field %q", ErrMalformedInput, s.Index, f.name)
		}
	}
	if _, ok := approved[s.TargetChannel()]; !ok {
		return fmt.Errorf("%w: scene %d channel %q is not an approved channel", ErrMalformedInput, s.Index, s.TargetChannel())
	}
	return nil
}

// validateCTA enforces the placement rule per channel group: the phrase in
// the last scene of each group, and in no earlier scene.
func validateCTA(scenes []Scene) error {
	lastOf := make(map[string]int)
	for _, s := range scenes {
		lastOf[s.TargetChannel()] = s.Index
	}
	for _, s := range scenes {
		last := lastOf[s.TargetChannel()] == s.Index
		switch {
		case s.HasCTA() && !last:
			return fmt.Errorf("%w: scene %d has the CTA but is not the last scene for channel %q", ErrPolicyViolation, s.Index, s.TargetChannel())
		case !s.HasCTA() && last:
			return fmt.Errorf("%w: scene %d is the last scene for channel %q but its details are missing the CTA", ErrPolicyViolation, s.Index, s.TargetChannel())
		}
	}
	return nil
}
