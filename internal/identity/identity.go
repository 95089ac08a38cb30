// Package identity verifies that an authenticated session really belongs to
// the channel a video is about to land on. A cached token pointing at the
// wrong account is the one failure mode this pipeline must never let through.
package identity

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"news-shorts-pipeline/internal/vault"
)

// ChannelLister reports the display name of the account the session is
// authenticated as.
type ChannelLister interface {
	OwnChannelTitle(ctx context.Context) (string, error)
}

// Shield performs the ownership handshake before any upload.
type Shield struct {
	lister ChannelLister
	// Strict requires the normalized names to be identical instead of the
	// historical bidirectional substring match, which can false-positive on
	// very short channel names.
	Strict bool
}

func New(lister ChannelLister) *Shield {
	return &Shield{lister: lister}
}

// Verify returns true only when the authenticated account matches the
// expected channel name. Any lookup error counts as a mismatch — the check
// is conservative by contract.
func (s *Shield) Verify(ctx context.Context, expectedName string) bool {
	actual, err := s.lister.OwnChannelTitle(ctx)
	if err != nil {
		log.Printf("[identity] ⚠️  Verification error for %q: %v", expectedName, err)
		return false
	}

	if Matches(expectedName, actual, s.Strict) {
		log.Printf("[identity] 🛡️  MATCH: account %q verified for %q", actual, expectedName)
		return true
	}

	log.Printf("[identity] 🛑 MISMATCH: expected %q but the session belongs to %q", expectedName, actual)
	log.Printf("[identity] 👉 Delete the token for %q and log into the correct account", expectedName)
	return false
}

// Matches compares two channel names after stripping everything that is not
// a letter or digit and case-folding. Non-strict mode accepts a substring
// match in either direction ("SpaceMind AI" vs "SpaceMind-AI Official").
func Matches(expected, actual string, strict bool) bool {
	e := normalize(expected)
	a := normalize(actual)
	if e == "" || a == "" {
		return false
	}
	if strict {
		return e == a
	}
	return strings.Contains(a, e) || strings.Contains(e, a)
}

func normalize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SessionVerifier runs the handshake against the live account behind a
// session. It satisfies the dispatcher's Verifier contract.
type SessionVerifier struct {
	Strict bool
}

func (sv *SessionVerifier) Verify(ctx context.Context, session *vault.Session, expectedName string) bool {
	s := New(NewYouTubeLister(session))
	s.Strict = sv.Strict
	return s.Verify(ctx, expectedName)
}

// YouTubeLister resolves the session's own channel via the Data API
// (channels.list with mine=true).
type YouTubeLister struct {
	session *vault.Session
}

func NewYouTubeLister(session *vault.Session) *YouTubeLister {
	return &YouTubeLister{session: session}
}

func (y *YouTubeLister) OwnChannelTitle(ctx context.Context) (string, error) {
	svc, err := youtube.NewService(ctx, option.WithHTTPClient(y.session.HTTPClient()))
	if err != nil {
		return "", fmt.Errorf("youtube service: %w", err)
	}
	resp, err := svc.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("channels.list: %w", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
		return "", fmt.Errorf("channels.list returned no channel for the authenticated account")
	}
	return resp.Items[0].Snippet.Title, nil
}
