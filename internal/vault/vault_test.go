package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

type fixture struct {
	channelsDir string
	secretPath  string
}

// newFixture writes a client secret whose token endpoint points at the given
// test server URL (empty keeps the real Google endpoint, which the offline
// paths never touch).
func newFixture(t *testing.T, tokenURL string) fixture {
	t.Helper()
	dir := t.TempDir()
	if tokenURL == "" {
		tokenURL = "https://oauth2.googleapis.com/token"
	}
	secret := fmt.Sprintf(`{"installed":{"client_id":"cid","client_secret":"cs",`+
		`"redirect_uris":["http://localhost"],`+
		`"auth_uri":"https://accounts.google.com/o/oauth2/auth",`+
		`"token_uri":"%s"}}`, tokenURL)
	secretPath := filepath.Join(dir, "client_secret.json")
	if err := os.WriteFile(secretPath, []byte(secret), 0600); err != nil {
		t.Fatalf("write client secret: %v", err)
	}
	return fixture{channelsDir: filepath.Join(dir, "channels"), secretPath: secretPath}
}

func (f fixture) writeToken(t *testing.T, channel string, tok *oauth2.Token) {
	t.Helper()
	path := TokenPath(f.channelsDir, channel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	data, _ := json.Marshal(tok)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write token: %v", err)
	}
}

func (f fixture) vault(channel string, auth Authorizer) *Vault {
	return New(channel, f.channelsDir, f.secretPath, auth, 5*time.Second)
}

func TestAcquire_MissingClientSecret(t *testing.T) {
	f := newFixture(t, "")
	v := New("TrendWave", f.channelsDir, filepath.Join(t.TempDir(), "nope.json"), nil, time.Second)

	_, err := v.Acquire(context.Background())
	if !errors.Is(err, ErrAuthConfigMissing) {
		t.Fatalf("expected ErrAuthConfigMissing, got %v", err)
	}
}

func TestAcquire_ReusesValidToken(t *testing.T) {
	f := newFixture(t, "")
	f.writeToken(t, "TrendWave", &oauth2.Token{
		AccessToken:  "live-token",
		TokenType:    "Bearer",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	})

	s, err := f.vault("TrendWave", nil).Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if s.Channel != "TrendWave" {
		t.Errorf("session channel = %q", s.Channel)
	}
	if s.HTTPClient() == nil {
		t.Error("session has no HTTP client")
	}
}

func TestAcquire_RefreshesExpiredToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"fresh-token","token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL)
	f.writeToken(t, "TrendWave", &oauth2.Token{
		AccessToken:  "stale-token",
		TokenType:    "Bearer",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(-time.Hour),
	})

	if _, err := f.vault("TrendWave", nil).Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// The refreshed token must be persisted, keeping the refresh token.
	data, err := os.ReadFile(TokenPath(f.channelsDir, "TrendWave"))
	if err != nil {
		t.Fatalf("read persisted token: %v", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		t.Fatalf("parse persisted token: %v", err)
	}
	if tok.AccessToken != "fresh-token" {
		t.Errorf("persisted access token = %q, want fresh-token", tok.AccessToken)
	}
	if tok.RefreshToken != "refresh" {
		t.Errorf("refresh token was lost: %q", tok.RefreshToken)
	}
}

func TestAcquire_RefreshRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL)
	f.writeToken(t, "TrendWave", &oauth2.Token{
		AccessToken:  "stale-token",
		TokenType:    "Bearer",
		RefreshToken: "revoked",
		Expiry:       time.Now().Add(-time.Hour),
	})

	_, err := f.vault("TrendWave", nil).Acquire(context.Background())
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}
}

func TestAcquire_NoTokenNoAuthorizer(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.vault("TrendWave", nil).Acquire(context.Background())
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}
}

type fakeAuthorizer struct {
	mu      sync.Mutex
	authURL string
	code    string
	err     error
}

func (a *fakeAuthorizer) Authorize(ctx context.Context, authURL string) (string, error) {
	a.mu.Lock()
	a.authURL = authURL
	a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	return a.code, nil
}

func TestAcquire_InteractiveExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"exchanged","token_type":"Bearer","refresh_token":"new-refresh","expires_in":3600}`)
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL)
	auth := &fakeAuthorizer{code: "auth-code"}

	s, err := f.vault("SpaceMind AI", auth).Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if s == nil {
		t.Fatal("nil session")
	}
	if auth.authURL == "" {
		t.Error("authorizer never received an auth URL")
	}
	if !TokenExists(f.channelsDir, "SpaceMind AI") {
		t.Error("exchanged token was not persisted")
	}
}

func TestAcquire_AuthorizerCancelled(t *testing.T) {
	f := newFixture(t, "")
	auth := &fakeAuthorizer{err: context.Canceled}

	_, err := f.vault("TrendWave", auth).Acquire(context.Background())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAcquire_SerializesSameChannel(t *testing.T) {
	f := newFixture(t, "")
	f.writeToken(t, "TrendWave", &oauth2.Token{
		AccessToken:  "live-token",
		TokenType:    "Bearer",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	})
	v := f.vault("TrendWave", nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := v.Acquire(context.Background()); err != nil {
				t.Errorf("concurrent Acquire: %v", err)
			}
		}()
	}
	wg.Wait()

	// The token file must still be intact after a stampede.
	data, err := os.ReadFile(TokenPath(f.channelsDir, "TrendWave"))
	if err != nil {
		t.Fatalf("read token: %v", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		t.Fatalf("token file no longer parses: %v", err)
	}
}

func TestChannelDir(t *testing.T) {
	tests := []struct{ in, want string }{
		{"TrendWave Now", "trendwave_now"},
		{"SpaceMind AI", "spacemind_ai"},
		{"WonderFacts", "wonderfacts"},
	}
	for _, tc := range tests {
		if got := ChannelDir(tc.in); got != tc.want {
			t.Errorf("ChannelDir(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTokenExists(t *testing.T) {
	f := newFixture(t, "")
	if TokenExists(f.channelsDir, "TrendWave") {
		t.Error("TokenExists should be false before any auth")
	}
	f.writeToken(t, "TrendWave", &oauth2.Token{AccessToken: "a"})
	if !TokenExists(f.channelsDir, "TrendWave") {
		t.Error("TokenExists should be true after writing a token")
	}
}
