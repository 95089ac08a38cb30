// Package vault owns the per-channel OAuth token lifecycle: load a persisted
// token, refresh it when stale, fall back to an interactive authorization
// exchange, and persist every refreshed token so an interrupted run never
// loses credentials.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/youtube/v3"
)

var (
	// ErrAuthConfigMissing means there is no client secret to authorize
	// with. Nothing in the batch can proceed without it.
	ErrAuthConfigMissing = errors.New("auth config missing")
	// ErrAuthExpired means the stored credential cannot be refreshed and a
	// human has to re-authorize the channel.
	ErrAuthExpired = errors.New("auth expired")
)

// Scopes cover upload plus readonly channel info for the ownership handshake.
var Scopes = []string{youtube.YoutubeUploadScope, youtube.YoutubeReadonlyScope}

// Authorizer performs the interactive part of an OAuth exchange: present the
// URL to a human and return the resulting authorization code. The wait is
// cancellable via ctx and deliberately carries no timeout.
type Authorizer interface {
	Authorize(ctx context.Context, authURL string) (code string, err error)
}

// Session is an authenticated client for exactly one channel. Sessions are
// not shared across concurrent uploads.
type Session struct {
	Channel string
	client  *http.Client
}

// HTTPClient returns the authenticated client. Every request through it
// refreshes and persists the token as needed.
func (s *Session) HTTPClient() *http.Client {
	return s.client
}

// Vault guards the credentials of a single channel. Concurrent Acquire calls
// for the same channel serialize instead of racing the token file.
type Vault struct {
	mu             sync.Mutex
	channel        string
	secretPath     string
	tokenPath      string
	authorizer     Authorizer
	refreshTimeout time.Duration
}

func New(channel, channelsDir, clientSecretPath string, authorizer Authorizer, refreshTimeout time.Duration) *Vault {
	return &Vault{
		channel:        channel,
		secretPath:     clientSecretPath,
		tokenPath:      TokenPath(channelsDir, channel),
		authorizer:     authorizer,
		refreshTimeout: refreshTimeout,
	}
}

// ChannelDir returns the normalized per-channel credential folder name.
func ChannelDir(channel string) string {
	return strings.ToLower(strings.ReplaceAll(channel, " ", "_"))
}

// TokenPath locates the persisted token blob for a channel.
func TokenPath(channelsDir, channel string) string {
	return filepath.Join(channelsDir, ChannelDir(channel), "token.json")
}

// TokenExists reports whether a channel has a persisted credential at all.
// Used by the dashboard's auth-status listing.
func TokenExists(channelsDir, channel string) bool {
	_, err := os.Stat(TokenPath(channelsDir, channel))
	return err == nil
}

// Acquire returns an authenticated session for the vault's channel. A valid
// persisted token is reused; a stale one is refreshed and persisted; with no
// usable token the exchange falls back to the interactive Authorizer.
func (v *Vault) Acquire(ctx context.Context) (*Session, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	conf, err := v.loadConfig()
	if err != nil {
		return nil, err
	}

	tok, err := v.loadToken()
	if err != nil {
		return nil, err
	}

	switch {
	case tok == nil:
		tok, err = v.interactiveExchange(ctx, conf)
	case !tok.Valid() && tok.RefreshToken != "":
		tok, err = v.refresh(ctx, conf, tok)
	case !tok.Valid():
		// Expired and nothing to refresh with.
		tok, err = v.interactiveExchange(ctx, conf)
	}
	if err != nil {
		return nil, err
	}

	if err := v.saveToken(tok); err != nil {
		return nil, err
	}

	// Future refreshes mid-upload go through the saving source so a token
	// minted during a long transfer survives the process.
	src := &savingSource{vault: v, src: conf.TokenSource(v.refreshContext(), tok), last: tok}
	client := oauth2.NewClient(context.Background(), oauth2.ReuseTokenSource(tok, src))
	return &Session{Channel: v.channel, client: client}, nil
}

func (v *Vault) loadConfig() (*oauth2.Config, error) {
	data, err := os.ReadFile(v.secretPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: no client secret at %s", ErrAuthConfigMissing, v.secretPath)
	}
	if err != nil {
		return nil, fmt.Errorf("read client secret %s: %w", v.secretPath, err)
	}
	conf, err := google.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("%w: parse client secret %s: %v", ErrAuthConfigMissing, v.secretPath, err)
	}
	return conf, nil
}

func (v *Vault) refresh(ctx context.Context, conf *oauth2.Config, tok *oauth2.Token) (*oauth2.Token, error) {
	log.Printf("[vault] Refreshing token for channel %q", v.channel)

	rctx, cancel := context.WithTimeout(ctx, v.refreshTimeout)
	defer cancel()
	fresh, err := conf.TokenSource(rctx, tok).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("%w: channel %q refresh rejected, delete %s and re-authorize: %v",
				ErrAuthExpired, v.channel, v.tokenPath, err)
		}
		return nil, fmt.Errorf("refresh token for channel %q: %w", v.channel, err)
	}
	// Keep the refresh token if the provider did not rotate it.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tok.RefreshToken
	}
	return fresh, nil
}

func (v *Vault) interactiveExchange(ctx context.Context, conf *oauth2.Config) (*oauth2.Token, error) {
	if v.authorizer == nil {
		return nil, fmt.Errorf("%w: channel %q has no usable token and no interactive authorizer is available",
			ErrAuthExpired, v.channel)
	}

	log.Printf("[vault] ⚠️  No valid token for %q — starting interactive authorization", v.channel)
	authURL := conf.AuthCodeURL("state-token", oauth2.AccessTypeOffline)

	// Human in the loop: cancellable, no deadline.
	code, err := v.authorizer.Authorize(ctx, authURL)
	if err != nil {
		return nil, fmt.Errorf("interactive authorization for channel %q: %w", v.channel, err)
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, v.refreshTimeout)
	defer cancel()
	tok, err := conf.Exchange(exchangeCtx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: code exchange for channel %q failed: %v", ErrAuthExpired, v.channel, err)
	}
	return tok, nil
}

// refreshContext bounds token endpoint round-trips without pinning a
// deadline that would expire on later refreshes.
func (v *Vault) refreshContext() context.Context {
	return context.WithValue(context.Background(), oauth2.HTTPClient,
		&http.Client{Timeout: v.refreshTimeout})
}

func (v *Vault) loadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(v.tokenPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token %s: %w", v.tokenPath, err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("%w: token file %s is corrupt, delete it and re-authorize: %v",
			ErrAuthExpired, v.tokenPath, err)
	}
	return &tok, nil
}

func (v *Vault) saveToken(tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(v.tokenPath), 0755); err != nil {
		return fmt.Errorf("create channel dir: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	if err := os.WriteFile(v.tokenPath, data, 0600); err != nil {
		return fmt.Errorf("persist token %s: %w", v.tokenPath, err)
	}
	return nil
}

// savingSource persists every newly minted token the moment it appears.
type savingSource struct {
	vault *Vault
	src   oauth2.TokenSource
	last  *oauth2.Token
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.last == nil || tok.AccessToken != s.last.AccessToken {
		s.vault.mu.Lock()
		saveErr := s.vault.saveToken(tok)
		s.vault.mu.Unlock()
		if saveErr != nil {
			log.Printf("[vault] ⚠️  Could not persist refreshed token for %q: %v", s.vault.channel, saveErr)
		}
		s.last = tok
	}
	return tok, nil
}
