// Package dispatch matches rendered artifacts to their scenes, runs the
// identity handshake, performs the upload, and records every outcome in the
// ledger.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"news-shorts-pipeline/internal/config"
	"news-shorts-pipeline/internal/content"
	"news-shorts-pipeline/internal/ledger"
	"news-shorts-pipeline/internal/render"
	"news-shorts-pipeline/internal/vault"
)

// State is an artifact's position in the dispatch lifecycle. Skipped,
// Succeeded and Failed are terminal.
type State string

const (
	StatePending   State = "pending"
	StateSkipped   State = "skipped"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Result is the terminal outcome of dispatching one artifact.
type Result struct {
	Artifact *render.Artifact
	State    State
	VideoID  string
	Reason   string
	Err      error
}

// CredentialSource hands out an authenticated session for a channel.
type CredentialSource interface {
	Acquire(ctx context.Context, channel string) (*vault.Session, error)
}

// Verifier is the identity handshake: true only when the session provably
// belongs to the expected channel.
type Verifier interface {
	Verify(ctx context.Context, session *vault.Session, expectedName string) bool
}

// Transport performs the resumable upload. Transient mid-transfer failures
// are resumed by the transport itself, never re-driven from here.
type Transport interface {
	Upload(ctx context.Context, session *vault.Session, path string, meta *Metadata, progress func(pct int)) (videoID string, err error)
}

// ApproveFunc gates an upload. A nil policy auto-approves.
type ApproveFunc func(channel, title string) bool

// Metadata is the fully resolved upload metadata for one artifact.
type Metadata struct {
	Title          string
	Description    string
	Tags           []string
	CategoryID     string
	PrivacyStatus  string
	SyntheticMedia bool
	Language       string
}

type Dispatcher struct {
	creds     CredentialSource
	verifier  Verifier
	transport Transport
	ledger    *ledger.Ledger
	cfg       *config.Config
	Approve   ApproveFunc
}

func New(creds CredentialSource, verifier Verifier, transport Transport, led *ledger.Ledger, cfg *config.Config) *Dispatcher {
	return &Dispatcher{
		creds:     creds,
		verifier:  verifier,
		transport: transport,
		ledger:    led,
		cfg:       cfg,
	}
}

// Dispatch takes one artifact through
// Pending → IdentityChecking → {Skipped | Uploading → {Succeeded | Failed}}.
// A skip always leaves the artifact on disk untouched.
func (d *Dispatcher) Dispatch(ctx context.Context, artifact *render.Artifact, scene *content.Scene) Result {
	channel := artifact.Channel
	meta := d.buildMetadata(scene)

	done, err := d.ledger.HasSuccess(channel, artifact.Name())
	if err != nil {
		return Result{Artifact: artifact, State: StateFailed, Err: fmt.Errorf("ledger check: %w", err)}
	}
	if done {
		log.Printf("[dispatch] ⏩ %s already uploaded to %q — skipping", artifact.Name(), channel)
		return Result{Artifact: artifact, State: StateSkipped, Reason: "already uploaded"}
	}

	if d.Approve != nil && !d.Approve(channel, meta.Title) {
		log.Printf("[dispatch] ⏩ Upload of %s declined by policy", artifact.Name())
		return Result{Artifact: artifact, State: StateSkipped, Reason: "declined"}
	}

	session, err := d.creds.Acquire(ctx, channel)
	if err != nil {
		return Result{Artifact: artifact, State: StateFailed, Err: fmt.Errorf("acquire credentials for %q: %w", channel, err)}
	}

	expected := d.expectedName(channel)
	ictx, cancel := context.WithTimeout(ctx, d.cfg.IdentityTimeout())
	verified := d.verifier.Verify(ictx, session, expected)
	cancel()
	if !verified {
		// A skip, never a retry: retrying with the same wrong credential
		// repeats the danger. The artifact stays for a manual re-run.
		log.Printf("[dispatch] 🛑 Identity mismatch for %q — keeping %s on disk", channel, artifact.Name())
		log.Printf("[dispatch] 👉 Delete %s and log into the correct account", vault.TokenPath(d.cfg.Paths.ChannelsDir, channel))
		return Result{Artifact: artifact, State: StateSkipped, Reason: "identity mismatch"}
	}

	videoID, err := d.upload(ctx, session, artifact, meta)
	if err != nil {
		if lerr := d.ledger.Append(ledger.Entry{
			Channel:  channel,
			Title:    meta.Title,
			Artifact: artifact.Name(),
			Status:   ledger.StatusFailed,
		}); lerr != nil {
			err = fmt.Errorf("%w (and ledger append failed: %v)", err, lerr)
		}
		return Result{Artifact: artifact, State: StateFailed, Err: err}
	}

	if err := d.ledger.Append(ledger.Entry{
		Channel:       channel,
		Title:         meta.Title,
		Artifact:      artifact.Name(),
		DestinationID: videoID,
		Status:        ledger.StatusSuccess,
	}); err != nil {
		// Upload went through but the record did not; leave the artifact in
		// place so the operator reconciles before it can be re-dispatched.
		return Result{Artifact: artifact, State: StateSucceeded, VideoID: videoID,
			Err: fmt.Errorf("upload succeeded but ledger append failed: %w", err)}
	}

	if dest, err := moveToBackup(artifact.Path, d.cfg.Paths.Backups); err != nil {
		log.Printf("[dispatch] ⚠️  Could not move %s to backups: %v", artifact.Name(), err)
	} else {
		log.Printf("[dispatch] 📦 Logged and moved to %s", dest)
	}

	return Result{Artifact: artifact, State: StateSucceeded, VideoID: videoID}
}

func (d *Dispatcher) upload(ctx context.Context, session *vault.Session, artifact *render.Artifact, meta *Metadata) (string, error) {
	log.Printf("[dispatch] 🔼 Uploading %s to %q: %q", artifact.Name(), artifact.Channel, meta.Title)

	uctx, cancel := context.WithTimeout(ctx, d.cfg.UploadTimeout())
	defer cancel()

	lastPct := -1
	videoID, err := d.transport.Upload(uctx, session, artifact.Path, meta, func(pct int) {
		// Progress is reported monotonically even if the transport rewinds
		// during a resume.
		if pct > lastPct {
			lastPct = pct
			log.Printf("[dispatch]    Progress: %d%%", pct)
		}
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("upload of %s timed out: %w", artifact.Name(), err)
		}
		return "", fmt.Errorf("upload %s: %w", artifact.Name(), err)
	}

	log.Printf("[dispatch] ✅ Upload successful! ID: %s", videoID)
	return videoID, nil
}

// buildMetadata resolves upload metadata by precedence: scene-specific
// values win, the composed fallbacks fill the rest, and the tune-in phrase
// is always appended to the description.
func (d *Dispatcher) buildMetadata(scene *content.Scene) *Metadata {
	title := scene.Metadata.Title
	if title == "" {
		title = scene.Headline
	}
	title = truncate(title, 100)

	desc := scene.Metadata.Description
	if desc == "" {
		desc = scene.Details
	}
	desc = desc + "\n\n" + d.cfg.Upload.TuneInPhrase

	tags := scene.Metadata.Tags
	if len(tags) == 0 {
		tags = d.cfg.Upload.DefaultTags
	}

	category := scene.Metadata.CategoryID
	if category == "" {
		category = d.cfg.Upload.CategoryID
	}
	privacy := scene.Metadata.PrivacyStatus
	if privacy == "" {
		privacy = d.cfg.Upload.PrivacyStatus
	}

	return &Metadata{
		Title:          title,
		Description:    desc,
		Tags:           tags,
		CategoryID:     category,
		PrivacyStatus:  privacy,
		SyntheticMedia: scene.Metadata.SelfDeclaredSynthetic,
		Language:       d.cfg.Upload.DefaultLanguage,
	}
}

func (d *Dispatcher) expectedName(channel string) string {
	if name := d.cfg.Channels.Approved[channel]; name != "" {
		return name
	}
	return channel
}

// moveToBackup transfers artifact ownership to archival storage, prefixing
// a timestamp when a prior file of the same name is already there.
func moveToBackup(path, backupsDir string) (string, error) {
	if err := os.MkdirAll(backupsDir, 0755); err != nil {
		return "", err
	}
	dest := filepath.Join(backupsDir, filepath.Base(path))
	if _, err := os.Stat(dest); err == nil {
		dest = filepath.Join(backupsDir, fmt.Sprintf("%d_%s", time.Now().Unix(), filepath.Base(path)))
	}
	if err := os.Rename(path, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// DispatchAll runs a batch: uploads within one channel stay strictly
// sequential so large resumable transfers never interleave, while
// independent channels may run concurrently up to the configured bound.
func (d *Dispatcher) DispatchAll(ctx context.Context, artifacts []*render.Artifact, scenes []content.Scene) []Result {
	byChannel := make(map[string][]*render.Artifact)
	var order []string
	for _, a := range artifacts {
		if _, seen := byChannel[a.Channel]; !seen {
			order = append(order, a.Channel)
		}
		byChannel[a.Channel] = append(byChannel[a.Channel], a)
	}

	results := make(map[int]Result, len(artifacts))
	var g errgroup.Group
	g.SetLimit(d.cfg.Upload.ChannelConcurrency)

	resultCh := make(chan Result, len(artifacts))
	for _, channel := range order {
		if ctx.Err() != nil {
			for _, a := range byChannel[channel] {
				resultCh <- Result{Artifact: a, State: StateSkipped, Reason: "batch cancelled"}
			}
			continue
		}
		queue := byChannel[channel]
		g.Go(func() error {
			for _, a := range queue {
				if ctx.Err() != nil {
					resultCh <- Result{Artifact: a, State: StateSkipped, Reason: "batch cancelled"}
					continue
				}
				resultCh <- d.Dispatch(ctx, a, &scenes[a.SceneIndex])
			}
			return nil
		})
	}
	g.Wait()
	close(resultCh)

	for r := range resultCh {
		results[r.Artifact.SceneIndex] = r
	}

	out := make([]Result, 0, len(artifacts))
	for _, a := range artifacts {
		out = append(out, results[a.SceneIndex])
	}
	return out
}
