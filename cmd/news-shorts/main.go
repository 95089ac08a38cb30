package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"news-shorts-pipeline/internal/config"
	"news-shorts-pipeline/internal/content"
	"news-shorts-pipeline/internal/dispatch"
	"news-shorts-pipeline/internal/identity"
	"news-shorts-pipeline/internal/ledger"
	"news-shorts-pipeline/internal/render"
	"news-shorts-pipeline/internal/vault"
)

const (
	exitOK            = 0
	exitInvalidInput  = 1
	exitPartialFail   = 2
	exitConfigMissing = 3
)

func main() {
	// Load .env for local dev; CI provides real env vars.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(exitInvalidInput)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "render":
		os.Exit(runRender(ctx, os.Args[2:]))
	case "upload":
		os.Exit(runUpload(ctx, os.Args[2:]))
	case "dashboard":
		os.Exit(runDashboard(os.Args[2:]))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(exitInvalidInput)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage:
  news-shorts render    --input <file> [--config <file>] [--concurrency <n>]
  news-shorts upload    --input <file> [--config <file>] [--render-dir <dir>] [--yes]
  news-shorts dashboard [--config <file>] [--recent <n>]`)
}

func loadConfig(path string) (*config.Config, int) {
	cfg, err := config.Load(path)
	if err != nil {
		log.Printf("❌ Failed to load config: %v", err)
		return nil, exitConfigMissing
	}
	return cfg, exitOK
}

func loadScenes(input string, cfg *config.Config) ([]content.Scene, int) {
	scenes, err := content.Load(input, cfg.Channels.Approved)
	if err != nil {
		log.Printf("❌ Content validation failed: %v", err)
		return nil, exitInvalidInput
	}
	log.Printf("✅ Validated %d scene(s) from %s", len(scenes), input)
	return scenes, exitOK
}

func runRender(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "config file")
	input := fs.String("input", "news_data.json", "scene list JSON")
	concurrency := fs.Int("concurrency", 0, "max simultaneous renders (0 = config value)")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}

	cfg, code := loadConfig(*configPath)
	if code != exitOK {
		return code
	}
	scenes, code := loadScenes(*input, cfg)
	if code != exitOK {
		return code
	}

	for _, dir := range []string{cfg.Paths.Renders, cfg.Paths.Work} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Printf("❌ Failed to create dir %s: %v", dir, err)
			return exitConfigMissing
		}
	}

	max := cfg.Render.Concurrency
	if *concurrency > 0 {
		max = *concurrency
	}

	renderer := &render.CommandRenderer{Command: cfg.Render.Command, Args: cfg.Render.CommandArgs}
	scheduler := render.NewScheduler(renderer, cfg.Paths.Renders, cfg.Paths.Work, max)

	log.Printf("🎬 Render batch starting: %d scene(s)", len(scenes))
	outcomes := scheduler.RenderAll(ctx, scenes)

	rendered, failed := 0, 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			log.Printf("❌ Scene %d: %v", o.SceneIndex, o.Err)
			continue
		}
		rendered++
	}
	log.Printf("🏆 Render cycle complete: %d rendered, %d failed", rendered, failed)
	if failed > 0 {
		return exitPartialFail
	}
	return exitOK
}

func runUpload(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "config file")
	input := fs.String("input", "news_data.json", "scene list JSON used for rendering")
	renderDir := fs.String("render-dir", "", "directory with rendered files (default: config renders path)")
	yes := fs.Bool("yes", false, "upload without asking per video")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}

	cfg, code := loadConfig(*configPath)
	if code != exitOK {
		return code
	}
	scenes, code := loadScenes(*input, cfg)
	if code != exitOK {
		return code
	}
	dir := *renderDir
	if dir == "" {
		dir = cfg.Paths.Renders
	}

	// Match rendered files back to their scenes by the canonical name.
	var artifacts []*render.Artifact
	for i := range scenes {
		s := &scenes[i]
		path := filepath.Join(dir, render.ArtifactName(s.TargetChannel(), s.Index))
		if _, err := os.Stat(path); err != nil {
			log.Printf("⚠️  Missing: %s", path)
			continue
		}
		log.Printf("📡 Found matching file: %s", path)
		artifacts = append(artifacts, &render.Artifact{Path: path, Channel: s.TargetChannel(), SceneIndex: s.Index})
	}
	if len(artifacts) == 0 {
		log.Printf("⚠️  No rendered files to upload in %s", dir)
		return exitOK
	}

	creds := vault.NewManager(cfg.Paths.ChannelsDir, cfg.Paths.ClientSecret, &terminalAuthorizer{}, cfg.AuthTimeout())
	led := ledger.New(cfg.Paths.Ledger)
	verifier := &identity.SessionVerifier{Strict: cfg.Channels.StrictIdentity}
	dispatcher := dispatch.New(creds, verifier, dispatch.NewYouTubeTransport(cfg), led, cfg)
	if !*yes {
		dispatcher.Approve = promptApproval
	}

	log.Printf("📦 Upload batch starting: %d artifact(s)", len(artifacts))
	results := dispatcher.DispatchAll(ctx, artifacts, scenes)

	var succeeded, skipped, failed int
	configMissing := false
	for _, r := range results {
		switch r.State {
		case dispatch.StateSucceeded:
			succeeded++
			if r.Err != nil {
				log.Printf("⚠️  %s uploaded but not recorded: %v", r.Artifact.Name(), r.Err)
			}
		case dispatch.StateSkipped:
			skipped++
			log.Printf("⏩ %s skipped (%s)", r.Artifact.Name(), r.Reason)
		case dispatch.StateFailed:
			failed++
			log.Printf("❌ %s failed: %v", r.Artifact.Name(), r.Err)
			if errors.Is(r.Err, vault.ErrAuthConfigMissing) {
				configMissing = true
			}
		}
	}
	log.Printf("🏆 Upload batch complete: %d succeeded, %d skipped, %d failed", succeeded, skipped, failed)

	switch {
	case configMissing:
		return exitConfigMissing
	case failed > 0:
		return exitPartialFail
	default:
		return exitOK
	}
}

func runDashboard(args []string) int {
	fs := flag.NewFlagSet("dashboard", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "config file")
	recent := fs.Int("recent", 5, "number of recent uploads to show")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}

	cfg, code := loadConfig(*configPath)
	if code != exitOK {
		return code
	}

	fmt.Println(strings.Repeat("=", 40))
	fmt.Println("🚀 NEWS SHORTS DASHBOARD")
	fmt.Println(strings.Repeat("=", 40))

	fmt.Println("\n📡 CHANNEL AUTH STATUS:")
	channels := make([]string, 0, len(cfg.Channels.Approved))
	for ch := range cfg.Channels.Approved {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	for _, ch := range channels {
		status := "❌ NEEDS LOGIN"
		if vault.TokenExists(cfg.Paths.ChannelsDir, ch) {
			status = "✅ READY"
		}
		fmt.Printf(" - %-20s : %s\n", ch, status)
	}

	summary, err := ledger.New(cfg.Paths.Ledger).Summarize(*recent)
	if err != nil {
		log.Printf("❌ Failed to read ledger: %v", err)
		return exitConfigMissing
	}

	fmt.Println("\n📊 UPLOAD STATISTICS:")
	for _, ch := range summary.Channels() {
		fmt.Printf(" - %-20s : %d videos\n", ch, summary.PerChannel[ch])
	}
	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf(" TOTAL UPLOADS: %d\n", summary.Total)

	fmt.Printf("\n🕒 RECENT %d UPLOADS:\n", *recent)
	for _, e := range summary.Recent {
		fmt.Printf(" > [%s] %s | %s | %s (%s)\n", e.Timestamp, e.Channel, e.Title, e.DestinationID, e.Status)
	}
	if len(summary.Recent) == 0 {
		fmt.Println(" ! No recent activity.")
	}
	fmt.Println()
	return exitOK
}

// promptApproval asks on the terminal before each upload.
func promptApproval(channel, title string) bool {
	fmt.Printf("🤔 Upload %q to %s? (y/n): ", title, channel)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(strings.ToLower(line)) == "y"
}

// terminalAuthorizer drives the interactive OAuth consent exchange. The wait
// for the code is a human-paced blocking read, cancellable via ctx.
type terminalAuthorizer struct{}

func (t *terminalAuthorizer) Authorize(ctx context.Context, authURL string) (string, error) {
	fmt.Printf("\n🔑 Open this URL in a browser and authorize the channel:\n\n  %s\n\nPaste the authorization code: ", authURL)

	type readResult struct {
		code string
		err  error
	}
	ch := make(chan readResult, 1)
	go func() {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		ch <- readResult{strings.TrimSpace(line), err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("read authorization code: %w", r.err)
		}
		if r.code == "" {
			return "", fmt.Errorf("empty authorization code")
		}
		return r.code, nil
	}
}
