package dispatch

import (
	"context"
	"fmt"
	"log"
	"os"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"news-shorts-pipeline/internal/config"
	"news-shorts-pipeline/internal/vault"
)

// YouTubeTransport uploads via the Data API v3 resumable protocol. The
// client library resumes from the last confirmed chunk on transient network
// failures; nothing here restarts a transfer from zero.
type YouTubeTransport struct {
	cfg *config.Config
}

func NewYouTubeTransport(cfg *config.Config) *YouTubeTransport {
	return &YouTubeTransport{cfg: cfg}
}

func (t *YouTubeTransport) Upload(ctx context.Context, session *vault.Session, path string, meta *Metadata, progress func(pct int)) (string, error) {
	svc, err := youtube.NewService(ctx, option.WithHTTPClient(session.HTTPClient()))
	if err != nil {
		return "", fmt.Errorf("youtube service: %w", err)
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:                meta.Title,
			Description:          meta.Description,
			Tags:                 meta.Tags,
			CategoryId:           meta.CategoryID,
			DefaultLanguage:      meta.Language,
			DefaultAudioLanguage: meta.Language,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           meta.PrivacyStatus,
			SelfDeclaredMadeForKids: false,
			ContainsSyntheticMedia:  meta.SyntheticMedia,
		},
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat video file: %w", err)
	}
	size := fi.Size()
	log.Printf("[upload] File size: %.1f MB", float64(size)/1024/1024)

	call := svc.Videos.Insert([]string{"snippet", "status"}, video)
	call.NotifySubscribers(t.cfg.Upload.NotifySubscribers)
	call.Media(f, googleapi.ChunkSize(googleapi.DefaultUploadChunkSize))
	if progress != nil && size > 0 {
		call.ProgressUpdater(func(current, total int64) {
			progress(int(current * 100 / size))
		})
	}

	uploaded, err := call.Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("youtube upload: %w", err)
	}
	if progress != nil {
		progress(100)
	}
	return uploaded.Id, nil
}
