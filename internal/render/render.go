// Package render fans scenes out to a bounded pool of render workers and
// collects the resulting artifacts. Rendering itself is an external
// collaborator; this package owns only the job lifecycle.
package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"news-shorts-pipeline/internal/content"
)

// Job binds one scene to its job-scoped work dir and target output path.
// A job is owned exclusively by the worker executing it.
type Job struct {
	ID         string
	SceneIndex int
	Channel    string
	WorkDir    string
	OutputPath string
}

// Artifact is a finished video file awaiting upload.
type Artifact struct {
	Path       string
	Channel    string
	SceneIndex int
}

// Name returns the artifact's file name, the key used for ledger
// idempotency checks.
func (a *Artifact) Name() string {
	return filepath.Base(a.Path)
}

// Renderer turns a scene into a video file at job.OutputPath. Failure must
// be reported as an error; a partial file is never silently complete.
type Renderer interface {
	Render(ctx context.Context, scene *content.Scene, job *Job) (string, error)
}

// ArtifactName builds the canonical rendered file name for a scene. The
// upload side matches files back to scenes through the same name.
func ArtifactName(channel string, index int) string {
	return fmt.Sprintf("Render_%s_%d.mp4", strings.ReplaceAll(channel, " ", "_"), index)
}

// newJob allocates a unique job ID and work dir. Keying the dir by
// channel+index+attempt keeps parallel jobs from trampling each other's
// temp files.
func newJob(workRoot, rendersDir string, scene *content.Scene) (*Job, error) {
	id := fmt.Sprintf("%s-%d-%s", strings.ReplaceAll(scene.TargetChannel(), " ", "_"), scene.Index, uuid.NewString()[:8])
	workDir := filepath.Join(workRoot, id)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("create work dir %s: %w", workDir, err)
	}
	return &Job{
		ID:         id,
		SceneIndex: scene.Index,
		Channel:    scene.TargetChannel(),
		WorkDir:    workDir,
		OutputPath: filepath.Join(rendersDir, ArtifactName(scene.TargetChannel(), scene.Index)),
	}, nil
}
