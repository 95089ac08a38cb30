package render

import (
	"context"
	"fmt"
	"log"
	"os"

	"golang.org/x/sync/errgroup"

	"news-shorts-pipeline/internal/content"
)

// Scheduler runs renders with bounded concurrency. Each render is
// memory-heavy, so the cap stays low; an unbounded pool has been observed to
// exhaust host RAM.
type Scheduler struct {
	renderer       Renderer
	rendersDir     string
	workRoot       string
	maxConcurrency int
}

// Outcome associates a render result with its originating scene by index.
// Completion order is unspecified.
type Outcome struct {
	SceneIndex int
	Artifact   *Artifact
	Err        error
}

func NewScheduler(renderer Renderer, rendersDir, workRoot string, maxConcurrency int) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 2
	}
	return &Scheduler{
		renderer:       renderer,
		rendersDir:     rendersDir,
		workRoot:       workRoot,
		maxConcurrency: maxConcurrency,
	}
}

// RenderAll dispatches every scene and waits for all of them to reach a
// terminal state. One scene's failure never cancels its siblings, and there
// is no automatic retry. Cancelling ctx stops new jobs from launching while
// jobs already started run to completion.
func (s *Scheduler) RenderAll(ctx context.Context, scenes []content.Scene) []Outcome {
	log.Printf("[render] Scheduling %d scene(s), max %d concurrent", len(scenes), s.maxConcurrency)

	outcomes := make([]Outcome, len(scenes))

	g := new(errgroup.Group)
	g.SetLimit(s.maxConcurrency)

	for i := range scenes {
		if err := ctx.Err(); err != nil {
			outcomes[i] = Outcome{SceneIndex: i, Err: fmt.Errorf("batch cancelled before render started: %w", err)}
			continue
		}
		scene := &scenes[i]
		g.Go(func() error {
			// The launch may have been blocked on the concurrency limit;
			// a cancel that arrived meanwhile must still win.
			if err := ctx.Err(); err != nil {
				outcomes[scene.Index] = Outcome{SceneIndex: scene.Index, Err: fmt.Errorf("batch cancelled before render started: %w", err)}
				return nil
			}
			// A started render runs to its own completion or failure even
			// if the batch is cancelled mid-flight.
			outcomes[scene.Index] = s.renderOne(context.WithoutCancel(ctx), scene)
			return nil
		})
	}
	g.Wait()

	return outcomes
}

func (s *Scheduler) renderOne(ctx context.Context, scene *content.Scene) Outcome {
	job, err := newJob(s.workRoot, s.rendersDir, scene)
	if err != nil {
		return Outcome{SceneIndex: scene.Index, Err: err}
	}
	defer os.RemoveAll(job.WorkDir)

	log.Printf("[render] 🎬 Job %s: rendering scene %d for %q", job.ID, scene.Index, job.Channel)

	path, err := s.renderer.Render(ctx, scene, job)
	if err != nil {
		log.Printf("[render] ❌ Job %s failed: %v", job.ID, err)
		return Outcome{SceneIndex: scene.Index, Err: fmt.Errorf("render scene %d: %w", scene.Index, err)}
	}

	if err := checkComplete(path); err != nil {
		log.Printf("[render] ❌ Job %s produced no usable output: %v", job.ID, err)
		return Outcome{SceneIndex: scene.Index, Err: fmt.Errorf("render scene %d: %w", scene.Index, err)}
	}

	log.Printf("[render] ✅ Job %s done: %s", job.ID, path)
	return Outcome{
		SceneIndex: scene.Index,
		Artifact:   &Artifact{Path: path, Channel: job.Channel, SceneIndex: scene.Index},
	}
}

// checkComplete rejects missing or empty output files so a crashed renderer
// can never hand a partial file downstream.
func checkComplete(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("output file missing: %w", err)
	}
	if fi.Size() == 0 {
		return fmt.Errorf("output file %s is empty", path)
	}
	return nil
}
