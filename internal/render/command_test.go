package render

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"news-shorts-pipeline/internal/content"
)

func TestCommandRenderer(t *testing.T) {
	dir := t.TempDir()
	job := &Job{
		ID:         "TrendWave-0-abc12345",
		SceneIndex: 0,
		Channel:    "TrendWave",
		WorkDir:    filepath.Join(dir, "work"),
		OutputPath: filepath.Join(dir, "Render_TrendWave_0.mp4"),
	}
	if err := os.MkdirAll(job.WorkDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	scene := &content.Scene{Index: 0, Channel: "TrendWave", Headline: "Big story", HookText: "hook", Details: "details"}

	// The fake render tool just copies the scene JSON to the output path.
	r := &CommandRenderer{Command: "sh", Args: []string{"-c", `cp "$0" "$1"`}}
	out, err := r.Render(context.Background(), scene, job)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != job.OutputPath {
		t.Errorf("output path %q, want %q", out, job.OutputPath)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), "Big story") {
		t.Error("scene JSON was not handed to the render command")
	}
}

func TestCommandRenderer_FailedCommand(t *testing.T) {
	dir := t.TempDir()
	job := &Job{WorkDir: dir, OutputPath: filepath.Join(dir, "out.mp4")}
	scene := &content.Scene{Index: 0, Channel: "TrendWave"}

	r := &CommandRenderer{Command: "sh", Args: []string{"-c", "exit 7"}}
	if _, err := r.Render(context.Background(), scene, job); err == nil {
		t.Fatal("non-zero exit must surface as an error")
	}
}

func TestCommandRenderer_NoCommand(t *testing.T) {
	r := &CommandRenderer{}
	_, err := r.Render(context.Background(), &content.Scene{}, &Job{WorkDir: t.TempDir()})
	if err == nil {
		t.Fatal("missing command must error")
	}
}
