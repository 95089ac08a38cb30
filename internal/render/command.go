package render

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"news-shorts-pipeline/internal/content"
)

// CommandRenderer shells out to an external render tool: the scene is
// written as JSON into the job's work dir and the tool is invoked as
// `<command> <args...> <scene.json> <output.mp4>`.
type CommandRenderer struct {
	Command string
	Args    []string
}

func (c *CommandRenderer) Render(ctx context.Context, scene *content.Scene, job *Job) (string, error) {
	if c.Command == "" {
		return "", fmt.Errorf("no render command configured")
	}

	scenePath := filepath.Join(job.WorkDir, "scene.json")
	data, err := json.MarshalIndent(scene, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal scene %d: %w", scene.Index, err)
	}
	if err := os.WriteFile(scenePath, data, 0644); err != nil {
		return "", fmt.Errorf("write scene file: %w", err)
	}

	args := append(append([]string{}, c.Args...), scenePath, job.OutputPath)
	cmd := exec.CommandContext(ctx, c.Command, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Dir = job.WorkDir

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("render command %s: %w", c.Command, err)
	}
	return job.OutputPath, nil
}
