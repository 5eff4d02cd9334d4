// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dockerrun builds and runs candidate installation scripts inside
// throwaway containers. It owns the build/run timeouts and guarantees that
// any container or image created during an attempt is removed afterwards,
// whatever the outcome.
package dockerrun

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bartekus/toolforge/internal/artifact"
	"github.com/bartekus/toolforge/internal/model"
)

// Config controls container validation behavior.
type Config struct {
	BaseImage         string
	BuildTimeout      time.Duration
	RunTimeout        time.Duration
	CleanupContainers bool
	RemoveImages      bool

	// DockerBin overrides the docker executable; tests point it at a stub.
	DockerBin string
}

// DefaultConfig mirrors the documented defaults: 300s build, 600s run.
func DefaultConfig() Config {
	return Config{
		BaseImage:         "ubuntu:22.04",
		BuildTimeout:      300 * time.Second,
		RunTimeout:        600 * time.Second,
		CleanupContainers: true,
		RemoveImages:      true,
		DockerBin:         "docker",
	}
}

// Runner executes installation scripts in containers.
type Runner struct {
	cfg Config
	log zerolog.Logger
}

// NewRunner probes the container runtime before anything else: an
// unreachable daemon is an infrastructure failure that must abort the run
// before any job starts.
func NewRunner(cfg Config, log zerolog.Logger) (*Runner, error) {
	if cfg.DockerBin == "" {
		cfg.DockerBin = "docker"
	}
	if _, err := exec.LookPath(cfg.DockerBin); err != nil {
		return nil, fmt.Errorf("docker not found: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, cfg.DockerBin, "info").Run(); err != nil {
		return nil, fmt.Errorf("docker daemon not accessible: %w", err)
	}
	return &Runner{cfg: cfg, log: log}, nil
}

// ContainerName derives a unique container/image name so concurrent
// validations never collide on the Docker namespace.
func ContainerName(toolName string, now time.Time) string {
	return fmt.Sprintf("tool-install-%s-%d", toolName, now.UnixNano())
}

// RunInstallation builds an image that executes the script and the tool's
// validation command, then runs the validation command once more in a fresh
// container. The returned result is failed on any build error, run error,
// or timeout; cleanup always runs and never changes the verdict.
func (r *Runner) RunInstallation(ctx context.Context, scriptPath string, spec model.ToolSpec, baseImage string) model.ValidationResult {
	if baseImage == "" {
		baseImage = r.cfg.BaseImage
	}
	name := ContainerName(spec.Name, time.Now())
	imageTag := name + ":latest"
	start := time.Now()

	defer r.cleanup(name, imageTag)

	contextDir, err := os.MkdirTemp("", "toolforge-build-")
	if err != nil {
		return failed("docker_build", "creating build context: "+err.Error(), "", start)
	}
	defer func() { _ = os.RemoveAll(contextDir) }()

	script, err := os.ReadFile(scriptPath)
	if err != nil {
		return failed("docker_build", "reading script: "+err.Error(), "", start)
	}
	if err := os.WriteFile(filepath.Join(contextDir, artifact.ScriptName), script, 0o755); err != nil {
		return failed("docker_build", "staging script: "+err.Error(), "", start)
	}
	dockerfile := Dockerfile(baseImage, spec)
	if err := os.WriteFile(filepath.Join(contextDir, "Dockerfile"), []byte(dockerfile), 0o644); err != nil {
		return failed("docker_build", "writing Dockerfile: "+err.Error(), "", start)
	}

	r.log.Info().Str("tool", spec.Name).Str("image", imageTag).Msg("building validation image")
	buildOut, err := r.runDocker(ctx, r.cfg.BuildTimeout,
		"build", "--no-cache", "-t", imageTag, contextDir)
	if err != nil {
		if isTimeout(err) {
			return failed("docker_build",
				fmt.Sprintf("build timed out after %d seconds", int(r.cfg.BuildTimeout.Seconds())),
				buildOut, start)
		}
		return failed("docker_build", "failed to build Docker image", buildOut, start)
	}

	r.log.Info().Str("tool", spec.Name).Str("container", name).Msg("running validation command")
	runOut, err := r.runDockerSplit(ctx, r.cfg.RunTimeout,
		"run", "--rm", "--name", name, imageTag, "bash", "-c", spec.ValidateCmd)
	if err != nil {
		if isTimeout(err) {
			return failed("docker_validation",
				fmt.Sprintf("validation timed out after %d seconds", int(r.cfg.RunTimeout.Seconds())),
				runOut.combined(), start)
		}
		return failed("docker_validation",
			fmt.Sprintf("validation command failed: %v", err), runOut.combined(), start)
	}

	res := model.ValidationResult{
		Step:            "docker_validation",
		Status:          model.ValidationPassed,
		Output:          "tool installed successfully. " + ExtractVersion(runOut.stdout, spec),
		DurationSeconds: time.Since(start).Seconds(),
	}
	return res
}

// cleanup force-removes the named container and, if configured, the built
// image. Failures are logged and swallowed; running it twice is harmless.
func (r *Runner) cleanup(containerName, imageTag string) {
	if !r.cfg.CleanupContainers {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := exec.CommandContext(ctx, r.cfg.DockerBin, "rm", "-f", containerName).Run(); err != nil {
		r.log.Warn().Str("container", containerName).Err(err).Msg("container cleanup failed")
	}
	if r.cfg.RemoveImages {
		if err := exec.CommandContext(ctx, r.cfg.DockerBin, "rmi", imageTag).Run(); err != nil {
			r.log.Warn().Str("image", imageTag).Err(err).Msg("image cleanup failed")
		}
	}
}

type splitOutput struct {
	stdout string
	stderr string
}

// combined renders the capture in the fixed stdout-then-stderr order used
// in stored validation artifacts.
func (o splitOutput) combined() string {
	return "STDOUT:\n" + o.stdout + "\n\nSTDERR:\n" + o.stderr
}

func (r *Runner) runDocker(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.cfg.DockerBin, args...)
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return string(out), context.DeadlineExceeded
	}
	return string(out), err
}

func (r *Runner) runDockerSplit(ctx context.Context, timeout time.Duration, args ...string) (splitOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr strings.Builder
	cmd := exec.CommandContext(ctx, r.cfg.DockerBin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	out := splitOutput{stdout: stdout.String(), stderr: stderr.String()}
	if ctx.Err() == context.DeadlineExceeded {
		return out, context.DeadlineExceeded
	}
	return out, err
}

func isTimeout(err error) bool {
	return err == context.DeadlineExceeded
}

func failed(step, errMsg, output string, start time.Time) model.ValidationResult {
	return model.ValidationResult{
		Step:            step,
		Status:          model.ValidationFailed,
		Error:           errMsg,
		Output:          output,
		DurationSeconds: time.Since(start).Seconds(),
	}
}
