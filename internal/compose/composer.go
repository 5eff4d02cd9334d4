// SPDX-License-Identifier: AGPL-3.0-or-later

// Package compose assembles the combined build context that installs every
// validated tool of a run into one image: shared prerequisite script, all
// per-tool scripts, a generated driver script, and a COPY-only Dockerfile.
package compose

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bartekus/toolforge/internal/artifact"
	"github.com/bartekus/toolforge/internal/model"
)

// DefaultBaseDockerfile seeds the composed image when the operator supplies
// no base Dockerfile document.
const DefaultBaseDockerfile = "FROM debian:12-slim\nWORKDIR /workspace\n"

// Result describes the generated build context.
type Result struct {
	ToolNames      []string
	ContextDir     string
	DriverPath     string
	DockerfilePath string
}

// Composer builds the combined context from a run's artifact tree.
type Composer struct {
	toolsDir       string
	sharedDir      string
	composeDir     string
	baseDockerfile string
}

// New creates a composer over a run directory laid out by the artifact store.
func New(runDir, baseDockerfile string) *Composer {
	if strings.TrimSpace(baseDockerfile) == "" {
		baseDockerfile = DefaultBaseDockerfile
	}
	return &Composer{
		toolsDir:       filepath.Join(runDir, "tools"),
		sharedDir:      filepath.Join(runDir, "shared"),
		composeDir:     filepath.Join(runDir, "compose"),
		baseDockerfile: baseDockerfile,
	}
}

// ListTools discovers every tool that produced both a script and a
// manifest, in lexicographic order for deterministic composition.
func (c *Composer) ListTools() ([]string, error) {
	entries, err := os.ReadDir(c.toolsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading tools dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(c.toolsDir, e.Name())
		if fileExists(filepath.Join(dir, artifact.ScriptName)) &&
			fileExists(filepath.Join(dir, artifact.ManifestName)) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Compose generates the full build context and returns its layout.
func (c *Composer) Compose() (*Result, error) {
	tools, err := c.ListTools()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(c.composeDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating compose dir: %w", err)
	}
	if err := c.copyInputs(tools); err != nil {
		return nil, err
	}

	driver, err := c.writeDriver(tools)
	if err != nil {
		return nil, err
	}
	dockerfile, err := c.writeDockerfile(tools)
	if err != nil {
		return nil, err
	}

	return &Result{
		ToolNames:      tools,
		ContextDir:     c.composeDir,
		DriverPath:     driver,
		DockerfilePath: dockerfile,
	}, nil
}

func (c *Composer) copyInputs(tools []string) error {
	shared := filepath.Join(c.sharedDir, "shared_setup.sh")
	if fileExists(shared) {
		if err := copyFile(shared, filepath.Join(c.composeDir, "shared_setup.sh"), 0o755); err != nil {
			return err
		}
	}
	for _, name := range tools {
		src := filepath.Join(c.toolsDir, name, artifact.ScriptName)
		dst := filepath.Join(c.composeDir, "tools", name, artifact.ScriptName)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("creating compose tool dir: %w", err)
		}
		if err := copyFile(src, dst, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// writeDriver generates run_all.sh: shared setup first, then each tool's
// installer and validation in order. Any non-zero exit aborts the whole
// sequence; a bad tool blocks the image rather than being silently skipped.
func (c *Composer) writeDriver(tools []string) (string, error) {
	lines := []string{
		"#!/usr/bin/env bash",
		"set -euo pipefail",
		"IFS=$'\\n\\t'",
		`log() { echo "[compose][$(date -u +'%Y-%m-%dT%H:%M:%SZ')] $*"; }`,
		"export DEBIAN_FRONTEND=noninteractive",
		"chmod +x /workspace/shared_setup.sh || true",
		"log 'Running shared_setup.sh' && /workspace/shared_setup.sh",
	}
	for _, name := range tools {
		script := "/workspace/tools/" + name + "/" + artifact.ScriptName
		lines = append(lines,
			fmt.Sprintf("log 'Installing %s'", name),
			"chmod +x "+script,
			// Prefer skipping shared prerequisites; fall back when the
			// script does not support the flag.
			fmt.Sprintf("%s --skip-prereqs || %s", script, script),
			fmt.Sprintf("log 'Validating %s' && %s", name, QuoteValidate(c.validateCmd(name))),
		)
	}

	path := filepath.Join(c.composeDir, "run_all.sh")
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		return "", fmt.Errorf("writing driver script: %w", err)
	}
	return path, nil
}

// writeDockerfile emits an image definition that copies everything into
// fixed in-image paths but executes nothing at build time. Installation
// happens when the image is run, so one build artifact can be tested,
// retried, or shipped without rebuilding.
func (c *Composer) writeDockerfile(tools []string) (string, error) {
	lines := []string{
		strings.TrimRight(c.baseDockerfile, "\n"),
		"RUN mkdir -p /workspace && chmod 755 /workspace",
		"COPY shared_setup.sh /workspace/shared_setup.sh",
	}
	for _, name := range tools {
		lines = append(lines, fmt.Sprintf(
			"COPY tools/%s/%s /workspace/tools/%s/%s",
			name, artifact.ScriptName, name, artifact.ScriptName))
	}
	lines = append(lines,
		"COPY run_all.sh /workspace/run_all.sh",
		"RUN chmod +x /workspace/run_all.sh /workspace/shared_setup.sh || true",
	)

	path := filepath.Join(c.composeDir, "Dockerfile")
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing Dockerfile: %w", err)
	}
	return path, nil
}

// validateCmd reads a tool's manifest for its validation command, falling
// back to the conventional "--version" probe.
func (c *Composer) validateCmd(name string) string {
	data, err := os.ReadFile(filepath.Join(c.toolsDir, name, artifact.ManifestName))
	if err == nil {
		var m model.DependencyManifest
		if json.Unmarshal(data, &m) == nil && strings.TrimSpace(m.ValidateCmd) != "" {
			return m.ValidateCmd
		}
	}
	return name + " --version"
}

// QuoteValidate wraps a validation command for the driver script, choosing
// the quoting style by the quote characters the command itself contains.
// Commands holding both quote kinds take the backslash-escaping path.
func QuoteValidate(cmd string) string {
	hasDouble := strings.Contains(cmd, `"`)
	hasSingle := strings.Contains(cmd, `'`)
	switch {
	case hasDouble && !hasSingle:
		return "bash -lc '" + cmd + "'"
	case hasSingle && !hasDouble:
		return `bash -lc "` + cmd + `"`
	default:
		return `bash -lc "` + strings.ReplaceAll(cmd, `"`, `\"`) + `"`
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func copyFile(src, dst string, mode os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, mode); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	return nil
}
