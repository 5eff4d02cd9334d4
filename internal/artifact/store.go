// SPDX-License-Identifier: AGPL-3.0-or-later

// Package artifact maps (run, tool) to a directory tree holding scripts,
// manifests, logs, and status files. Pure storage, no policy: callers decide
// what is written and when.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bartekus/toolforge/internal/model"
)

// ScriptName is the fixed filename for a tool's installer inside its
// artifact directory and inside build contexts.
const ScriptName = "tool_setup.sh"

// ManifestName is the fixed filename for a tool's dependency manifest.
const ManifestName = "tool_manifest.json"

// Store persists run artifacts under <base>/runs/<runID>.
type Store struct {
	base  string
	runID string
}

// NewStore creates the run directory tree rooted at base.
func NewStore(base, runID string) (*Store, error) {
	s := &Store{base: base, runID: runID}
	for _, dir := range []string{s.RunDir(), s.ToolsDir(), s.SharedDir(), s.ComposeDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating artifact dir %s: %w", dir, err)
		}
	}
	return s, nil
}

// RunDir returns the root directory of this run's artifacts.
func (s *Store) RunDir() string { return filepath.Join(s.base, "runs", s.runID) }

// ToolsDir returns the directory holding per-tool subtrees.
func (s *Store) ToolsDir() string { return filepath.Join(s.RunDir(), "tools") }

// SharedDir returns the directory for the aggregated manifest and shared script.
func (s *Store) SharedDir() string { return filepath.Join(s.RunDir(), "shared") }

// ComposeDir returns the directory for the combined build context.
func (s *Store) ComposeDir() string { return filepath.Join(s.RunDir(), "compose") }

// ToolDir returns (and creates) the directory for one tool's artifacts.
func (s *Store) ToolDir(toolName string) (string, error) {
	dir := filepath.Join(s.ToolsDir(), toolName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating tool dir: %w", err)
	}
	return dir, nil
}

// SaveScript writes the installer script executable, with a sha256 sidecar
// so shipped artifacts can be integrity-checked.
func (s *Store) SaveScript(toolName, content string) (string, error) {
	dir, err := s.ToolDir(toolName)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, ScriptName)
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		return "", fmt.Errorf("writing script: %w", err)
	}

	sum := sha256.Sum256([]byte(content))
	sidecar := fmt.Sprintf("%s  %s\n", hex.EncodeToString(sum[:]), ScriptName)
	if err := os.WriteFile(path+".sha256", []byte(sidecar), 0o644); err != nil {
		return "", fmt.Errorf("writing checksum: %w", err)
	}
	return path, nil
}

// SaveJSON writes v pretty-printed to name inside the tool's directory.
// An empty toolName targets the run root (e.g. summary.json).
func (s *Store) SaveJSON(toolName, name string, v any) (string, error) {
	dir := s.RunDir()
	if toolName != "" {
		var err error
		if dir, err = s.ToolDir(toolName); err != nil {
			return "", err
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encoding %s: %w", name, err)
	}
	return path, nil
}

// SaveManifest persists a tool's dependency manifest.
func (s *Store) SaveManifest(toolName string, m model.DependencyManifest) (string, error) {
	return s.SaveJSON(toolName, ManifestName, m)
}

// LoadManifest reads one tool's dependency manifest back.
func (s *Store) LoadManifest(toolName string) (model.DependencyManifest, error) {
	var m model.DependencyManifest
	data, err := os.ReadFile(filepath.Join(s.ToolsDir(), toolName, ManifestName))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decoding manifest for %s: %w", toolName, err)
	}
	return m, nil
}

// SaveLog appends a timestamped log file to the tool's directory.
func (s *Store) SaveLog(toolName, logType, content string) (string, error) {
	dir, err := s.ToolDir(toolName)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s.log", logType, time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing log: %w", err)
	}
	return path, nil
}

// WriteStatus drops a human-readable status.txt for quick inspection
// without parsing JSON.
func (s *Store) WriteStatus(toolName string, status model.Status, message string) error {
	dir, err := s.ToolDir(toolName)
	if err != nil {
		return err
	}
	content := fmt.Sprintf("Status: %s\nUpdated: %s\n", status, time.Now().UTC().Format(time.RFC3339))
	if message != "" {
		content += "Message: " + message + "\n"
	}
	return os.WriteFile(filepath.Join(dir, "status.txt"), []byte(content), 0o644)
}

// SaveSharedScript writes the aggregated prerequisite installer.
func (s *Store) SaveSharedScript(content string) (string, error) {
	path := filepath.Join(s.SharedDir(), "shared_setup.sh")
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		return "", fmt.Errorf("writing shared script: %w", err)
	}
	return path, nil
}

// LoadDocument reads an operator-provided document (standards, checklist,
// base Dockerfile). Missing files degrade to empty content so a bare
// checkout still runs.
func LoadDocument(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// LoadChecklist parses the acceptance checklist YAML into a generic map so
// the agent prompt can embed it verbatim while still rejecting bad YAML.
func LoadChecklist(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing checklist %s: %w", path, err)
	}
	return out, nil
}
