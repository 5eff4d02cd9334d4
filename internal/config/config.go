// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads toolforge's YAML configuration and applies defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full process configuration.
type Config struct {
	Worklist  WorklistConfig  `yaml:"worklist"`
	Agent     AgentConfig     `yaml:"agent"`
	Docker    DockerConfig    `yaml:"docker"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Docs      DocsConfig      `yaml:"docs"`

	ParallelJobs int    `yaml:"parallel_jobs"`
	DryRun       bool   `yaml:"dry_run"`
	LogLevel     string `yaml:"log_level"`
}

// WorklistConfig selects the work-list source.
type WorklistConfig struct {
	// Path to a YAML worklist file. Ignored when Sample is set.
	Path string `yaml:"path"`

	// Sample switches to the built-in in-memory worklist for offline runs.
	Sample bool `yaml:"sample"`
}

// AgentConfig configures the script-authoring agent.
type AgentConfig struct {
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// DockerConfig configures container validation.
type DockerConfig struct {
	BaseImage           string `yaml:"base_image"`
	BuildTimeoutSeconds int    `yaml:"build_timeout_seconds"`
	RunTimeoutSeconds   int    `yaml:"run_timeout_seconds"`
	CleanupContainers   bool   `yaml:"cleanup_containers"`
	RemoveImages        bool   `yaml:"remove_images"`
}

// BuildTimeout returns the build timeout as a duration.
func (d DockerConfig) BuildTimeout() time.Duration {
	return time.Duration(d.BuildTimeoutSeconds) * time.Second
}

// RunTimeout returns the run timeout as a duration.
func (d DockerConfig) RunTimeout() time.Duration {
	return time.Duration(d.RunTimeoutSeconds) * time.Second
}

// ArtifactsConfig configures artifact storage.
type ArtifactsConfig struct {
	BasePath string `yaml:"base_path"`
}

// DocsConfig points at the operator-provided documents fed to the agent.
type DocsConfig struct {
	InstallStandards    string `yaml:"install_standards"`
	BaseDockerfile      string `yaml:"base_dockerfile"`
	AcceptanceChecklist string `yaml:"acceptance_checklist"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Agent: AgentConfig{
			Model:     "gemini-2.0-flash",
			APIKeyEnv: "GEMINI_API_KEY",
		},
		Docker: DockerConfig{
			BaseImage:           "ubuntu:22.04",
			BuildTimeoutSeconds: 300,
			RunTimeoutSeconds:   600,
			CleanupContainers:   true,
			RemoveImages:        true,
		},
		Artifacts: ArtifactsConfig{BasePath: "artifacts"},
		Docs: DocsConfig{
			InstallStandards:    "config/install_standards.md",
			BaseDockerfile:      "config/base.Dockerfile",
			AcceptanceChecklist: "config/acceptance_checklist.yaml",
		},
		ParallelJobs: 5,
		LogLevel:     "info",
	}
}

// Load reads the config file at path, layered over defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.ParallelJobs < 1 {
		return fmt.Errorf("parallel_jobs must be at least 1, got %d", c.ParallelJobs)
	}
	if c.Docker.BuildTimeoutSeconds < 1 {
		return fmt.Errorf("docker.build_timeout_seconds must be positive")
	}
	if c.Docker.RunTimeoutSeconds < 1 {
		return fmt.Errorf("docker.run_timeout_seconds must be positive")
	}
	if !c.Worklist.Sample && c.Worklist.Path == "" {
		return fmt.Errorf("worklist.path is required unless worklist.sample is set")
	}
	return nil
}

// APIKey resolves the agent API key from the configured environment variable.
func (c Config) APIKey() string {
	if c.Agent.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Agent.APIKeyEnv)
}
