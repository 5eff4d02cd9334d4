// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bartekus/toolforge/cmd/toolforge/internal/clierr"
	"github.com/bartekus/toolforge/internal/agent"
	"github.com/bartekus/toolforge/internal/artifact"
	"github.com/bartekus/toolforge/internal/config"
	"github.com/bartekus/toolforge/internal/dockerrun"
	"github.com/bartekus/toolforge/internal/logging"
	"github.com/bartekus/toolforge/internal/model"
	"github.com/bartekus/toolforge/internal/orchestrator"
	"github.com/bartekus/toolforge/internal/repometa"
	"github.com/bartekus/toolforge/internal/staticcheck"
	"github.com/bartekus/toolforge/internal/worklist"
)

func newRunCmd() *cobra.Command {
	var (
		worklistPath  string
		sample        bool
		dryRun        bool
		maxConcurrent int
		artifactsDir  string
		baseImage     string
		composeAfter  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process the worklist end to end",
		Long: `Read the worklist, and for every pending tool generate an installation
script, run the static check battery, and validate the script inside a
throwaway container. Results are written back to the worklist and into a
per-run artifact directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return clierr.Wrap(2, "configuration", err)
			}

			flags := cmd.Flags()
			if flags.Changed("worklist") {
				cfg.Worklist.Path = worklistPath
			}
			if flags.Changed("sample") {
				cfg.Worklist.Sample = sample
			}
			if flags.Changed("dry-run") {
				cfg.DryRun = dryRun
			}
			if flags.Changed("max-concurrent") {
				cfg.ParallelJobs = maxConcurrent
			}
			if flags.Changed("artifacts-dir") {
				cfg.Artifacts.BasePath = artifactsDir
			}
			if flags.Changed("base-image") {
				cfg.Docker.BaseImage = baseImage
			}
			if err := cfg.Validate(); err != nil {
				return clierr.Wrap(2, "configuration", err)
			}

			log := newLogger(cmd, cfg)
			runID := newRunID()
			log.Info().Str("run_id", runID).Bool("dry_run", cfg.DryRun).Msg("starting run")

			store, err := artifact.NewStore(cfg.Artifacts.BasePath, runID)
			if err != nil {
				return clierr.Wrap(1, "artifact store", err)
			}

			var source worklist.Source
			if cfg.Worklist.Sample {
				source = worklist.NewSampleSource(log)
			} else {
				source = worklist.NewFileSource(cfg.Worklist.Path)
			}

			docs, err := loadDocs(cfg)
			if err != nil {
				return clierr.Wrap(2, "loading docs", err)
			}

			apiKey := cfg.APIKey()
			if apiKey == "" {
				return clierr.Newf(2, "%s is not set; the authoring agent needs an API key", cfg.Agent.APIKeyEnv)
			}
			author, err := agent.NewGemini(cmd.Context(), apiKey, cfg.Agent.Model)
			if err != nil {
				return clierr.Wrap(1, "authoring agent", err)
			}

			var containers orchestrator.ContainerRunner
			if !cfg.DryRun {
				runner, err := dockerrun.NewRunner(dockerrun.Config{
					BaseImage:         cfg.Docker.BaseImage,
					BuildTimeout:      cfg.Docker.BuildTimeout(),
					RunTimeout:        cfg.Docker.RunTimeout(),
					CleanupContainers: cfg.Docker.CleanupContainers,
					RemoveImages:      cfg.Docker.RemoveImages,
				}, log)
				if err != nil {
					return clierr.Wrap(1, "container runtime", err)
				}
				containers = runner
			}

			orch, err := orchestrator.New(orchestrator.Options{
				Source:       source,
				Author:       author,
				Store:        store,
				Static:       staticcheck.NewValidator(),
				Containers:   containers,
				Metadata:     repometa.NewClient(os.Getenv("GITHUB_TOKEN"), log),
				Docs:         docs,
				RunID:        runID,
				BaseImage:    cfg.Docker.BaseImage,
				ParallelJobs: cfg.ParallelJobs,
				DryRun:       cfg.DryRun,
				Log:          log,
			})
			if err != nil {
				return clierr.Wrap(1, "orchestrator", err)
			}

			summary, err := orch.Run(cmd.Context())
			if err != nil {
				return clierr.Wrap(1, "run", err)
			}
			printSummary(cmd, summary, store.RunDir())

			if composeAfter && summary.Successful > 0 {
				if err := composeRun(store.RunDir(), docs.BaseDockerfile, log); err != nil {
					return clierr.Wrap(1, "composing run", err)
				}
			}

			if summary.Failed > 0 {
				return clierr.Newf(1, "%d of %d tools failed", summary.Failed, summary.Processed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&worklistPath, "worklist", "", "path to the YAML worklist")
	cmd.Flags().BoolVar(&sample, "sample", false, "use the built-in sample worklist")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "skip container validation")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "maximum tools processed in parallel")
	cmd.Flags().StringVar(&artifactsDir, "artifacts-dir", "", "base directory for run artifacts")
	cmd.Flags().StringVar(&baseImage, "base-image", "", "base image for container validation")
	cmd.Flags().BoolVar(&composeAfter, "compose", false, "build the combined context after a run with successes")

	return cmd
}

// newRunID combines a sortable timestamp with a short random suffix so
// concurrent runs started in the same second never collide.
func newRunID() string {
	return time.Now().UTC().Format("20060102_150405") + "-" + uuid.NewString()[:8]
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func newLogger(cmd *cobra.Command, cfg config.Config) zerolog.Logger {
	level := cfg.LogLevel
	if cmd.Flags().Changed("log-level") {
		level, _ = cmd.Flags().GetString("log-level")
	}
	return logging.New("toolforge", level)
}

func loadDocs(cfg config.Config) (agent.Docs, error) {
	var docs agent.Docs
	var err error

	if docs.InstallStandards, err = artifact.LoadDocument(cfg.Docs.InstallStandards); err != nil {
		return docs, err
	}
	if docs.BaseDockerfile, err = artifact.LoadDocument(cfg.Docs.BaseDockerfile); err != nil {
		return docs, err
	}
	// The checklist is parsed once so malformed YAML fails fast instead of
	// confusing the agent mid-run.
	if _, err = artifact.LoadChecklist(cfg.Docs.AcceptanceChecklist); err != nil {
		return docs, err
	}
	if docs.AcceptanceChecklist, err = artifact.LoadDocument(cfg.Docs.AcceptanceChecklist); err != nil {
		return docs, err
	}
	return docs, nil
}

func printSummary(cmd *cobra.Command, s model.RunSummary, runDir string) {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Run %s finished in %.1fs\n", s.RunID, s.DurationSeconds)
	_, _ = fmt.Fprintf(out, "  total: %d  processed: %d  successful: %d  failed: %d\n",
		s.TotalTools, s.Processed, s.Successful, s.Failed)
	_, _ = fmt.Fprintf(out, "  artifacts: %s\n", runDir)
}
