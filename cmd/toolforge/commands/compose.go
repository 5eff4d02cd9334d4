// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bartekus/toolforge/cmd/toolforge/internal/clierr"
	"github.com/bartekus/toolforge/internal/artifact"
	"github.com/bartekus/toolforge/internal/compose"
	"github.com/bartekus/toolforge/internal/shareddeps"
)

func newComposeCmd() *cobra.Command {
	var baseDockerfile string

	cmd := &cobra.Command{
		Use:   "compose <run-dir>",
		Short: "Build a combined context from a finished run",
		Long: `Aggregate the dependency manifests of every validated tool in a run
into one shared prerequisite script, then assemble a single build context
(driver script plus Dockerfile) that installs all of them in one image.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return clierr.Wrap(2, "configuration", err)
			}
			log := newLogger(cmd, cfg)

			base := baseDockerfile
			if base == "" {
				if base, err = artifact.LoadDocument(cfg.Docs.BaseDockerfile); err != nil {
					return clierr.Wrap(2, "loading base Dockerfile", err)
				}
			} else {
				data, err := os.ReadFile(base)
				if err != nil {
					return clierr.Wrap(2, "loading base Dockerfile", err)
				}
				base = string(data)
			}

			if err := composeRun(args[0], base, log); err != nil {
				return clierr.Wrap(1, "composing run", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "composed context written to %s\n",
				filepath.Join(args[0], "compose"))
			return nil
		},
	}

	cmd.Flags().StringVar(&baseDockerfile, "base-dockerfile", "", "path to the base Dockerfile for the combined image")
	return cmd
}

// composeRun aggregates a run's tool manifests into the shared prerequisite
// script and assembles the combined build context. Used both by the compose
// subcommand and by `run --compose`.
func composeRun(runDir, baseDockerfile string, log zerolog.Logger) error {
	manifests, err := shareddeps.FromDir(filepath.Join(runDir, "tools"), log)
	if err != nil {
		return err
	}
	if len(manifests) == 0 {
		return fmt.Errorf("no tool manifests found under %s", runDir)
	}

	agg := shareddeps.Aggregate(manifests)
	sharedDir := filepath.Join(runDir, "shared")
	if err := os.MkdirAll(sharedDir, 0o755); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(sharedDir, "shared_manifest.json"), agg); err != nil {
		return err
	}
	script := shareddeps.Script(agg)
	if err := os.WriteFile(filepath.Join(sharedDir, "shared_setup.sh"), []byte(script), 0o755); err != nil {
		return err
	}

	result, err := compose.New(runDir, baseDockerfile).Compose()
	if err != nil {
		return err
	}
	log.Info().
		Int("tools", len(result.ToolNames)).
		Str("context", result.ContextDir).
		Msg("combined context assembled")
	return nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
