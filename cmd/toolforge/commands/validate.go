// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bartekus/toolforge/cmd/toolforge/internal/clierr"
	"github.com/bartekus/toolforge/internal/model"
	"github.com/bartekus/toolforge/internal/staticcheck"
)

func newValidateCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "validate <script>",
		Short: "Run the static check battery against a script",
		Long: `Run every static check (shebang, safety flags, bash syntax, shellcheck,
idempotency patterns, secret scan) against one script and report the
results. The container stage is not run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := staticcheck.NewValidator().Validate(cmd.Context(), args[0])

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				printResults(cmd, results)
			}

			if model.AnyFailed(results) {
				return clierr.Newf(1, "static validation failed for %s", args[0])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit results as JSON")
	return cmd
}

func printResults(cmd *cobra.Command, results []model.ValidationResult) {
	out := cmd.OutOrStdout()
	for _, r := range results {
		mark := "ok"
		switch r.Status {
		case model.ValidationFailed:
			mark = "FAIL"
		case model.ValidationSkipped:
			mark = "skip"
		}
		_, _ = fmt.Fprintf(out, "%-22s %s", r.Step, mark)
		if r.Error != "" {
			_, _ = fmt.Fprintf(out, "  %s", r.Error)
		}
		_, _ = fmt.Fprintln(out)
	}
}
