// SPDX-License-Identifier: AGPL-3.0-or-later

// Package staticcheck runs the fixed battery of text and structural checks
// against a candidate installation script, without executing it.
//
// Every check always runs; a single report captures every defect class.
// Checks that depend on optional host tooling report skipped, never failed.
package staticcheck

import (
	"context"
	"os"
	"time"

	"github.com/bartekus/toolforge/internal/model"
)

// Check is one step of the static battery.
type Check interface {
	// Name is the step identifier recorded in results (e.g. "safety_flags").
	Name() string

	// Run inspects the script at path with the given content preloaded.
	Run(ctx context.Context, path, content string) model.ValidationResult
}

// Validator runs the ordered battery. The order is part of the artifact
// contract: downstream reports index results by position as well as step name.
type Validator struct {
	checks []Check
}

// NewValidator builds the canonical battery.
func NewValidator() *Validator {
	return &Validator{
		checks: []Check{
			&ShebangCheck{},
			&SafetyFlagsCheck{},
			&SyntaxCheck{},
			&ShellcheckCheck{},
			&IdempotencyCheck{},
			&SecretsCheck{},
		},
	}
}

// Validate runs every check against the script at path and returns the
// ordered results. It never short-circuits: a script missing its shebang
// still gets its syntax and secret scan reported.
func (v *Validator) Validate(ctx context.Context, path string) []model.ValidationResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return []model.ValidationResult{{
			Step:   "file_check",
			Status: model.ValidationFailed,
			Error:  "script not readable: " + err.Error(),
		}}
	}

	content := string(data)
	results := make([]model.ValidationResult, 0, len(v.checks))
	for _, c := range v.checks {
		start := time.Now()
		res := c.Run(ctx, path, content)
		res.Step = c.Name()
		res.DurationSeconds = time.Since(start).Seconds()
		results = append(results, res)
	}
	return results
}
