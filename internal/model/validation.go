// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// ValidationStatus is the outcome of a single validation step.
type ValidationStatus string

const (
	ValidationPassed  ValidationStatus = "passed"
	ValidationFailed  ValidationStatus = "failed"
	ValidationSkipped ValidationStatus = "skipped"
)

// ValidationResult records one static or dynamic check outcome.
// Matches the per-tool validation.json artifact schema.
type ValidationResult struct {
	Step            string           `json:"step"`
	Status          ValidationStatus `json:"status"`
	Output          string           `json:"output,omitempty"`
	Error           string           `json:"error,omitempty"`
	DurationSeconds float64          `json:"duration_seconds,omitempty"`
}

// AnyFailed reports whether any non-skipped result failed.
// Skipped steps never block progress.
func AnyFailed(results []ValidationResult) bool {
	for _, r := range results {
		if r.Status == ValidationFailed {
			return true
		}
	}
	return false
}

// InstallationResult is the complete per-tool record persisted at the end
// of a job, whatever its outcome.
type InstallationResult struct {
	ToolID              string             `json:"tool_id"`
	ToolName            string             `json:"tool_name"`
	ToolVersion         string             `json:"tool_version"`
	Success             bool               `json:"success"`
	ScriptPath          string             `json:"script_path,omitempty"`
	StaticValidation    []ValidationResult `json:"static_validation,omitempty"`
	ContainerValidation *ValidationResult  `json:"container_validation,omitempty"`
	BaseImage           string             `json:"base_image,omitempty"`
	StartedAt           time.Time          `json:"started_at"`
	CompletedAt         time.Time          `json:"completed_at,omitempty"`
	DurationSeconds     float64            `json:"duration_seconds,omitempty"`
}

// Complete stamps the result with its final outcome and duration.
func (r *InstallationResult) Complete(success bool) {
	r.Success = success
	r.CompletedAt = time.Now().UTC()
	if !r.StartedAt.IsZero() {
		r.DurationSeconds = r.CompletedAt.Sub(r.StartedAt).Seconds()
	}
}
