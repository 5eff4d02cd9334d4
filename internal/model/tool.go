// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// ToolSpec is the immutable description of a tool to install, as read from
// the worklist. Every pipeline stage consumes it read-only.
type ToolSpec struct {
	Name             string   `json:"name" yaml:"name"`
	Version          string   `json:"version" yaml:"version"`
	ValidateCmd      string   `json:"validate_cmd" yaml:"validate_cmd"`
	Description      string   `json:"description,omitempty" yaml:"description,omitempty"`
	PackageManager   string   `json:"package_manager,omitempty" yaml:"package_manager,omitempty"`
	RepositoryURL    string   `json:"repository_url,omitempty" yaml:"repository_url,omitempty"`
	GPGKeyURL        string   `json:"gpg_key_url,omitempty" yaml:"gpg_key_url,omitempty"`
	Dependencies     []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	PostInstallSteps []string `json:"post_install_steps,omitempty" yaml:"post_install_steps,omitempty"`
}

// ID returns the canonical job identifier for the spec.
func (s ToolSpec) ID() string {
	return s.Name + "-" + s.Version
}

// Tool wraps a ToolSpec with the mutable state of one installation job.
// Exactly one Tool exists per worklist row per run.
type Tool struct {
	ID           string    `json:"id"`
	Spec         ToolSpec  `json:"spec"`
	Status       Status    `json:"status"`
	Row          int       `json:"row,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ArtifactPath string    `json:"artifact_path,omitempty"`
}

// NewTool builds a pending job for the given spec and worklist row.
func NewTool(spec ToolSpec, row int) *Tool {
	now := time.Now().UTC()
	return &Tool{
		ID:        spec.ID(),
		Spec:      spec,
		Status:    StatusPending,
		Row:       row,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetStatus moves the job to a new status, enforcing the state machine.
func (t *Tool) SetStatus(to Status) error {
	next, err := Transition(t.Status, to)
	if err != nil {
		return err
	}
	t.Status = next
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail moves the job to failed and records a truncated error message.
func (t *Tool) Fail(msg string) {
	t.Status = StatusFailed
	t.ErrorMessage = TruncateError(msg)
	t.UpdatedAt = time.Now().UTC()
}

// maxErrorLen bounds the error summary persisted to the worklist.
const maxErrorLen = 200

// TruncateError shortens an error message to the worklist cell budget.
func TruncateError(msg string) string {
	if len(msg) <= maxErrorLen {
		return msg
	}
	return msg[:maxErrorLen]
}

// RunSummary is the aggregate outcome of one orchestrator run.
type RunSummary struct {
	RunID           string  `json:"run_id"`
	TotalTools      int     `json:"total_tools"`
	Processed       int     `json:"processed"`
	Successful      int     `json:"successful"`
	Failed          int     `json:"failed"`
	DurationSeconds float64 `json:"duration_seconds"`
}
