// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model defines the core data types shared by the toolforge pipeline:
// tool specifications, job status, validation results, and dependency manifests.
package model

import "fmt"

// Status is the lifecycle state of a tool installation job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusGenerating Status = "generating"
	StatusValidating Status = "validating"
	StatusInstalling Status = "installing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// IsTerminal reports whether the status is final for a run.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// ParseStatus maps a raw string to a Status, defaulting to pending for
// unknown or empty values (worklist cells are free text).
func ParseStatus(raw string) Status {
	switch Status(raw) {
	case StatusPending, StatusInProgress, StatusGenerating, StatusValidating,
		StatusInstalling, StatusCompleted, StatusFailed, StatusSkipped:
		return Status(raw)
	default:
		return StatusPending
	}
}

// allowed enumerates the forward transitions of the job state machine.
// failed -> pending exists so an operator can re-queue a tool between runs;
// the pipeline itself never walks that edge.
var allowed = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusSkipped},
	StatusInProgress: {StatusGenerating, StatusFailed, StatusSkipped},
	StatusGenerating: {StatusValidating, StatusFailed},
	StatusValidating: {StatusInstalling, StatusCompleted, StatusFailed},
	StatusInstalling: {StatusCompleted, StatusFailed},
	StatusFailed:     {StatusPending},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates and returns the new status, or an error naming the
// illegal edge. Callers persist the returned status only on success.
func Transition(from, to Status) (Status, error) {
	if !CanTransition(from, to) {
		return from, fmt.Errorf("illegal status transition: %s -> %s", from, to)
	}
	return to, nil
}
