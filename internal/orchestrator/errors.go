// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import "fmt"

// Stage names the pipeline step where a job error occurred.
type Stage string

const (
	StageGenerate Stage = "generate"
	StageStatic   Stage = "static_validation"
	StageDynamic  Stage = "container_validation"
	StagePersist  Stage = "persist"
)

// StageError is a terminal job error tagged with its stage. It is caught
// at the job boundary and converted into a failed status; it never crosses
// to sibling jobs.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, format string, args ...any) *StageError {
	return &StageError{Stage: stage, Err: fmt.Errorf(format, args...)}
}
