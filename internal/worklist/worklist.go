// SPDX-License-Identifier: AGPL-3.0-or-later

// Package worklist reads the row-based work list that drives a run and
// writes per-row status back. The pipeline consumes it through the Source
// interface; status-write failures are reported but never fatal.
package worklist

import (
	"github.com/bartekus/toolforge/internal/model"
)

// Source is the narrow interface the orchestrator depends on.
type Source interface {
	// ReadItems returns one job per worklist row.
	ReadItems() ([]*model.Tool, error)

	// UpdateStatus persists a row's status, optional message, and optional
	// artifact path. Implementations must scope the write to the one row.
	UpdateStatus(tool *model.Tool, status model.Status, message, artifactPath string) error
}
