// SPDX-License-Identifier: AGPL-3.0-or-later

// Package agent defines the script-authoring collaborator: an opaque
// service that, given a tool specification and the standards documents,
// returns shell-script text plus a dependency manifest. Its internal
// reasoning is not modeled here.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bartekus/toolforge/internal/model"
	"github.com/bartekus/toolforge/internal/staticcheck"
)

// Docs bundles the operator-provided documents the agent writes against.
type Docs struct {
	InstallStandards    string
	BaseDockerfile      string
	AcceptanceChecklist string
}

// SelfReviewItem is one checklist entry from the agent's own review.
type SelfReviewItem struct {
	Criterion   string `json:"criterion"`
	Passed      bool   `json:"passed"`
	Explanation string `json:"explanation"`
}

// SelfReview is the agent's assessment of its own output.
type SelfReview struct {
	Checklist         []SelfReviewItem `json:"checklist"`
	Blockers          []string         `json:"blockers,omitempty"`
	Warnings          []string         `json:"warnings,omitempty"`
	OverallConfidence float64          `json:"overall_confidence"`
}

// Result is the structured envelope an authoring agent returns.
type Result struct {
	Plan       []string                 `json:"plan"`
	ScriptBash string                   `json:"script_bash"`
	Manifest   model.DependencyManifest `json:"manifest"`
	SelfReview SelfReview               `json:"self_review"`
}

// Blocked reports whether the agent flagged blocking issues. A blocked
// result is a generation failure; validators are never invoked on it.
func (r *Result) Blocked() bool {
	return len(r.SelfReview.Blockers) > 0
}

// Author generates installation scripts.
type Author interface {
	Generate(ctx context.Context, spec model.ToolSpec, docs Docs) (*Result, error)
}

// ErrUnparsable marks an agent reply that could not be decoded into the
// envelope. Terminal for the job, no retry inside a run.
var ErrUnparsable = errors.New("agent returned an unparsable result")

// ParseEnvelope decodes the agent's reply. Replies wrapped in markdown
// code fences are tolerated since models add them routinely. The script
// must carry the required shebang and safety flags up front; rejecting
// malformed scripts here keeps garbage out of the artifact store.
func ParseEnvelope(raw string) (*Result, error) {
	payload := stripFences(raw)

	var res Result
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	if len(res.Plan) == 0 {
		return nil, fmt.Errorf("%w: empty plan", ErrUnparsable)
	}
	if !strings.HasPrefix(strings.TrimSpace(res.ScriptBash), staticcheck.RequiredShebang) {
		return nil, fmt.Errorf("%w: script missing required shebang", ErrUnparsable)
	}
	if !strings.Contains(res.ScriptBash, staticcheck.RequiredSafetyFlags) {
		return nil, fmt.Errorf("%w: script missing safety flags", ErrUnparsable)
	}
	return &res, nil
}

// stripFences removes a single leading/trailing markdown code fence pair.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
