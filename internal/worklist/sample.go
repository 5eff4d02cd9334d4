// SPDX-License-Identifier: AGPL-3.0-or-later

package worklist

import (
	"github.com/rs/zerolog"

	"github.com/bartekus/toolforge/internal/model"
)

// SampleSource is an in-memory worklist for offline runs and smoke tests.
// Status updates are logged, not persisted.
type SampleSource struct {
	log zerolog.Logger
}

// NewSampleSource returns a source preloaded with a small tool set.
func NewSampleSource(log zerolog.Logger) *SampleSource {
	return &SampleSource{log: log}
}

func (s *SampleSource) ReadItems() ([]*model.Tool, error) {
	specs := []model.ToolSpec{
		{
			Name:           "terraform",
			Version:        "1.6.0",
			ValidateCmd:    "terraform version",
			Description:    "Infrastructure as Code tool",
			PackageManager: "direct",
		},
		{
			Name:           "kubectl",
			Version:        "1.28.0",
			ValidateCmd:    "kubectl version --client",
			Description:    "Kubernetes command-line tool",
			PackageManager: "direct",
		},
		{
			Name:           "helm",
			Version:        "3.13.0",
			ValidateCmd:    "helm version",
			Description:    "Kubernetes package manager",
			PackageManager: "direct",
		},
	}

	tools := make([]*model.Tool, 0, len(specs))
	for i, spec := range specs {
		tools = append(tools, model.NewTool(spec, i+2))
	}
	return tools, nil
}

func (s *SampleSource) UpdateStatus(tool *model.Tool, status model.Status, message, artifactPath string) error {
	s.log.Info().
		Str("tool", tool.ID).
		Str("status", string(status)).
		Str("message", message).
		Msg("sample worklist status update")
	return nil
}
