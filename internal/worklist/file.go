// SPDX-License-Identifier: AGPL-3.0-or-later

package worklist

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/bartekus/toolforge/internal/model"
)

// fileDoc is the on-disk shape of a YAML worklist.
type fileDoc struct {
	Tools []fileRow `yaml:"tools"`
}

type fileRow struct {
	model.ToolSpec `yaml:",inline"`
	Status         string `yaml:"status,omitempty"`
	Message        string `yaml:"message,omitempty"`
	ArtifactPath   string `yaml:"artifact_path,omitempty"`
}

// FileSource is a YAML-file work list. Each entry is one row; UpdateStatus
// rewrites only that row's status fields. A mutex serializes file rewrites
// since concurrent jobs share the one file even though their rows are
// disjoint.
type FileSource struct {
	path string
	mu   sync.Mutex
}

// NewFileSource opens a worklist at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// ReadItems parses the file into jobs. Row numbers are 1-based positions
// in the tools list so updates can address entries stably.
func (s *FileSource) ReadItems() ([]*model.Tool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	tools := make([]*model.Tool, 0, len(doc.Tools))
	for i, row := range doc.Tools {
		if row.Name == "" {
			continue
		}
		t := model.NewTool(row.ToolSpec, i+1)
		t.Status = model.ParseStatus(row.Status)
		t.ErrorMessage = row.Message
		t.ArtifactPath = row.ArtifactPath
		tools = append(tools, t)
	}
	return tools, nil
}

// UpdateStatus rewrites the row addressed by the tool's row number.
func (s *FileSource) UpdateStatus(tool *model.Tool, status model.Status, message, artifactPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	idx := tool.Row - 1
	if idx < 0 || idx >= len(doc.Tools) {
		return fmt.Errorf("worklist row %d out of range", tool.Row)
	}

	doc.Tools[idx].Status = string(status)
	if message != "" {
		doc.Tools[idx].Message = message
	}
	if artifactPath != "" {
		doc.Tools[idx].ArtifactPath = artifactPath
	}
	return s.save(doc)
}

func (s *FileSource) load() (*fileDoc, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading worklist: %w", err)
	}
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing worklist: %w", err)
	}
	return &doc, nil
}

func (s *FileSource) save(doc *fileDoc) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding worklist: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing worklist: %w", err)
	}
	return nil
}
