// SPDX-License-Identifier: AGPL-3.0-or-later

package shareddeps

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/bartekus/toolforge/internal/artifact"
	"github.com/bartekus/toolforge/internal/model"
)

// FromDir collects every tool manifest under a run's tools directory.
// Unreadable or malformed manifests are logged and skipped so one bad tool
// does not block shared aggregation for the rest.
func FromDir(toolsDir string, log zerolog.Logger) ([]model.DependencyManifest, error) {
	entries, err := os.ReadDir(toolsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading tools dir: %w", err)
	}

	var manifests []model.DependencyManifest
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(toolsDir, e.Name(), artifact.ManifestName)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var m model.DependencyManifest
		if err := json.Unmarshal(data, &m); err != nil {
			log.Warn().Str("manifest", path).Err(err).Msg("skipping malformed manifest")
			continue
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}
