// SPDX-License-Identifier: AGPL-3.0-or-later

package dockerrun

import (
	"fmt"
	"regexp"

	"github.com/bartekus/toolforge/internal/artifact"
	"github.com/bartekus/toolforge/internal/model"
)

// Dockerfile renders the single-tool validation image definition: copy the
// script in, mark it executable, stamp the tool identity as environment
// metadata, run the installer, then run the validation command as the last
// build action so a failed install fails the build.
func Dockerfile(baseImage string, spec model.ToolSpec) string {
	return fmt.Sprintf(`FROM %s

COPY %s /tmp/%s
RUN chmod +x /tmp/%s

ENV DEBIAN_FRONTEND=noninteractive
ENV TOOL_NAME=%s
ENV TOOL_VERSION=%s

RUN /tmp/%s

RUN %s

CMD ["/bin/bash"]
`, baseImage,
		artifact.ScriptName, artifact.ScriptName, artifact.ScriptName,
		spec.Name, spec.Version,
		artifact.ScriptName,
		spec.ValidateCmd)
}

var versionPatterns = []string{
	`[vV]ersion[:\s]+(\d+\.\d+\.\d+)`,
	`(\d+\.\d+\.\d+)`,
}

// ExtractVersion is a best-effort heuristic that confirms the installed
// version string against the requested one. It only annotates the result;
// a mismatch never fails validation.
func ExtractVersion(output string, spec model.ToolSpec) string {
	patterns := append([]string{
		regexp.QuoteMeta(spec.Name) + `[:\s]+(\d+\.\d+\.\d+)`,
	}, versionPatterns...)

	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		m := re.FindStringSubmatch(output)
		if len(m) < 2 {
			continue
		}
		if m[1] == spec.Version {
			return "version verified: " + m[1]
		}
		return fmt.Sprintf("version mismatch: expected %s, got %s", spec.Version, m[1])
	}
	return "version not detected in output"
}
