// SPDX-License-Identifier: AGPL-3.0-or-later

package shareddeps

import (
	"fmt"
	"strings"

	"github.com/bartekus/toolforge/internal/model"
)

// Script renders the shared prerequisite installer for an aggregated
// manifest. The script is a no-op when package lists are already cached,
// installs the whole apt set in one transaction, refreshes the dynamic
// linker cache, and exports aggregated PATH entries. It never purges the
// apt cache: multi-tool builds rely on a warm cache across steps.
func Script(agg model.AggregatedManifest) string {
	pkgs := stringSet{}
	pkgs.add(agg.Apt...)
	pkgs.add(RuntimePackages(agg.Runtimes)...)
	allApt := pkgs.sorted()

	var b strings.Builder
	b.WriteString("#!/usr/bin/env bash\n")
	b.WriteString("set -euo pipefail\n")
	b.WriteString("IFS=$'\\n\\t'\n\n")
	b.WriteString("log() {\n")
	b.WriteString("    echo \"[shared][$(date -u +'%Y-%m-%dT%H:%M:%SZ')] $*\"\n")
	b.WriteString("}\n\n")
	b.WriteString("ensure_root() {\n")
	b.WriteString("    if [ \"$(id -u)\" -ne 0 ]; then\n")
	b.WriteString("        log \"This script must run as root.\"\n")
	b.WriteString("        exit 1\n")
	b.WriteString("    fi\n")
	b.WriteString("}\n\n")
	b.WriteString("install_shared_dependencies() {\n")

	if len(allApt) > 0 {
		b.WriteString("    if [ ! -d /var/lib/apt/lists ] || [ -z \"$(ls -A /var/lib/apt/lists 2>/dev/null)\" ]; then\n")
		b.WriteString("        log \"Refreshing apt lists...\"\n")
		b.WriteString("        apt-get update -y\n")
		b.WriteString("    fi\n")
		fmt.Fprintf(&b, "    DEBIAN_FRONTEND=noninteractive apt-get install -y %s\n", strings.Join(allApt, " "))
		b.WriteString("    ldconfig\n")
	}

	for _, p := range agg.Env.Path {
		fmt.Fprintf(&b, "    export PATH=\"%s:$PATH\"\n", p)
	}
	if len(agg.Python) > 0 {
		fmt.Fprintf(&b, "    log \"Python-only libraries left to individual tools: %s\"\n",
			truncateList(agg.Python))
	}
	if len(agg.Unknown) > 0 {
		fmt.Fprintf(&b, "    log \"Unknown deps skipped in shared layer: %s\"\n",
			truncateList(agg.Unknown))
	}

	b.WriteString("    log \"Shared dependencies installed.\"\n")
	b.WriteString("}\n\n")
	b.WriteString("main() {\n")
	b.WriteString("    log \"Starting shared setup...\"\n")
	b.WriteString("    ensure_root\n")
	b.WriteString("    install_shared_dependencies\n")
	b.WriteString("    log \"Shared setup completed successfully.\"\n")
	b.WriteString("}\n\n")
	b.WriteString("main \"$@\"\n")
	return b.String()
}

// truncateList keeps log lines bounded when manifests declare many names.
func truncateList(items []string) string {
	s := strings.Join(items, ", ")
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
