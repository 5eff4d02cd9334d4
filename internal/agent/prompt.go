// SPDX-License-Identifier: AGPL-3.0-or-later

package agent

import (
	"fmt"
	"strings"

	"github.com/bartekus/toolforge/internal/model"
)

func systemPrompt(docs Docs) string {
	var b strings.Builder
	b.WriteString("You write idempotent bash installation scripts for command-line tools.\n")
	b.WriteString("Reply with a single JSON object, no prose, matching this schema:\n")
	b.WriteString(`{"plan": ["step", ...], "script_bash": "...", ` +
		`"manifest": {"prerequisites": {"apt": [], "runtimes": [], "libs": [], "services": []}, ` +
		`"env_exports": {"PATH": []}, "validate_cmd": "...", "requires_compilation": false}, ` +
		`"self_review": {"checklist": [{"criterion": "...", "passed": true, "explanation": "..."}], ` +
		`"blockers": [], "warnings": [], "overall_confidence": 0.0}}` + "\n\n")
	b.WriteString("The script must start with '#!/usr/bin/env bash', include 'set -euo pipefail', ")
	b.WriteString("check whether the tool is already installed before installing, and accept a ")
	b.WriteString("--skip-prereqs flag that skips shared system package installation.\n")
	b.WriteString("List anything you cannot resolve under self_review.blockers.\n")

	if docs.InstallStandards != "" {
		b.WriteString("\n## Installation standards\n")
		b.WriteString(docs.InstallStandards)
		b.WriteString("\n")
	}
	if docs.BaseDockerfile != "" {
		b.WriteString("\n## Target base image\n")
		b.WriteString(docs.BaseDockerfile)
		b.WriteString("\n")
	}
	if docs.AcceptanceChecklist != "" {
		b.WriteString("\n## Acceptance checklist\n")
		b.WriteString(docs.AcceptanceChecklist)
		b.WriteString("\n")
	}
	return b.String()
}

func userPrompt(spec model.ToolSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write an installation script for %s version %s.\n", spec.Name, spec.Version)
	fmt.Fprintf(&b, "Validation command: %s\n", spec.ValidateCmd)
	if spec.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", spec.Description)
	}
	if spec.PackageManager != "" {
		fmt.Fprintf(&b, "Preferred package manager: %s\n", spec.PackageManager)
	}
	if spec.RepositoryURL != "" {
		fmt.Fprintf(&b, "Repository: %s\n", spec.RepositoryURL)
	}
	if spec.GPGKeyURL != "" {
		fmt.Fprintf(&b, "GPG key: %s\n", spec.GPGKeyURL)
	}
	if len(spec.Dependencies) > 0 {
		fmt.Fprintf(&b, "Declared dependencies: %s\n", strings.Join(spec.Dependencies, ", "))
	}
	if len(spec.PostInstallSteps) > 0 {
		fmt.Fprintf(&b, "Post-install steps: %s\n", strings.Join(spec.PostInstallSteps, "; "))
	}
	return b.String()
}
