// SPDX-License-Identifier: AGPL-3.0-or-later

package staticcheck

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/bartekus/toolforge/internal/model"
)

// RequiredShebang is the exact interpreter invocation every generated
// script must open with.
const RequiredShebang = "#!/usr/bin/env bash"

// RequiredSafetyFlags enables exit-on-error, unset-variable, and
// pipe-failure propagation together.
const RequiredSafetyFlags = "set -euo pipefail"

// ShebangCheck verifies the first line is exactly the required interpreter.
type ShebangCheck struct{}

func (c *ShebangCheck) Name() string { return "shebang_check" }

func (c *ShebangCheck) Run(_ context.Context, _, content string) model.ValidationResult {
	first, _, _ := strings.Cut(content, "\n")
	if strings.TrimRight(first, "\r") == RequiredShebang {
		return model.ValidationResult{Status: model.ValidationPassed, Output: "correct shebang found"}
	}
	return model.ValidationResult{
		Status: model.ValidationFailed,
		Error:  fmt.Sprintf("invalid shebang: %q", first),
	}
}

// SafetyFlagsCheck verifies the fail-fast directive is present.
type SafetyFlagsCheck struct{}

func (c *SafetyFlagsCheck) Name() string { return "safety_flags" }

func (c *SafetyFlagsCheck) Run(_ context.Context, _, content string) model.ValidationResult {
	if strings.Contains(content, RequiredSafetyFlags) {
		return model.ValidationResult{Status: model.ValidationPassed, Output: "safety flags present"}
	}
	return model.ValidationResult{
		Status: model.ValidationFailed,
		Error:  "missing '" + RequiredSafetyFlags + "'",
	}
}

// SyntaxCheck runs the shell's syntax-only parse mode (bash -n).
type SyntaxCheck struct{}

func (c *SyntaxCheck) Name() string { return "bash_syntax" }

func (c *SyntaxCheck) Run(ctx context.Context, path, _ string) model.ValidationResult {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-n", path)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return model.ValidationResult{Status: model.ValidationFailed, Error: "syntax check timed out"}
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "syntax error"
		}
		return model.ValidationResult{Status: model.ValidationFailed, Error: msg}
	}
	return model.ValidationResult{Status: model.ValidationPassed, Output: "syntax check passed"}
}

// ShellcheckCheck lints with shellcheck when it is installed on the host.
// Absence is a skip, not a failure: the pipeline must not hard-require
// optional tooling. Error-level findings fail; pure warnings pass.
type ShellcheckCheck struct{}

func (c *ShellcheckCheck) Name() string { return "shellcheck" }

func (c *ShellcheckCheck) Run(ctx context.Context, path, _ string) model.ValidationResult {
	if _, err := exec.LookPath("shellcheck"); err != nil {
		return model.ValidationResult{Status: model.ValidationSkipped, Output: "shellcheck not available"}
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "shellcheck", "-x", "-f", "gcc", path).CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return model.ValidationResult{Status: model.ValidationFailed, Error: "shellcheck timed out"}
	}
	if err == nil {
		return model.ValidationResult{Status: model.ValidationPassed, Output: "no issues found"}
	}

	var issues []string
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) != "" {
			issues = append(issues, line)
		}
	}
	errorCount := 0
	for _, line := range issues {
		if strings.Contains(line, ":error:") {
			errorCount++
		}
	}
	if errorCount == 0 {
		return model.ValidationResult{
			Status: model.ValidationPassed,
			Output: fmt.Sprintf("warnings only: %d issues", len(issues)),
		}
	}
	if len(issues) > 10 {
		issues = issues[:10]
	}
	return model.ValidationResult{
		Status: model.ValidationFailed,
		Error:  fmt.Sprintf("%d errors found", errorCount),
		Output: strings.Join(issues, "\n"),
	}
}

// idempotencyPatterns are "already installed?" guards. At least one must
// appear so the script is safely re-runnable.
var idempotencyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)if.*command -v`),
	regexp.MustCompile(`(?i)if.*test -f`),
	regexp.MustCompile(`(?i)if.*\[.*-f`),
	regexp.MustCompile(`(?i)dpkg -l.*grep`),
	regexp.MustCompile(`(?i)which`),
	regexp.MustCompile(`(?i)command -v`),
}

// IdempotencyCheck requires at least one installed-already guard pattern.
type IdempotencyCheck struct{}

func (c *IdempotencyCheck) Name() string { return "idempotency_check" }

func (c *IdempotencyCheck) Run(_ context.Context, _, content string) model.ValidationResult {
	var found []string
	for _, p := range idempotencyPatterns {
		if p.MatchString(content) {
			found = append(found, p.String())
		}
	}
	if len(found) > 0 {
		return model.ValidationResult{
			Status: model.ValidationPassed,
			Output: "found idempotency patterns: " + strings.Join(found, ", "),
		}
	}
	return model.ValidationResult{
		Status: model.ValidationFailed,
		Error:  "no idempotency patterns found",
		Output: "script should check if the tool is already installed",
	}
}

// secretPatterns flag embedded credentials, keys, and long base64 blobs
// before they can leak into stored artifacts.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret[_-]?key|password|passwd|pwd)\s*=\s*["']?[^"'\s]+`),
	regexp.MustCompile(`(?i)(token|auth[_-]?token|access[_-]?token)\s*=\s*["']?[^"'\s]+`),
	regexp.MustCompile(`-----BEGIN (RSA |DSA |EC |OPENSSH )?PRIVATE KEY-----`),
	regexp.MustCompile(`[a-zA-Z0-9+/]{40,}={0,2}`),
}

// SecretsCheck fails on any credential-looking match.
type SecretsCheck struct{}

func (c *SecretsCheck) Name() string { return "secrets_check" }

func (c *SecretsCheck) Run(_ context.Context, _, content string) model.ValidationResult {
	matches := 0
	for _, p := range secretPatterns {
		matches += len(p.FindAllString(content, -1))
	}
	if matches > 0 {
		return model.ValidationResult{
			Status: model.ValidationFailed,
			Error:  "potential secrets found",
			Output: fmt.Sprintf("found %d potential secrets", matches),
		}
	}
	return model.ValidationResult{Status: model.ValidationPassed, Output: "no secrets detected"}
}
