// SPDX-License-Identifier: AGPL-3.0-or-later

package dockerrun

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartekus/toolforge/internal/model"
)

// stubDocker writes a fake docker binary whose behavior per subcommand is
// given as a shell case body.
func stubDocker(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stub requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "docker")
	content := "#!/usr/bin/env bash\ncase \"$1\" in\n" + script + "\nesac\nexit 0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755))
	return path
}

// loggingStubDocker is stubDocker plus an invocation log, so tests can
// assert which docker commands ran and in what order.
func loggingStubDocker(t *testing.T, script string) (bin, logPath string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stub requires a POSIX shell")
	}
	dir := t.TempDir()
	bin = filepath.Join(dir, "docker")
	logPath = filepath.Join(dir, "calls.log")
	content := "#!/usr/bin/env bash\necho \"$@\" >> " + logPath + "\ncase \"$1\" in\n" + script + "\nesac\nexit 0\n"
	require.NoError(t, os.WriteFile(bin, []byte(content), 0o755))
	return bin, logPath
}

func dockerCalls(t *testing.T, logPath string) string {
	t.Helper()
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	return string(data)
}

func testConfig(t *testing.T, dockerBin string) Config {
	cfg := DefaultConfig()
	cfg.DockerBin = dockerBin
	cfg.BuildTimeout = 30 * time.Second
	cfg.RunTimeout = 30 * time.Second
	return cfg
}

func writeInstallScript(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool_setup.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/usr/bin/env bash\nset -euo pipefail\n"), 0o755))
	return path
}

func TestNewRunner_DaemonUnreachable(t *testing.T) {
	bin := stubDocker(t, "info) exit 1 ;;")
	_, err := NewRunner(testConfig(t, bin), zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon not accessible")
}

func TestNewRunner_BinaryMissing(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "no-such-docker"))
	_, err := NewRunner(cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRunner_RunInstallation_Success(t *testing.T) {
	bin := stubDocker(t, `
  run) echo "terraform 1.6.0" ;;`)
	r, err := NewRunner(testConfig(t, bin), zerolog.Nop())
	require.NoError(t, err)

	spec := model.ToolSpec{Name: "terraform", Version: "1.6.0", ValidateCmd: "terraform version"}
	res := r.RunInstallation(context.Background(), writeInstallScript(t), spec, "")

	assert.Equal(t, "docker_validation", res.Step)
	assert.Equal(t, model.ValidationPassed, res.Status)
	assert.Contains(t, res.Output, "tool installed successfully")
	assert.Contains(t, res.Output, "version verified: 1.6.0")
}

func TestRunner_RunInstallation_BuildFails(t *testing.T) {
	bin := stubDocker(t, `
  build) echo "E: Unable to locate package" >&2; exit 1 ;;`)
	r, err := NewRunner(testConfig(t, bin), zerolog.Nop())
	require.NoError(t, err)

	spec := model.ToolSpec{Name: "jq", Version: "1.7", ValidateCmd: "jq --version"}
	res := r.RunInstallation(context.Background(), writeInstallScript(t), spec, "")

	assert.Equal(t, "docker_build", res.Step)
	assert.Equal(t, model.ValidationFailed, res.Status)
	assert.Equal(t, "failed to build Docker image", res.Error)
	assert.Contains(t, res.Output, "Unable to locate package")
}

func TestRunner_RunInstallation_ValidationFails(t *testing.T) {
	bin := stubDocker(t, `
  run) echo "command not found" >&2; exit 127 ;;`)
	r, err := NewRunner(testConfig(t, bin), zerolog.Nop())
	require.NoError(t, err)

	spec := model.ToolSpec{Name: "jq", Version: "1.7", ValidateCmd: "jq --version"}
	res := r.RunInstallation(context.Background(), writeInstallScript(t), spec, "")

	assert.Equal(t, "docker_validation", res.Step)
	assert.Equal(t, model.ValidationFailed, res.Status)
	assert.Contains(t, res.Error, "validation command failed")
	assert.Contains(t, res.Output, "STDOUT:")
	assert.Contains(t, res.Output, "STDERR:")
	assert.Contains(t, res.Output, "command not found")
}

func TestRunner_RunInstallation_BuildTimeout(t *testing.T) {
	bin := stubDocker(t, `
  build) sleep 5 ;;`)
	cfg := testConfig(t, bin)
	cfg.BuildTimeout = 200 * time.Millisecond
	r, err := NewRunner(cfg, zerolog.Nop())
	require.NoError(t, err)

	spec := model.ToolSpec{Name: "jq", Version: "1.7", ValidateCmd: "jq --version"}
	res := r.RunInstallation(context.Background(), writeInstallScript(t), spec, "")

	assert.Equal(t, "docker_build", res.Step)
	assert.Equal(t, model.ValidationFailed, res.Status)
	assert.Equal(t, "build timed out after 0 seconds", res.Error)
}

func TestRunner_RunInstallation_MissingScript(t *testing.T) {
	bin := stubDocker(t, "")
	r, err := NewRunner(testConfig(t, bin), zerolog.Nop())
	require.NoError(t, err)

	spec := model.ToolSpec{Name: "jq", Version: "1.7", ValidateCmd: "jq --version"}
	res := r.RunInstallation(context.Background(), filepath.Join(t.TempDir(), "missing.sh"), spec, "")

	assert.Equal(t, model.ValidationFailed, res.Status)
	assert.Contains(t, res.Error, "reading script")
}

func TestRunner_CleanupAfterSuccess(t *testing.T) {
	bin, logPath := loggingStubDocker(t, `
  run) echo "jq 1.7" ;;`)
	r, err := NewRunner(testConfig(t, bin), zerolog.Nop())
	require.NoError(t, err)

	spec := model.ToolSpec{Name: "jq", Version: "1.7", ValidateCmd: "jq --version"}
	res := r.RunInstallation(context.Background(), writeInstallScript(t), spec, "")
	require.Equal(t, model.ValidationPassed, res.Status)

	calls := dockerCalls(t, logPath)
	assert.Contains(t, calls, "rm -f tool-install-jq-")
	assert.Contains(t, calls, "rmi tool-install-jq-")
}

func TestRunner_CleanupAfterBuildFailure(t *testing.T) {
	bin, logPath := loggingStubDocker(t, `
  build) echo "broken layer" >&2; exit 1 ;;`)
	r, err := NewRunner(testConfig(t, bin), zerolog.Nop())
	require.NoError(t, err)

	spec := model.ToolSpec{Name: "jq", Version: "1.7", ValidateCmd: "jq --version"}
	res := r.RunInstallation(context.Background(), writeInstallScript(t), spec, "")
	require.Equal(t, model.ValidationFailed, res.Status)

	// The failed attempt still removes its container and image.
	calls := dockerCalls(t, logPath)
	assert.Contains(t, calls, "rm -f tool-install-jq-")
	assert.Contains(t, calls, "rmi tool-install-jq-")
}

func TestRunner_CleanupAfterRunTimeout(t *testing.T) {
	bin, logPath := loggingStubDocker(t, `
  run) exec sleep 3 ;;`)
	cfg := testConfig(t, bin)
	cfg.RunTimeout = 200 * time.Millisecond
	r, err := NewRunner(cfg, zerolog.Nop())
	require.NoError(t, err)

	spec := model.ToolSpec{Name: "jq", Version: "1.7", ValidateCmd: "jq --version"}
	res := r.RunInstallation(context.Background(), writeInstallScript(t), spec, "")
	require.Equal(t, model.ValidationFailed, res.Status)
	assert.Contains(t, res.Error, "timed out")

	calls := dockerCalls(t, logPath)
	assert.Contains(t, calls, "rm -f tool-install-jq-")
	assert.Contains(t, calls, "rmi tool-install-jq-")
}

func TestRunner_CleanupIdempotent(t *testing.T) {
	// rm/rmi failing (nothing left to remove) must stay silent, so a
	// second cleanup of the same names is harmless.
	bin, logPath := loggingStubDocker(t, `
  rm|rmi) exit 1 ;;`)
	r, err := NewRunner(testConfig(t, bin), zerolog.Nop())
	require.NoError(t, err)

	r.cleanup("tool-install-jq-1", "tool-install-jq-1:latest")
	r.cleanup("tool-install-jq-1", "tool-install-jq-1:latest")

	calls := strings.Count(dockerCalls(t, logPath), "\n")
	// info probe + two rm + two rmi.
	assert.Equal(t, 5, calls)
}

func TestRunner_CleanupDisabled(t *testing.T) {
	bin, logPath := loggingStubDocker(t, `
  run) echo "jq 1.7" ;;`)
	cfg := testConfig(t, bin)
	cfg.CleanupContainers = false
	r, err := NewRunner(cfg, zerolog.Nop())
	require.NoError(t, err)

	spec := model.ToolSpec{Name: "jq", Version: "1.7", ValidateCmd: "jq --version"}
	_ = r.RunInstallation(context.Background(), writeInstallScript(t), spec, "")

	calls := dockerCalls(t, logPath)
	assert.NotContains(t, calls, "rm -f")
	assert.NotContains(t, calls, "rmi")
}

func TestContainerName_Unique(t *testing.T) {
	a := ContainerName("terraform", time.Unix(0, 1))
	b := ContainerName("terraform", time.Unix(0, 2))
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "tool-install-terraform-"))
}

func TestDockerfile(t *testing.T) {
	spec := model.ToolSpec{Name: "helm", Version: "3.13.0", ValidateCmd: "helm version --short"}
	df := Dockerfile("ubuntu:22.04", spec)

	assert.True(t, strings.HasPrefix(df, "FROM ubuntu:22.04\n"))
	assert.Contains(t, df, "COPY tool_setup.sh /tmp/tool_setup.sh")
	assert.Contains(t, df, "ENV DEBIAN_FRONTEND=noninteractive")
	assert.Contains(t, df, "ENV TOOL_NAME=helm")
	assert.Contains(t, df, "ENV TOOL_VERSION=3.13.0")
	assert.Contains(t, df, "RUN /tmp/tool_setup.sh")
	assert.Contains(t, df, "RUN helm version --short")
	assert.True(t, strings.HasSuffix(df, "CMD [\"/bin/bash\"]\n"))
}

func TestExtractVersion(t *testing.T) {
	spec := model.ToolSpec{Name: "terraform", Version: "1.6.0"}

	cases := []struct {
		name   string
		output string
		want   string
	}{
		{"tool-prefixed match", "terraform 1.6.0 on linux", "version verified: 1.6.0"},
		{"version keyword", "Version: 1.6.0", "version verified: 1.6.0"},
		{"bare semver", "release 1.6.0 amd64", "version verified: 1.6.0"},
		{"mismatch", "terraform 1.5.7", "version mismatch: expected 1.6.0, got 1.5.7"},
		{"no version", "installed ok", "version not detected in output"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractVersion(tc.output, spec))
		})
	}
}
