// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartekus/toolforge/internal/agent"
	"github.com/bartekus/toolforge/internal/artifact"
	"github.com/bartekus/toolforge/internal/model"
	"github.com/bartekus/toolforge/internal/repometa"
)

// mockSource records every status update per tool.
type mockSource struct {
	mu      sync.Mutex
	tools   []*model.Tool
	history map[string][]model.Status
}

func newMockSource(tools ...*model.Tool) *mockSource {
	return &mockSource{tools: tools, history: map[string][]model.Status{}}
}

func (s *mockSource) ReadItems() ([]*model.Tool, error) { return s.tools, nil }

func (s *mockSource) UpdateStatus(tool *model.Tool, status model.Status, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[tool.ID] = append(s.history[tool.ID], status)
	return nil
}

func (s *mockSource) statuses(id string) []model.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Status(nil), s.history[id]...)
}

type mockAuthor struct {
	generate func(ctx context.Context, spec model.ToolSpec, docs agent.Docs) (*agent.Result, error)
	calls    atomic.Int32
}

func (a *mockAuthor) Generate(ctx context.Context, spec model.ToolSpec, docs agent.Docs) (*agent.Result, error) {
	a.calls.Add(1)
	return a.generate(ctx, spec, docs)
}

type mockStatic struct {
	validate func(ctx context.Context, path string) []model.ValidationResult
	calls    atomic.Int32
}

func (m *mockStatic) Validate(ctx context.Context, path string) []model.ValidationResult {
	m.calls.Add(1)
	if m.validate != nil {
		return m.validate(ctx, path)
	}
	return []model.ValidationResult{{Step: "shebang_check", Status: model.ValidationPassed}}
}

type mockContainers struct {
	run   func(ctx context.Context, scriptPath string, spec model.ToolSpec, baseImage string) model.ValidationResult
	calls atomic.Int32
}

func (m *mockContainers) RunInstallation(ctx context.Context, scriptPath string, spec model.ToolSpec, baseImage string) model.ValidationResult {
	m.calls.Add(1)
	if m.run != nil {
		return m.run(ctx, scriptPath, spec, baseImage)
	}
	return model.ValidationResult{Step: "docker_validation", Status: model.ValidationPassed}
}

type mockMetadata struct {
	info repometa.BasicInfo
	err  error
}

func (m *mockMetadata) BasicInfo(_ context.Context, _ string) (repometa.BasicInfo, error) {
	return m.info, m.err
}

func goodAuthor() *mockAuthor {
	return &mockAuthor{generate: func(_ context.Context, spec model.ToolSpec, _ agent.Docs) (*agent.Result, error) {
		return &agent.Result{
			Plan:       []string{"install " + spec.Name},
			ScriptBash: "#!/usr/bin/env bash\nset -euo pipefail\ncommand -v " + spec.Name + " && exit 0\n",
			Manifest:   model.DependencyManifest{ValidateCmd: spec.ValidateCmd},
		}, nil
	}}
}

func pendingTool(name string) *model.Tool {
	return model.NewTool(model.ToolSpec{
		Name:        name,
		Version:     "1.0.0",
		ValidateCmd: name + " --version",
	}, 1)
}

func testStore(t *testing.T) *artifact.Store {
	t.Helper()
	s, err := artifact.NewStore(t.TempDir(), "test-run")
	require.NoError(t, err)
	return s
}

func testOptions(t *testing.T, src *mockSource) Options {
	t.Helper()
	return Options{
		Source:       src,
		Author:       goodAuthor(),
		Store:        testStore(t),
		Static:       &mockStatic{},
		Containers:   &mockContainers{},
		RunID:        "test-run",
		BaseImage:    "ubuntu:22.04",
		ParallelJobs: 2,
		Log:          zerolog.Nop(),
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)

	opts := testOptions(t, newMockSource())
	opts.Containers = nil
	_, err = New(opts)
	require.Error(t, err)

	// Dry-run needs no container runner.
	opts.DryRun = true
	_, err = New(opts)
	require.NoError(t, err)
}

func TestRun_HappyPath(t *testing.T) {
	src := newMockSource(pendingTool("terraform"), pendingTool("helm"))
	opts := testOptions(t, src)
	o, err := New(opts)
	require.NoError(t, err)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalTools)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, summary.Successful)
	assert.Equal(t, 0, summary.Failed)

	// Full stage sequence is persisted in order.
	assert.Equal(t, []model.Status{
		model.StatusInProgress, model.StatusGenerating, model.StatusValidating,
		model.StatusInstalling, model.StatusCompleted,
	}, src.statuses("terraform-1.0.0"))

	// Per-tool artifacts were written.
	for _, name := range []string{"terraform", "helm"} {
		assert.FileExists(t, filepath.Join(opts.Store.ToolsDir(), name, artifact.ScriptName))
		assert.FileExists(t, filepath.Join(opts.Store.ToolsDir(), name, artifact.ManifestName))
		assert.FileExists(t, filepath.Join(opts.Store.ToolsDir(), name, "result.json"))
		assert.FileExists(t, filepath.Join(opts.Store.ToolsDir(), name, "validation.json"))
		assert.FileExists(t, filepath.Join(opts.Store.ToolsDir(), name, "provenance.json"))
	}
	assert.FileExists(t, filepath.Join(opts.Store.RunDir(), "summary.json"))
}

func TestRun_DryRunSkipsContainers(t *testing.T) {
	src := newMockSource(pendingTool("terraform"))
	opts := testOptions(t, src)
	opts.DryRun = true
	opts.Containers = nil
	o, err := New(opts)
	require.NoError(t, err)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Successful)

	// validating -> completed directly, never installing.
	assert.Equal(t, []model.Status{
		model.StatusInProgress, model.StatusGenerating, model.StatusValidating,
		model.StatusCompleted,
	}, src.statuses("terraform-1.0.0"))
}

func TestRun_PartialFailureIsolated(t *testing.T) {
	src := newMockSource(pendingTool("good"), pendingTool("bad"))
	opts := testOptions(t, src)
	author := goodAuthor()
	inner := author.generate
	author.generate = func(ctx context.Context, spec model.ToolSpec, docs agent.Docs) (*agent.Result, error) {
		if spec.Name == "bad" {
			return nil, fmt.Errorf("model unavailable")
		}
		return inner(ctx, spec, docs)
	}
	opts.Author = author
	o, err := New(opts)
	require.NoError(t, err)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 1, summary.Failed)

	good := src.statuses("good-1.0.0")
	assert.Equal(t, model.StatusCompleted, good[len(good)-1])
	bad := src.statuses("bad-1.0.0")
	assert.Equal(t, model.StatusFailed, bad[len(bad)-1])
}

func TestRun_BlockersFailBeforeValidators(t *testing.T) {
	src := newMockSource(pendingTool("blocked"))
	opts := testOptions(t, src)
	opts.Author = &mockAuthor{generate: func(_ context.Context, spec model.ToolSpec, _ agent.Docs) (*agent.Result, error) {
		return &agent.Result{
			Plan:       []string{"step"},
			ScriptBash: "#!/usr/bin/env bash\nset -euo pipefail\n",
			SelfReview: agent.SelfReview{Blockers: []string{"no release for this platform"}},
		}, nil
	}}
	static := &mockStatic{}
	containers := &mockContainers{}
	opts.Static = static
	opts.Containers = containers
	o, err := New(opts)
	require.NoError(t, err)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, int32(0), static.calls.Load())
	assert.Equal(t, int32(0), containers.calls.Load())
}

func TestRun_StaticFailureStopsBeforeContainers(t *testing.T) {
	src := newMockSource(pendingTool("sloppy"))
	opts := testOptions(t, src)
	opts.Static = &mockStatic{validate: func(_ context.Context, _ string) []model.ValidationResult {
		return []model.ValidationResult{
			{Step: "shebang_check", Status: model.ValidationPassed},
			{Step: "idempotency_check", Status: model.ValidationFailed, Error: "no guard"},
		}
	}}
	containers := &mockContainers{}
	opts.Containers = containers
	o, err := New(opts)
	require.NoError(t, err)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, int32(0), containers.calls.Load())
}

func TestRun_ContainerFailure(t *testing.T) {
	src := newMockSource(pendingTool("flaky"))
	opts := testOptions(t, src)
	opts.Containers = &mockContainers{run: func(_ context.Context, _ string, _ model.ToolSpec, _ string) model.ValidationResult {
		return model.ValidationResult{
			Step:   "docker_build",
			Status: model.ValidationFailed,
			Error:  "build timed out after 300 seconds",
		}
	}}
	o, err := New(opts)
	require.NoError(t, err)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	final := src.tools[0]
	assert.Equal(t, model.StatusFailed, final.Status)
	assert.Contains(t, final.ErrorMessage, "container_validation")
}

func TestRun_OnlyPendingAndFailedProcessed(t *testing.T) {
	done := pendingTool("done")
	done.Status = model.StatusCompleted
	skipped := pendingTool("skipped")
	skipped.Status = model.StatusSkipped
	retry := pendingTool("retry")
	retry.Status = model.StatusFailed
	retry.ErrorMessage = "previous failure"

	src := newMockSource(done, skipped, retry, pendingTool("fresh"))
	opts := testOptions(t, src)
	o, err := New(opts)
	require.NoError(t, err)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.TotalTools)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, summary.Successful)

	// The failed row was re-queued and its stale error cleared.
	assert.Equal(t, model.StatusCompleted, retry.Status)
	assert.Empty(t, src.statuses("done-1.0.0"))
	assert.Empty(t, src.statuses("skipped-1.0.0"))
}

func TestRun_ConcurrencyBounded(t *testing.T) {
	const jobs = 8
	tools := make([]*model.Tool, 0, jobs)
	for i := 0; i < jobs; i++ {
		tools = append(tools, pendingTool(fmt.Sprintf("tool%d", i)))
	}
	src := newMockSource(tools...)
	opts := testOptions(t, src)
	opts.ParallelJobs = 2

	var inFlight, peak atomic.Int32
	inner := goodAuthor().generate
	opts.Author = &mockAuthor{generate: func(ctx context.Context, spec model.ToolSpec, docs agent.Docs) (*agent.Result, error) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return inner(ctx, spec, docs)
	}}

	o, err := New(opts)
	require.NoError(t, err)
	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, jobs, summary.Successful)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRun_PanicIsBulkheaded(t *testing.T) {
	src := newMockSource(pendingTool("boom"), pendingTool("calm"))
	opts := testOptions(t, src)
	inner := goodAuthor().generate
	opts.Author = &mockAuthor{generate: func(ctx context.Context, spec model.ToolSpec, docs agent.Docs) (*agent.Result, error) {
		if spec.Name == "boom" {
			panic("nil pointer somewhere")
		}
		return inner(ctx, spec, docs)
	}}
	o, err := New(opts)
	require.NoError(t, err)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 1, summary.Failed)

	boom := src.tools[0]
	assert.Equal(t, model.StatusFailed, boom.Status)
	assert.Contains(t, boom.ErrorMessage, "internal error")
}

func TestRun_EnrichFillsVersionFromMetadata(t *testing.T) {
	tool := model.NewTool(model.ToolSpec{
		Name:          "k9s",
		Version:       "latest",
		ValidateCmd:   "k9s version",
		RepositoryURL: "https://github.com/derailed/k9s",
	}, 1)
	src := newMockSource(tool)
	opts := testOptions(t, src)
	opts.Metadata = &mockMetadata{info: repometa.BasicInfo{
		Description:   "Kubernetes TUI",
		LatestVersion: "v0.32.5",
	}}
	o, err := New(opts)
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v0.32.5", tool.Spec.Version)
	assert.Equal(t, "Kubernetes TUI", tool.Spec.Description)
}

func TestRun_MetadataFailureDegrades(t *testing.T) {
	tool := model.NewTool(model.ToolSpec{
		Name:          "k9s",
		Version:       "latest",
		ValidateCmd:   "k9s version",
		RepositoryURL: "https://github.com/derailed/k9s",
	}, 1)
	src := newMockSource(tool)
	opts := testOptions(t, src)
	opts.Metadata = &mockMetadata{err: fmt.Errorf("rate limited")}
	o, err := New(opts)
	require.NoError(t, err)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, "latest", tool.Spec.Version)
}

func TestRun_ErrorMessageTruncated(t *testing.T) {
	src := newMockSource(pendingTool("verbose"))
	opts := testOptions(t, src)
	opts.Author = &mockAuthor{generate: func(_ context.Context, _ model.ToolSpec, _ agent.Docs) (*agent.Result, error) {
		long := make([]byte, 1000)
		for i := range long {
			long[i] = 'x'
		}
		return nil, fmt.Errorf("agent exploded: %s", long)
	}}
	o, err := New(opts)
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, src.tools[0].ErrorMessage, 200)
}

func TestRun_SourceErrorIsFatal(t *testing.T) {
	opts := testOptions(t, newMockSource())
	opts.Source = &failingSource{}
	o, err := New(opts)
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading worklist")
}

type failingSource struct{}

func (f *failingSource) ReadItems() ([]*model.Tool, error) {
	return nil, fmt.Errorf("sheet unreachable")
}

func (f *failingSource) UpdateStatus(*model.Tool, model.Status, string, string) error { return nil }

func TestRun_SummaryFileContents(t *testing.T) {
	src := newMockSource(pendingTool("terraform"))
	opts := testOptions(t, src)
	o, err := New(opts)
	require.NoError(t, err)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(opts.Store.RunDir(), "summary.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id": "test-run"`)
	assert.Contains(t, string(data), `"successful": 1`)
	assert.Greater(t, summary.DurationSeconds, 0.0)
}
