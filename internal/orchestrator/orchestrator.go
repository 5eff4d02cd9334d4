// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator schedules tool installation jobs: it pulls pending
// work, bounds concurrency with an admission gate, drives each job through
// the status state machine calling the authoring agent and both validators,
// and aggregates a run summary.
//
// Jobs are bulkheaded: an error (or panic) inside one tool's pipeline is
// converted into that tool's failed status and never cancels siblings. The
// run always completes and emits a summary, even under partial failure.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bartekus/toolforge/internal/agent"
	"github.com/bartekus/toolforge/internal/artifact"
	"github.com/bartekus/toolforge/internal/model"
	"github.com/bartekus/toolforge/internal/repometa"
	"github.com/bartekus/toolforge/internal/worklist"
)

// DefaultParallelJobs sizes the admission gate when none is configured.
const DefaultParallelJobs = 5

// StaticValidator runs the static check battery against a script file.
type StaticValidator interface {
	Validate(ctx context.Context, path string) []model.ValidationResult
}

// ContainerRunner executes a script in an isolated container.
type ContainerRunner interface {
	RunInstallation(ctx context.Context, scriptPath string, spec model.ToolSpec, baseImage string) model.ValidationResult
}

// MetadataLookup resolves repository metadata, best-effort.
type MetadataLookup interface {
	BasicInfo(ctx context.Context, url string) (repometa.BasicInfo, error)
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Source     worklist.Source
	Author     agent.Author
	Store      *artifact.Store
	Static     StaticValidator
	Containers ContainerRunner // unused when DryRun is set
	Metadata   MetadataLookup  // optional

	Docs         agent.Docs
	RunID        string
	BaseImage    string
	ParallelJobs int
	DryRun       bool
	Log          zerolog.Logger
}

// Orchestrator is the top-level run scheduler.
type Orchestrator struct {
	opts Options
	gate chan struct{}
}

// New validates the wiring and sizes the admission gate.
func New(opts Options) (*Orchestrator, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("worklist source is required")
	}
	if opts.Author == nil {
		return nil, fmt.Errorf("authoring agent is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("artifact store is required")
	}
	if opts.Static == nil {
		return nil, fmt.Errorf("static validator is required")
	}
	if !opts.DryRun && opts.Containers == nil {
		return nil, fmt.Errorf("container runner is required unless dry-run")
	}
	if opts.ParallelJobs < 1 {
		opts.ParallelJobs = DefaultParallelJobs
	}
	return &Orchestrator{
		opts: opts,
		gate: make(chan struct{}, opts.ParallelJobs),
	}, nil
}

// Run processes every pending or previously failed worklist item and
// returns the run summary. The returned error covers setup failures only;
// per-job failures are reported through the summary and the worklist.
func (o *Orchestrator) Run(ctx context.Context) (model.RunSummary, error) {
	start := time.Now()
	log := o.opts.Log

	items, err := o.opts.Source.ReadItems()
	if err != nil {
		return model.RunSummary{}, fmt.Errorf("reading worklist: %w", err)
	}
	log.Info().Int("total", len(items)).Msg("worklist loaded")

	var pending []*model.Tool
	for _, t := range items {
		switch t.Status {
		case model.StatusPending:
			pending = append(pending, t)
		case model.StatusFailed:
			// Legal retry edge: operator re-submission of a failed row.
			t.Status = model.StatusPending
			t.ErrorMessage = ""
			pending = append(pending, t)
		}
	}
	log.Info().Int("pending", len(pending)).Msg("jobs to process")

	summary := model.RunSummary{
		RunID:      o.opts.RunID,
		TotalTools: len(items),
		Processed:  len(pending),
	}

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successful int
		failed     int
	)
	for _, tool := range pending {
		wg.Add(1)
		go func(t *model.Tool) {
			defer wg.Done()

			// Admission gate: at most ParallelJobs jobs inside the
			// generate/validate/install critical section. Waiting here is
			// backpressure, not failure, so it carries no timeout.
			o.gate <- struct{}{}
			defer func() { <-o.gate }()

			ok := o.runJob(ctx, t)

			mu.Lock()
			if ok {
				successful++
			} else {
				failed++
			}
			mu.Unlock()
		}(tool)
	}
	wg.Wait()

	summary.Successful = successful
	summary.Failed = failed
	summary.DurationSeconds = time.Since(start).Seconds()

	if _, err := o.opts.Store.SaveJSON("", "summary.json", summary); err != nil {
		log.Error().Err(err).Msg("writing run summary failed")
	}
	log.Info().
		Int("successful", successful).
		Int("failed", failed).
		Float64("duration_seconds", summary.DurationSeconds).
		Msg("orchestration complete")
	return summary, nil
}

// runJob drives one tool through its stage sequence. All job errors and
// panics stop here; the return value only feeds the summary counts.
func (o *Orchestrator) runJob(ctx context.Context, tool *model.Tool) (ok bool) {
	log := o.opts.Log.With().Str("tool", tool.ID).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Msg("job panicked")
			o.fail(tool, fmt.Sprintf("internal error: %v", r))
			ok = false
		}
	}()

	result := &model.InstallationResult{
		ToolID:      tool.ID,
		ToolName:    tool.Spec.Name,
		ToolVersion: tool.Spec.Version,
		BaseImage:   o.opts.BaseImage,
		StartedAt:   time.Now().UTC(),
	}

	err := o.process(ctx, tool, result)
	result.Complete(err == nil)
	if _, saveErr := o.opts.Store.SaveJSON(tool.Spec.Name, "result.json", result); saveErr != nil {
		log.Error().Err(saveErr).Msg("saving installation result failed")
	}

	if err != nil {
		log.Error().Err(err).Msg("job failed")
		o.fail(tool, err.Error())
		return false
	}

	o.persist(tool, model.StatusCompleted, "Installation successful",
		o.opts.Store.RunDir()+"/tools/"+tool.Spec.Name)
	log.Info().Msg("job completed")
	return true
}

// process is the strict stage sequence. Every transition is persisted
// before the stage runs so status visibility never lags pipeline progress.
func (o *Orchestrator) process(ctx context.Context, tool *model.Tool, result *model.InstallationResult) error {
	log := o.opts.Log.With().Str("tool", tool.ID).Logger()

	o.persist(tool, model.StatusInProgress, "", "")
	o.enrich(ctx, tool)

	// Generate.
	o.persist(tool, model.StatusGenerating, "", "")
	gen, err := o.opts.Author.Generate(ctx, tool.Spec, o.opts.Docs)
	if err != nil {
		return stageErr(StageGenerate, "agent error: %v", err)
	}
	if gen.Blocked() {
		return stageErr(StageGenerate, "agent reported blockers: %v", gen.SelfReview.Blockers)
	}

	scriptPath, err := o.opts.Store.SaveScript(tool.Spec.Name, gen.ScriptBash)
	if err != nil {
		return stageErr(StagePersist, "saving script: %v", err)
	}
	result.ScriptPath = scriptPath
	if _, err := o.opts.Store.SaveManifest(tool.Spec.Name, gen.Manifest); err != nil {
		return stageErr(StagePersist, "saving manifest: %v", err)
	}
	if _, err := o.opts.Store.SaveJSON(tool.Spec.Name, "metadata.json", map[string]any{
		"tool":         tool,
		"plan":         gen.Plan,
		"self_review":  gen.SelfReview,
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		log.Warn().Err(err).Msg("saving generation metadata failed")
	}

	// Static validation.
	o.persist(tool, model.StatusValidating, "", "")
	static := o.opts.Static.Validate(ctx, scriptPath)
	result.StaticValidation = static
	if _, err := o.opts.Store.SaveJSON(tool.Spec.Name, "validation.json", static); err != nil {
		log.Warn().Err(err).Msg("saving validation results failed")
	}
	if model.AnyFailed(static) {
		return stageErr(StageStatic, "static validation failed")
	}

	// Container validation, skipped entirely under dry-run.
	if !o.opts.DryRun {
		o.persist(tool, model.StatusInstalling, "", "")
		dyn := o.opts.Containers.RunInstallation(ctx, scriptPath, tool.Spec, o.opts.BaseImage)
		result.ContainerValidation = &dyn
		if dyn.Output != "" {
			if _, err := o.opts.Store.SaveLog(tool.Spec.Name, "installation", dyn.Output); err != nil {
				log.Warn().Err(err).Msg("saving installation log failed")
			}
		}
		if dyn.Status == model.ValidationFailed {
			return stageErr(StageDynamic, "container validation failed: %s", dyn.Error)
		}
	}

	if _, err := o.opts.Store.SaveJSON(tool.Spec.Name, "provenance.json", o.provenance(tool, gen, result)); err != nil {
		log.Warn().Err(err).Msg("saving provenance failed")
	}
	return nil
}

// enrich fills a missing target version from repository metadata when the
// spec carries a repository URL. Lookup failures degrade to the spec as-is.
func (o *Orchestrator) enrich(ctx context.Context, tool *model.Tool) {
	if o.opts.Metadata == nil || tool.Spec.RepositoryURL == "" {
		return
	}
	if tool.Spec.Version != "" && tool.Spec.Version != "latest" {
		return
	}
	info, err := o.opts.Metadata.BasicInfo(ctx, tool.Spec.RepositoryURL)
	if err != nil {
		o.opts.Log.Warn().Str("tool", tool.ID).Err(err).Msg("repository metadata lookup failed")
		return
	}
	tool.Spec.Version = info.LatestVersion
	if tool.Spec.Description == "" {
		tool.Spec.Description = info.Description
	}
}

// persist moves the job's status and mirrors it to the worklist and the
// artifact tree. Collaborator write failures are logged, never escalated.
func (o *Orchestrator) persist(tool *model.Tool, status model.Status, message, artifactPath string) {
	if err := tool.SetStatus(status); err != nil {
		o.opts.Log.Error().Str("tool", tool.ID).Err(err).Msg("status transition rejected")
		return
	}
	if artifactPath != "" {
		tool.ArtifactPath = artifactPath
	}
	if err := o.opts.Source.UpdateStatus(tool, status, message, artifactPath); err != nil {
		o.opts.Log.Warn().Str("tool", tool.ID).Err(err).Msg("worklist status update failed")
	}
	if err := o.opts.Store.WriteStatus(tool.Spec.Name, status, message); err != nil {
		o.opts.Log.Warn().Str("tool", tool.ID).Err(err).Msg("status file write failed")
	}
}

func (o *Orchestrator) fail(tool *model.Tool, msg string) {
	tool.Fail(msg)
	if err := o.opts.Source.UpdateStatus(tool, model.StatusFailed, tool.ErrorMessage, ""); err != nil {
		o.opts.Log.Warn().Str("tool", tool.ID).Err(err).Msg("worklist status update failed")
	}
	if err := o.opts.Store.WriteStatus(tool.Spec.Name, model.StatusFailed, tool.ErrorMessage); err != nil {
		o.opts.Log.Warn().Str("tool", tool.ID).Err(err).Msg("status file write failed")
	}
}

func (o *Orchestrator) provenance(tool *model.Tool, gen *agent.Result, result *model.InstallationResult) map[string]any {
	return map[string]any{
		"tool": map[string]string{
			"name":    tool.Spec.Name,
			"version": tool.Spec.Version,
			"id":      tool.ID,
		},
		"generation": map[string]any{
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"confidence": gen.SelfReview.OverallConfidence,
		},
		"validation": map[string]any{
			"static":    result.StaticValidation,
			"container": result.ContainerValidation,
		},
		"environment": map[string]string{
			"base_image": o.opts.BaseImage,
		},
	}
}
