// Package workflow implements the WorkflowExecutor: building a stage prompt,
// invoking the agent backend, and persisting whatever the stage produced
// (§4.5 calls this contract via poller.Executor).
package workflow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/agentic-metallurgy/kiln/internal/executor"
	"github.com/agentic-metallurgy/kiln/internal/kiln/labels"
	"github.com/agentic-metallurgy/kiln/internal/kiln/runner"
	"github.com/agentic-metallurgy/kiln/internal/ticket"
)

// ProjectResolver maps a repo identifier ("owner/repo") to the local
// filesystem checkout the backend should execute in. A concrete
// implementation lives in internal/config, keyed off the configured
// project list.
type ProjectResolver interface {
	ProjectPath(repo string) (string, error)
}

// Executor composes an executor.Backend with a ticket.Adapter to implement
// poller.Executor. It owns no claim/release logic of its own — RaceGuard
// and RunnerPool already guarantee it runs at most once per RunKey.
type Executor struct {
	backend  executor.Backend
	adapter  ticket.Adapter
	projects ProjectResolver
	model    string
	effort   string
	log      *slog.Logger
}

// New returns an Executor. model/effort are passed through to every backend
// invocation unchanged; pass "" for either to use the backend's default.
func New(backend executor.Backend, adapter ticket.Adapter, projects ProjectResolver, model, effort string, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		backend:  backend,
		adapter:  adapter,
		projects: projects,
		model:    model,
		effort:   effort,
		log:      log.With(slog.String("component", "workflow")),
	}
}

// RunStage runs one workflow stage end to end: builds the stage prompt,
// executes it, and — for Research and Plan, whose output belongs in the
// issue body rather than in a PR — persists the result wrapped in the
// stage's body markers (§6). Implement and Validate have no marker pair;
// their output is a commit or PR the backend creates itself, so RunStage
// only reports the outcome.
func (e *Executor) RunStage(ctx context.Context, item ticket.Item, stage string) (runner.Outcome, string, error) {
	sessionID := uuid.NewString()
	log := e.log.With(slog.String("repo", item.Repo), slog.Int("id", item.ID), slog.String("stage", stage), slog.String("session", sessionID))

	projectPath, err := e.projects.ProjectPath(item.Repo)
	if err != nil {
		log.Warn("failed to resolve project path", slog.Any("error", err))
		return runner.OutcomeFailure, sessionID, err
	}

	result, err := e.backend.Execute(ctx, executor.ExecuteOptions{
		Prompt:      buildStagePrompt(item, stage),
		ProjectPath: projectPath,
		Model:       e.model,
		Effort:      e.effort,
	})
	if err != nil {
		if ctx.Err() != nil {
			return runner.OutcomeCancelled, sessionID, ctx.Err()
		}
		log.Warn("backend execution failed", slog.Any("error", err))
		return runner.OutcomeFailure, sessionID, err
	}
	if !result.Success {
		log.Warn("backend reported failure", slog.String("error", result.Error))
		return runner.OutcomeFailure, sessionID, errors.New(result.Error)
	}

	if pair, ok := labels.BodyMarkers[stage]; ok {
		newBody := replaceMarkedSection(item.Body, pair[0], pair[1], result.Output)
		if err := e.adapter.UpdateBody(ctx, item.Repo, item.ID, newBody); err != nil {
			log.Error("failed to persist stage output to body", slog.Any("error", err))
			return runner.OutcomeFailure, sessionID, err
		}
	}

	return runner.OutcomeSuccess, sessionID, nil
}

// RunEdit runs the in-place Edit workflow for one actionable comment and
// returns the full new body for the Reactor to persist (§4.7). It must not
// call UpdateBody itself — the Reactor owns that single write.
func (e *Executor) RunEdit(ctx context.Context, item ticket.Item, stage string, comment ticket.Comment, currentBody string) (string, runner.Outcome, error) {
	sessionID := uuid.NewString()
	log := e.log.With(slog.String("repo", item.Repo), slog.Int("id", item.ID), slog.String("stage", stage), slog.String("session", sessionID))

	projectPath, err := e.projects.ProjectPath(item.Repo)
	if err != nil {
		log.Warn("failed to resolve project path", slog.Any("error", err))
		return currentBody, runner.OutcomeFailure, err
	}

	result, err := e.backend.Execute(ctx, executor.ExecuteOptions{
		Prompt:      buildEditPrompt(item, stage, comment),
		ProjectPath: projectPath,
		Model:       e.model,
		Effort:      e.effort,
	})
	if err != nil {
		if ctx.Err() != nil {
			return currentBody, runner.OutcomeCancelled, ctx.Err()
		}
		log.Warn("backend execution failed during edit", slog.Any("error", err))
		return currentBody, runner.OutcomeFailure, err
	}
	if !result.Success {
		log.Warn("backend reported failure during edit", slog.String("error", result.Error))
		return currentBody, runner.OutcomeFailure, errors.New(result.Error)
	}

	pair, ok := labels.BodyMarkers[stage]
	if !ok {
		// Stage has no marked section (shouldn't happen: TriggerPolicy only
		// offers comment iteration during Research/Plan); leave body untouched.
		return currentBody, runner.OutcomeSuccess, nil
	}
	return replaceMarkedSection(currentBody, pair[0], pair[1], result.Output), runner.OutcomeSuccess, nil
}
