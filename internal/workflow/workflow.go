// Package workflow executes the timed create → wait → finalize → cleanup
// sequences behind the two fully automatable achievements: closing a fresh
// issue within its time window (fast-close) and merging a pull request with no
// review (unreviewed-merge). Every run provisions a throwaway repository,
// performs one irreversible finalizing action, and deletes its scaffolding on
// every exit path that reaches a terminal state.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Kind selects which workflow a run executes.
type Kind string

const (
	KindFastClose       Kind = "fast-close"
	KindUnreviewedMerge Kind = "unreviewed-merge"
)

// State is a position in the run's state machine.
type State string

const (
	StateIdle         State = "idle"
	StateProvisioning State = "provisioning"
	StateWaiting      State = "waiting"
	StateFinalizing   State = "finalizing"
	StateCleaningUp   State = "cleaning_up"
	StateSucceeded    State = "succeeded"
	StateFailed       State = "failed"
)

// Stage names the step in which a run failed.
type Stage string

const (
	StageProvisioning Stage = "provisioning"
	StageWaiting      Stage = "waiting"
	StageFinalization Stage = "finalization"
	StageCleanup      Stage = "cleanup"
)

// StageError wraps a step failure with the stage it occurred in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// ArtifactKind identifies what a created handle points at.
type ArtifactKind string

const (
	ArtifactRepository  ArtifactKind = "repository"
	ArtifactIssue       ArtifactKind = "issue"
	ArtifactBranch      ArtifactKind = "branch"
	ArtifactFile        ArtifactKind = "file"
	ArtifactPullRequest ArtifactKind = "pull_request"
)

// ArtifactRef is an opaque handle to a created resource. Repo is the
// owner/name of the containing (or referenced) repository; Number is the
// issue or pull request number; Ref is a branch name or file path.
type ArtifactRef struct {
	Kind   ArtifactKind `json:"kind"`
	Repo   string       `json:"repo"`
	Number int          `json:"number,omitempty"`
	Ref    string       `json:"ref,omitempty"`
}

func (a ArtifactRef) String() string {
	switch a.Kind {
	case ArtifactIssue, ArtifactPullRequest:
		return fmt.Sprintf("%s %s#%d", a.Kind, a.Repo, a.Number)
	case ArtifactBranch, ArtifactFile:
		return fmt.Sprintf("%s %s:%s", a.Kind, a.Repo, a.Ref)
	default:
		return fmt.Sprintf("%s %s", a.Kind, a.Repo)
	}
}

// Forge is the write surface of the hosted service used by workflow runs.
type Forge interface {
	CreateRepository(ctx context.Context, name, description string) (ArtifactRef, error)
	CreateIssue(ctx context.Context, repo, title, body string) (ArtifactRef, error)
	CommentIssue(ctx context.Context, issue ArtifactRef, body string) error
	CloseIssue(ctx context.Context, issue ArtifactRef) error
	CreateBranch(ctx context.Context, repo, branch string) (ArtifactRef, error)
	CreateFile(ctx context.Context, repo, branch, path, message, content string) (ArtifactRef, error)
	CreatePullRequest(ctx context.Context, repo, head, base, title, body string) (ArtifactRef, error)
	MergePullRequest(ctx context.Context, pr ArtifactRef) error
	DeleteArtifact(ctx context.Context, ref ArtifactRef) error
}

// Recorder receives run lifecycle notifications, normally backed by the
// journal. Recorder errors are logged and never affect the run.
type Recorder interface {
	RunStarted(ctx context.Context, run Run) error
	ArtifactCreated(ctx context.Context, runID string, position int, ref ArtifactRef) error
	ArtifactCleaned(ctx context.Context, runID string, position int, cleanupErr error) error
	RunFinished(ctx context.Context, run Run) error
}

// Result is the fixed outcome of a run. Reason carries the first failure
// encountered; cleanup failures never change it.
type Result struct {
	Succeeded bool   `json:"succeeded"`
	Stage     Stage  `json:"stage,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Run is the mutable state of one workflow execution, owned exclusively by
// the engine until it reaches a terminal state.
type Run struct {
	ID          string        `json:"id"`
	Kind        Kind          `json:"kind"`
	State       State         `json:"state"`
	Transitions []State       `json:"transitions"`
	Artifacts   []ArtifactRef `json:"artifacts"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Result      Result        `json:"result"`
}

// DefaultCloseDelay satisfies the fast-close timing window while avoiding a
// zero-duration close that detection heuristics might discard.
const DefaultCloseDelay = 30 * time.Second

// Engine runs timed workflows sequentially. Now and Sleep are injectable for
// tests; Recorder and Log are optional.
type Engine struct {
	Forge      Forge
	Recorder   Recorder
	Log        *slog.Logger
	Now        func() time.Time
	Sleep      func(ctx context.Context, d time.Duration) error
	CloseDelay time.Duration
	NewID      func() string
}

// New returns an engine with wall-clock defaults.
func New(forge Forge) *Engine {
	return &Engine{
		Forge:      forge,
		Now:        time.Now,
		Sleep:      sleep,
		CloseDelay: DefaultCloseDelay,
		NewID:      func() string { return uuid.New().String() },
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (e *Engine) log() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Execute runs one workflow to a terminal state. The returned run's Result is
// the outcome; Execute returns an error only when the engine cannot start at
// all (unknown kind). A failed run is an ordinary displayed outcome, not an
// error, so callers embedding runs in a larger report keep going.
func (e *Engine) Execute(ctx context.Context, kind Kind) (Run, error) {
	if kind != KindFastClose && kind != KindUnreviewedMerge {
		return Run{}, fmt.Errorf("unknown workflow kind %q", kind)
	}
	run := Run{
		ID:          e.NewID(),
		Kind:        kind,
		State:       StateIdle,
		Transitions: []State{StateIdle},
		StartedAt:   e.now(),
	}
	e.record(ctx, func(r Recorder) error { return r.RunStarted(ctx, run) })

	e.transition(&run, StateProvisioning)
	finalize, err := e.provision(ctx, &run)
	if err != nil {
		e.fail(&run, StageProvisioning, err)
		e.cleanup(ctx, &run)
		return e.finish(ctx, run), nil
	}

	e.transition(&run, StateWaiting)
	delay := e.delayFor(kind)
	if delay > 0 {
		e.log().Info("waiting before finalize", "run", run.ID, "delay", delay.String())
	}
	if err := e.Sleep(ctx, delay); err != nil {
		e.fail(&run, StageWaiting, err)
		e.cleanup(ctx, &run)
		return e.finish(ctx, run), nil
	}

	e.transition(&run, StateFinalizing)
	if err := finalize(ctx); err != nil {
		// result is fixed here; cleanup still runs
		e.fail(&run, StageFinalization, err)
	} else {
		run.Result = Result{Succeeded: true}
	}
	e.cleanup(ctx, &run)
	return e.finish(ctx, run), nil
}

func (e *Engine) delayFor(kind Kind) time.Duration {
	if kind == KindFastClose {
		if e.CloseDelay > 0 {
			return e.CloseDelay
		}
		return DefaultCloseDelay
	}
	// unreviewed-merge finalizes immediately
	return 0
}

// provision creates the throwaway repository plus the dependent artifact
// chain for the run's kind and returns the finalizing action. Every created
// handle is appended to the run before the next call, so a mid-provisioning
// failure still knows what to clean up.
func (e *Engine) provision(ctx context.Context, run *Run) (func(context.Context) error, error) {
	switch run.Kind {
	case KindFastClose:
		return e.provisionFastClose(ctx, run)
	default:
		return e.provisionUnreviewedMerge(ctx, run)
	}
}

func (e *Engine) provisionFastClose(ctx context.Context, run *Run) (func(context.Context) error, error) {
	repo, err := e.Forge.CreateRepository(ctx, e.scratchName("quickdraw"),
		"Throwaway repository for a fast issue close")
	if err != nil {
		return nil, fmt.Errorf("create repository: %w", err)
	}
	e.addArtifact(ctx, run, repo)

	issue, err := e.Forge.CreateIssue(ctx, repo.Repo,
		"Documentation improvement suggestion",
		"Quick documentation improvement that can be addressed immediately.\n\nThis issue will be closed as it is covered by existing documentation.")
	if err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}
	e.addArtifact(ctx, run, issue)

	return func(ctx context.Context) error {
		// comment failure is tolerated; the close is the qualifying action
		if err := e.Forge.CommentIssue(ctx, issue,
			"Closing: the suggestion is covered by upcoming documentation updates."); err != nil {
			e.log().Warn("close comment failed", "run", run.ID, "error", err)
		}
		if err := e.Forge.CloseIssue(ctx, issue); err != nil {
			return fmt.Errorf("close issue: %w", err)
		}
		return nil
	}, nil
}

func (e *Engine) provisionUnreviewedMerge(ctx context.Context, run *Run) (func(context.Context) error, error) {
	repo, err := e.Forge.CreateRepository(ctx, e.scratchName("yolo"),
		"Throwaway repository for an unreviewed merge")
	if err != nil {
		return nil, fmt.Errorf("create repository: %w", err)
	}
	e.addArtifact(ctx, run, repo)

	const branch = "add-notes"
	br, err := e.Forge.CreateBranch(ctx, repo.Repo, branch)
	if err != nil {
		return nil, fmt.Errorf("create branch: %w", err)
	}
	e.addArtifact(ctx, run, br)

	file, err := e.Forge.CreateFile(ctx, repo.Repo, branch, "NOTES.md",
		"Add project notes",
		"# Notes\n\nSmall self-contained change merged directly from its branch.\n")
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	e.addArtifact(ctx, run, file)

	pr, err := e.Forge.CreatePullRequest(ctx, repo.Repo, branch, "main",
		"Add project notes",
		"Adds a notes file. Merged directly without requesting a review.")
	if err != nil {
		return nil, fmt.Errorf("create pull request: %w", err)
	}
	e.addArtifact(ctx, run, pr)

	return func(ctx context.Context) error {
		if err := e.Forge.MergePullRequest(ctx, pr); err != nil {
			return fmt.Errorf("merge pull request: %w", err)
		}
		return nil
	}, nil
}

func (e *Engine) scratchName(base string) string {
	id := e.NewID()
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s-%s", base, id)
}

func (e *Engine) addArtifact(ctx context.Context, run *Run, ref ArtifactRef) {
	run.Artifacts = append(run.Artifacts, ref)
	position := len(run.Artifacts) - 1
	e.log().Info("artifact created", "run", run.ID, "artifact", ref.String())
	e.record(ctx, func(r Recorder) error { return r.ArtifactCreated(ctx, run.ID, position, ref) })
}

// cleanup deletes every created handle in reverse creation order. Failures
// are logged and journaled, never escalated, and never change the run's
// already-fixed result.
func (e *Engine) cleanup(ctx context.Context, run *Run) {
	e.transition(run, StateCleaningUp)
	for i := len(run.Artifacts) - 1; i >= 0; i-- {
		ref := run.Artifacts[i]
		err := e.Forge.DeleteArtifact(ctx, ref)
		if err != nil {
			e.log().Warn("cleanup failed; resource may be orphaned",
				"run", run.ID, "artifact", ref.String(), "error", err)
		} else {
			e.log().Info("artifact cleaned", "run", run.ID, "artifact", ref.String())
		}
		e.record(ctx, func(r Recorder) error { return r.ArtifactCleaned(ctx, run.ID, i, err) })
	}
}

func (e *Engine) fail(run *Run, stage Stage, err error) {
	serr := &StageError{Stage: stage, Err: err}
	run.Result = Result{Succeeded: false, Stage: stage, Reason: serr.Error()}
	e.log().Error("workflow step failed", "run", run.ID, "stage", string(stage), "error", err)
}

func (e *Engine) finish(ctx context.Context, run Run) Run {
	if run.Result.Succeeded {
		run.State = StateSucceeded
	} else {
		run.State = StateFailed
	}
	run.Transitions = append(run.Transitions, run.State)
	run.FinishedAt = e.now()
	e.log().Info("workflow finished",
		"run", run.ID, "kind", string(run.Kind), "state", string(run.State), "reason", run.Result.Reason)
	e.record(ctx, func(r Recorder) error { return r.RunFinished(ctx, run) })
	return run
}

func (e *Engine) transition(run *Run, s State) {
	run.State = s
	run.Transitions = append(run.Transitions, s)
}

func (e *Engine) record(ctx context.Context, fn func(Recorder) error) {
	if e.Recorder == nil {
		return
	}
	if err := fn(e.Recorder); err != nil {
		e.log().Warn("journal write failed", "error", err)
	}
}
