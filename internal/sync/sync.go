package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/schaermu/tmplsync/internal/config"
	"github.com/schaermu/tmplsync/internal/github"
	"github.com/schaermu/tmplsync/internal/pathmap"
	"github.com/schaermu/tmplsync/internal/syncerr"
)

// Writer replaces files below the local project root
type Writer interface {
	Write(relDest string, content []byte) error
}

// Engine orchestrates the sync process
type Engine struct {
	cfg    *config.Config
	client github.Client
	writer Writer
	logger *slog.Logger
	out    io.Writer
	errOut io.Writer
	dryRun bool
	runID  string
}

// NewEngine creates a new sync engine. Progress lines are written to out,
// failed targets are reported on errOut.
func NewEngine(cfg *config.Config, client github.Client, writer Writer, logger *slog.Logger, out, errOut io.Writer, dryRun bool) *Engine {
	runID := uuid.NewString()
	return &Engine{
		cfg:    cfg,
		client: client,
		writer: writer,
		logger: logger.With("run_id", runID),
		out:    out,
		errOut: errOut,
		dryRun: dryRun,
		runID:  runID,
	}
}

// RunID identifies this engine's run in logs and results
func (e *Engine) RunID() string {
	return e.runID
}

// FileOp is a single remote file to be written locally
type FileOp struct {
	SourcePath string // repository path
	DestPath   string // path relative to the project root
}

// Run syncs every configured target in order. Failures are recorded per target
// and never stop the run; only cancellation of ctx skips the remaining targets.
func (e *Engine) Run(ctx context.Context) *Summary {
	start := time.Now()
	e.logger.Info("starting sync",
		"source", e.cfg.RepoSlug(),
		"targets", len(e.cfg.Targets),
		"dry_run", e.dryRun)

	e.progress("Starting GitHub template synchronization...\n")

	outcomes := make([]Outcome, 0, len(e.cfg.Targets))
	for i, t := range e.cfg.Targets {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("sync interrupted, skipping remaining targets", "remaining", len(e.cfg.Targets)-i)
			for _, rest := range e.cfg.Targets[i:] {
				o := Outcome{Target: rest.Local, Remote: rest.Remote, Dir: rest.Dir}
				o.Err = &syncerr.Error{Kind: syncerr.KindCanceled, Path: rest.Remote, Err: err}
				e.report(o)
				outcomes = append(outcomes, o)
			}
			break
		}

		e.progress("Updating %s...", t.Local)
		e.logger.Debug("syncing target", "kind", t.Kind(), "remote", t.Remote, "local", t.Local)

		var o Outcome
		if t.Dir {
			o = e.syncDir(ctx, t)
		} else {
			o = e.syncFile(ctx, t)
		}
		e.report(o)
		outcomes = append(outcomes, o)
	}

	summary := newSummary(e.runID, e.dryRun, outcomes, time.Since(start))
	e.logger.Info("sync finished",
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"duration", summary.Duration.Round(time.Millisecond))
	return summary
}

// syncFile fetches a single file target and writes it
func (e *Engine) syncFile(ctx context.Context, t config.Target) Outcome {
	o := Outcome{Target: t.Local, Remote: t.Remote}

	if e.dryRun {
		e.logger.Info("[dry-run] would write", "dest", t.Local, "source", t.Remote)
		o.Success = true
		o.Files = 1
		return o
	}

	if err := e.transfer(ctx, FileOp{SourcePath: t.Remote, DestPath: t.Local}); err != nil {
		o.Err = err
		return o
	}
	o.Success = true
	o.Files = 1
	return o
}

// syncDir lists a directory target and writes every file below it. How a
// failing file affects the rest of the target depends on sync.directory_failure.
func (e *Engine) syncDir(ctx context.Context, t config.Target) Outcome {
	o := Outcome{Target: t.Local, Remote: t.Remote, Dir: true}

	e.logger.Info("listing remote directory", "remote", t.Remote)
	files, err := e.client.ListFiles(ctx, t.Remote)
	if err != nil {
		o.Err = err
		return o
	}

	plan, err := e.buildPlan(t, files)
	if err != nil {
		o.Err = err
		return o
	}
	e.logger.Info("discovered remote files", "remote", t.Remote, "count", len(files), "selected", len(plan))

	if len(plan) == 0 {
		e.logger.Warn("no files found in remote directory", "remote", t.Remote)
		o.Success = true
		return o
	}

	if e.dryRun {
		e.logPlanDetails(plan)
		o.Success = true
		o.Files = len(plan)
		return o
	}

	var (
		failed   int
		firstOp  FileOp
		firstErr error
	)
	for _, op := range plan {
		err := e.transfer(ctx, op)
		if err == nil {
			o.Files++
			continue
		}

		e.logger.Warn("failed to update file", "dest", op.DestPath, "error", err)
		if firstErr == nil {
			firstOp, firstErr = op, err
		}
		failed++

		if e.cfg.Sync.DirectoryFailure == config.FailureAbort || syncerr.Is(err, syncerr.KindCanceled) {
			o.Err = err
			return o
		}
	}

	if failed > 0 {
		o.Err = fmt.Errorf("%d of %d files failed: %s: %w", failed, len(plan), firstOp.SourcePath, firstErr)
		return o
	}
	o.Success = true
	return o
}

// buildPlan maps listed repository paths to local destinations, dropping
// excluded paths
func (e *Engine) buildPlan(t config.Target, files []string) ([]FileOp, error) {
	plan := make([]FileOp, 0, len(files))
	for _, remote := range files {
		rel, err := pathmap.Relative(remote, t.Remote)
		if err != nil {
			return nil, err
		}

		excluded, err := pathmap.Excluded(rel, t.Exclude)
		if err != nil {
			return nil, fmt.Errorf("failed to match exclude patterns: %w", err)
		}
		if excluded {
			e.logger.Debug("excluded file", "source", remote)
			continue
		}

		dest, err := pathmap.Translate(remote, t.Remote, t.Local)
		if err != nil {
			return nil, err
		}
		plan = append(plan, FileOp{SourcePath: remote, DestPath: dest})
	}
	return plan, nil
}

// transfer fetches one remote file and overwrites its local destination
func (e *Engine) transfer(ctx context.Context, op FileOp) error {
	content, err := e.client.Fetch(ctx, op.SourcePath)
	if err != nil {
		return err
	}

	if err := e.writer.Write(op.DestPath, content); err != nil {
		return err
	}

	e.logger.Debug("updated file", "dest", op.DestPath, "bytes", len(content))
	return nil
}

// logPlanDetails logs the files a dry-run would write
func (e *Engine) logPlanDetails(plan []FileOp) {
	for _, op := range plan {
		e.logger.Info("[dry-run] would write", "dest", op.DestPath, "source", op.SourcePath)
	}
}

// report prints the progress line for a finished target; failures go to errOut
func (e *Engine) report(o Outcome) {
	switch {
	case !o.Success:
		_, _ = fmt.Fprintf(e.errOut, "✗ Failed to update %s: %s\n", o.Target, o.Message())
	case e.dryRun:
		e.progress("✓ Would update %s", o.Target)
	default:
		e.progress("✓ Updated %s", o.Target)
	}
}

func (e *Engine) progress(format string, args ...any) {
	_, _ = fmt.Fprintf(e.out, format+"\n", args...)
}
