// Package resolve drives a batch of affiliation lookups: it filters inputs
// against the checkpoint, fans out one unit of work per unresolved
// affiliation, routes every terminal outcome to the match or failure sink,
// and leaves the output directory in a resumable state.
package resolve

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rorlink/internal/checkpoint"
	"rorlink/internal/record"
)

// Output file names inside the output directory. Matches and failures
// accumulate across resumed runs; the checkpoint is rewritten per run.
const (
	MatchesFile    = "ror_matches.jsonl"
	FailedFile     = "ror_matches.failed.jsonl"
	CheckpointFile = "ror_matches.checkpoint"
)

// NoMatchReason is the distinguished failure reason for affiliations the
// registry could not match at all. Recording these keeps "nothing matched"
// visible downstream instead of silently dropping the input.
const NoMatchReason = "no match found"

// Resolver is the registry lookup capability. *ror.Client implements it.
type Resolver interface {
	Resolve(ctx context.Context, affiliation string, broadFallback bool) (id string, found bool, err error)
}

// Reporter receives one callback per completed unit of work, successful or
// not. Implementations decide how to present progress; the orchestrator
// itself never touches the console.
type Reporter interface {
	Increment()
}

type nopReporter struct{}

func (nopReporter) Increment() {}

// Options configures one resolution run.
type Options struct {
	// OutputDir receives the two sinks and the checkpoint file.
	OutputDir string
	// Resume loads the existing checkpoint and appends to existing sinks
	// instead of truncating them.
	Resume bool
	// BroadFallback enables the third lookup phase on every resolution.
	BroadFallback bool
	// Reporter receives progress callbacks. Nil means no reporting.
	Reporter Reporter
}

// Summary is the final tally of one run.
type Summary struct {
	Total   int // inputs supplied
	Skipped int // already checkpointed from a prior run
	Matched int
	Failed  int // includes no-match outcomes
}

// Orchestrator owns the checkpoint and both sinks for the duration of a run.
type Orchestrator struct {
	client   Resolver
	logger   *zap.Logger
	reporter Reporter
	opts     Options
}

// New builds an orchestrator around a shared registry client. The client's
// permit pool is the sole concurrency throttle; the orchestrator dispatches
// every unit immediately and lets the client gate them.
func New(client Resolver, logger *zap.Logger, opts Options) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Orchestrator{
		client:   client,
		logger:   logger,
		reporter: reporter,
		opts:     opts,
	}
}

// Run resolves every affiliation not already covered by the checkpoint and
// returns the run summary. Per-affiliation failures are isolated to failure
// records; only sink and checkpoint I/O faults make Run return an error.
func (o *Orchestrator) Run(ctx context.Context, affiliations []string) (Summary, error) {
	runID := uuid.New().String()[:8]
	logger := o.logger.With(zap.String("run_id", runID))

	checkpointPath := filepath.Join(o.opts.OutputDir, CheckpointFile)
	var cp *checkpoint.Checkpoint
	if o.opts.Resume {
		loaded, err := checkpoint.Load(checkpointPath)
		if err != nil {
			return Summary{}, fmt.Errorf("load checkpoint: %w", err)
		}
		cp = loaded
	} else {
		cp = checkpoint.New(checkpointPath)
	}

	type unit struct {
		affiliation string
		hash        string
	}
	pending := make([]unit, 0, len(affiliations))
	for _, aff := range affiliations {
		hash := record.Fingerprint(aff)
		if cp.IsProcessed(hash) {
			continue
		}
		pending = append(pending, unit{affiliation: aff, hash: hash})
	}

	summary := Summary{
		Total:   len(affiliations),
		Skipped: len(affiliations) - len(pending),
	}

	if summary.Skipped > 0 {
		logger.Info("resuming resolution run",
			zap.Int("already_processed", cp.Len()),
			zap.Int("remaining", len(pending)))
	} else {
		logger.Info("starting resolution run", zap.Int("remaining", len(pending)))
	}

	if len(pending) == 0 {
		logger.Info("no affiliations to process")
		return summary, nil
	}

	matches, err := openSink(filepath.Join(o.opts.OutputDir, MatchesFile), o.opts.Resume)
	if err != nil {
		return summary, err
	}
	failed, err := openSink(filepath.Join(o.opts.OutputDir, FailedFile), o.opts.Resume)
	if err != nil {
		matches.close() //nolint:errcheck
		return summary, err
	}

	var (
		matchedCount atomic.Int64
		failedCount  atomic.Int64
		sinkErrMu    sync.Mutex
		sinkErr      error
	)
	recordSinkErr := func(err error) {
		sinkErrMu.Lock()
		defer sinkErrMu.Unlock()
		if sinkErr == nil {
			sinkErr = err
		}
	}

	var wg sync.WaitGroup
	for _, u := range pending {
		wg.Add(1)
		go func(u unit) {
			defer wg.Done()
			defer o.reporter.Increment()

			id, found, err := o.client.Resolve(ctx, u.affiliation, o.opts.BroadFallback)

			var writeErr error
			switch {
			case err != nil:
				failedCount.Add(1)
				writeErr = failed.write(record.MatchFailed{
					Affiliation:     u.affiliation,
					AffiliationHash: u.hash,
					Error:           err.Error(),
				})
			case !found:
				failedCount.Add(1)
				writeErr = failed.write(record.MatchFailed{
					Affiliation:     u.affiliation,
					AffiliationHash: u.hash,
					Error:           NoMatchReason,
				})
			default:
				matchedCount.Add(1)
				writeErr = matches.write(record.Match{
					Affiliation:     u.affiliation,
					AffiliationHash: u.hash,
					RORID:           id,
				})
			}

			if writeErr != nil {
				// An outcome that was not durably recorded must not be
				// checkpointed, or it would be lost on resume.
				logger.Error("sink write failed",
					zap.String("affiliation_hash", u.hash),
					zap.Error(writeErr))
				recordSinkErr(writeErr)
				return
			}
			cp.MarkProcessed(u.hash)
		}(u)
	}
	wg.Wait()

	if err := matches.close(); err != nil {
		recordSinkErr(fmt.Errorf("flush matches: %w", err))
	}
	if err := failed.close(); err != nil {
		recordSinkErr(fmt.Errorf("flush failures: %w", err))
	}

	summary.Matched = int(matchedCount.Load())
	summary.Failed = int(failedCount.Load())

	// A failed flush means some outcomes never reached disk, so the
	// checkpoint cannot be trusted. Skip saving it; the next run
	// re-queries anything that was not already checkpointed.
	sinkErrMu.Lock()
	firstErr := sinkErr
	sinkErrMu.Unlock()
	if firstErr != nil {
		return summary, firstErr
	}

	if err := cp.Save(); err != nil {
		return summary, fmt.Errorf("save checkpoint: %w", err)
	}

	logger.Info("resolution run complete",
		zap.Int("matched", summary.Matched),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped))

	return summary, nil
}
