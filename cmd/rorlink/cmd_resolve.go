package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rorlink/internal/config"
	"rorlink/internal/extract"
	"rorlink/internal/resolve"
	"rorlink/internal/ror"
)

var (
	resolveInput       string
	resolveOutput      string
	resolveBaseURL     string
	resolveConcurrency int
	resolveTimeout     time.Duration
	resolveResume      bool
	resolveBroad       bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve unique affiliations against the ROR organizations API",
	Long: `Reads unique_affiliations.json from the input directory and resolves every
affiliation not already covered by the checkpoint, writing:

  ror_matches.jsonl          one record per resolved affiliation
  ror_matches.failed.jsonl   failures, including the "no match found" case
  ror_matches.checkpoint     fingerprints of all terminal outcomes

With --resume, prior outputs are appended to and checkpointed affiliations
are skipped, making long runs safe to interrupt.`,
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveInput, "input", "i", "", "directory containing unique_affiliations.json")
	resolveCmd.Flags().StringVarP(&resolveOutput, "output", "o", "", "directory for match, failure, and checkpoint files")
	resolveCmd.Flags().StringVarP(&resolveBaseURL, "base-url", "u", "", "ROR API base URL")
	resolveCmd.Flags().IntVarP(&resolveConcurrency, "concurrency", "c", 0, "maximum in-flight resolutions")
	resolveCmd.Flags().DurationVarP(&resolveTimeout, "timeout", "t", 0, "per-request HTTP timeout")
	resolveCmd.Flags().BoolVarP(&resolveResume, "resume", "r", false, "resume from an existing checkpoint")
	resolveCmd.Flags().BoolVarP(&resolveBroad, "broad-fallback", "f", false, "fall back to the broad affiliation search")
	_ = resolveCmd.MarkFlagRequired("input")
	_ = resolveCmd.MarkFlagRequired("output")
}

// loadAffiliations reads the unique affiliation list produced by extract.
func loadAffiliations(dir string) ([]string, error) {
	path := filepath.Join(dir, extract.AffiliationsFile)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var affiliations []string
	if err := json.NewDecoder(f).Decode(&affiliations); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return affiliations, nil
}

// progressLogger reports batch progress through the structured logger at a
// fixed completion interval.
type progressLogger struct {
	logger   *zap.Logger
	interval int64
	done     atomic.Int64
}

func (p *progressLogger) Increment() {
	n := p.done.Add(1)
	if n%p.interval == 0 {
		p.logger.Info("resolution progress", zap.Int64("completed", n))
	}
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("base-url") {
		cfg.Registry.BaseURL = resolveBaseURL
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Registry.Concurrency = resolveConcurrency
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Registry.Timeout = resolveTimeout.String()
	}
	if cmd.Flags().Changed("broad-fallback") {
		cfg.Registry.BroadFallback = resolveBroad
	}

	affiliations, err := loadAffiliations(resolveInput)
	if err != nil {
		return err
	}
	logger.Info("loaded affiliations", zap.Int("count", len(affiliations)))

	if err := os.MkdirAll(resolveOutput, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	client := ror.New(
		cfg.Registry.BaseURL,
		cfg.Registry.Concurrency,
		cfg.Registry.RequestTimeout(),
		logger,
	)
	orch := resolve.New(client, logger, resolve.Options{
		OutputDir:     resolveOutput,
		Resume:        resolveResume,
		BroadFallback: cfg.Registry.BroadFallback,
		Reporter:      &progressLogger{logger: logger, interval: 500},
	})

	summary, err := orch.Run(cmd.Context(), affiliations)
	if err != nil {
		return err
	}

	fmt.Println(renderSummary("Resolution complete", [][2]string{
		{"Affiliations", fmt.Sprintf("%d", summary.Total)},
		{"Skipped (checkpointed)", fmt.Sprintf("%d", summary.Skipped)},
		{"Matched", fmt.Sprintf("%d", summary.Matched)},
		{"Failed / no match", fmt.Sprintf("%d", summary.Failed)},
	}))
	return nil
}
