package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rorlink/internal/config"
	"rorlink/internal/extract"
)

var (
	extractInput     string
	extractOutput    string
	extractWorkers   int
	extractBatchSize int
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract unique affiliations and DOI/author relationships from DataCite dumps",
	Long: `Scans the input directory recursively for *.jsonl.gz DataCite dump files
and produces two outputs in the output directory:

  doi_author_affiliations.jsonl   one record per (DOI, author, affiliation)
  unique_affiliations.json        deduplicated affiliation strings for resolve`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractInput, "input", "i", "", "directory containing *.jsonl.gz dump files")
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "working directory for output files")
	extractCmd.Flags().IntVarP(&extractWorkers, "workers", "w", 0, "concurrent file parsers (0 = number of CPUs)")
	extractCmd.Flags().IntVarP(&extractBatchSize, "batch-size", "b", 0, "records per writer batch")
	_ = extractCmd.MarkFlagRequired("input")
	_ = extractCmd.MarkFlagRequired("output")
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("workers") {
		cfg.Extract.Workers = extractWorkers
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.Extract.BatchSize = extractBatchSize
	}

	stats, err := extract.Run(cmd.Context(), logger, extract.Options{
		InputDir:  extractInput,
		OutputDir: extractOutput,
		Workers:   cfg.Extract.Workers,
		BatchSize: cfg.Extract.BatchSize,
	})
	if err != nil {
		return err
	}

	fmt.Println(renderSummary("Extraction complete", [][2]string{
		{"Dump files", fmt.Sprintf("%d", stats.Files)},
		{"Relationship records", fmt.Sprintf("%d", stats.Records)},
		{"Unique affiliations", fmt.Sprintf("%d", stats.UniqueAffiliations)},
	}))
	return nil
}
