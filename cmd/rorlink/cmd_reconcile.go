package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rorlink/internal/reconcile"
)

var (
	reconcileInput   string
	reconcileOutput  string
	reconcileRORData string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile ROR matches back onto DOI/author records",
	Long: `Joins the matches produced by resolve onto the relationship records
produced by extract, writing enriched DataCite creator metadata plus reports
on pre-existing ROR assignments and on disagreements between those
assignments and this pipeline's matches.`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().StringVarP(&reconcileInput, "input", "i", "", "directory with relationship and match files")
	reconcileCmd.Flags().StringVarP(&reconcileOutput, "output", "o", "enriched_records.jsonl", "output file for enriched records")
	reconcileCmd.Flags().StringVarP(&reconcileRORData, "ror-data", "d", "", "path to the ROR data dump JSON file")
	_ = reconcileCmd.MarkFlagRequired("input")
	_ = reconcileCmd.MarkFlagRequired("ror-data")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	stats, err := reconcile.Run(logger, reconcile.Options{
		InputDir:    reconcileInput,
		OutputPath:  reconcileOutput,
		RORDataPath: reconcileRORData,
	})
	if err != nil {
		return err
	}

	fmt.Println(renderSummary("Reconciliation complete", [][2]string{
		{"Enriched records", fmt.Sprintf("%d", stats.Enriched)},
		{"Existing assignments", fmt.Sprintf("%d", stats.Existing)},
		{"User disagreements", fmt.Sprintf("%d", stats.UserDisagreements)},
		{"Match disagreements", fmt.Sprintf("%d", stats.MatchDisagreements)},
	}))
	return nil
}
