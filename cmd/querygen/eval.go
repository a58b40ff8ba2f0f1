package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/querygen/eval"
)

var (
	evalConcurrency int
	evalReportFile  string
)

var evalCmd = &cobra.Command{
	Use:   "eval [DATASET]",
	Short: "Score the chat model's extractions against a dataset of expected records",
	Long: `Run every question in DATASET (YAML or JSON) through generate and compare
the resolved records with the expected ones. Without DATASET a small
built-in plant dataset is used. A text report is printed unless --output
is given explicitly.`,
	Example: `  querygen eval
  querygen eval testdata/plant.yaml --concurrency 4 --report-file run.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds := eval.PlantDataset()
		if len(args) == 1 {
			var err error
			if ds, err = eval.LoadDataset(args[0]); err != nil {
				return err
			}
		}

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		ev := eval.NewEvaluator(e)
		ev.SetConcurrency(evalConcurrency)

		slog.Info("eval: starting", "dataset", ds.Name, "tests", len(ds.Tests), "concurrency", evalConcurrency)
		report, err := ev.Run(cmd.Context(), ds)
		if err != nil {
			return err
		}

		if evalReportFile != "" {
			b, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding report: %w", err)
			}
			if err := os.WriteFile(evalReportFile, b, 0o644); err != nil {
				return fmt.Errorf("writing report: %w", err)
			}
			slog.Info("eval: report written", "path", evalReportFile)
		}

		if cmd.Flags().Changed("output") {
			return printOutput(cmd.OutOrStdout(), outputFmt, report)
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), eval.FormatReport(report))
		return err
	},
}

func init() {
	evalCmd.Flags().IntVarP(&evalConcurrency, "concurrency", "c", 1, "Number of questions evaluated at once")
	evalCmd.Flags().StringVar(&evalReportFile, "report-file", "", "Also write the JSON report to this path")
}
