package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/querygen"
	"github.com/brunobiangulo/querygen/timewindow"
)

var (
	resolveLabel string
	resolveFile  string
	resolveDate  string

	generateLabel string
	generateDate  string

	historyLimit int
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve extraction text from a file or stdin",
	Example: `  echo "OUTPUT: (['Laser Cutter'], ['idle_time'], <last, 2, weeks>)" | querygen resolve --label kpi_calc
  querygen resolve --label report --file extraction.txt -o yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		label, err := querygen.ParseLabel(resolveLabel)
		if err != nil {
			return err
		}
		text, err := readInput(cmd.InOrStdin(), resolveFile)
		if err != nil {
			return err
		}
		opts, err := dateOption(resolveDate)
		if err != nil {
			return err
		}

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.Resolve(cmd.Context(), label, text, opts...)
		if err != nil {
			return err
		}
		return printOutput(cmd.OutOrStdout(), outputFmt, res)
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate QUESTION",
	Short: "Ask the chat model for extraction text and resolve it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		label, err := querygen.ParseLabel(generateLabel)
		if err != nil {
			return err
		}
		opts, err := dateOption(generateDate)
		if err != nil {
			return err
		}

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.Generate(cmd.Context(), strings.Join(args, " "), label, opts...)
		if err != nil {
			return err
		}
		return printOutput(cmd.OutOrStdout(), outputFmt, res)
	},
}

var importCmd = &cobra.Command{
	Use:   "import PATH",
	Short: "Replace the stored vocabulary with an ontology file (.rdf/.owl, .xlsx, .yaml)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		stats, err := e.ImportOntology(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printOutput(cmd.OutOrStdout(), outputFmt, stats)
	},
}

var vocabCmd = &cobra.Command{
	Use:   "vocab",
	Short: "List the machines and KPIs extraction text is filtered against",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		v, err := e.Vocabulary(cmd.Context())
		if err != nil {
			return err
		}
		return printOutput(cmd.OutOrStdout(), outputFmt, v)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently logged resolutions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		entries, err := e.History(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		return printOutput(cmd.OutOrStdout(), outputFmt, entries)
	},
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveLabel, "label", "l", "", "Request label: kpi_calc, predictions or report")
	resolveCmd.Flags().StringVarP(&resolveFile, "file", "f", "", "Read extraction text from this file instead of stdin")
	resolveCmd.Flags().StringVar(&resolveDate, "date", "", "Reference date YYYY-MM-DD (defaults to the configured one)")
	_ = resolveCmd.MarkFlagRequired("label")

	generateCmd.Flags().StringVarP(&generateLabel, "label", "l", "", "Request label: kpi_calc, predictions or report")
	generateCmd.Flags().StringVar(&generateDate, "date", "", "Reference date YYYY-MM-DD (defaults to the configured one)")
	_ = generateCmd.MarkFlagRequired("label")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show")
}

func readInput(stdin io.Reader, path string) (string, error) {
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
		return string(b), nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(b), nil
}

func dateOption(s string) ([]querygen.ResolveOption, error) {
	if s == "" {
		return nil, nil
	}
	t, err := timewindow.ParseDate(s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return []querygen.ResolveOption{querygen.WithReferenceDate(t)}, nil
}

func printOutput(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q: want json or yaml", format)
	}
}
