package main

import (
	"fmt"
	"os"
	"strings"

	"sp1500_float/pkg/core/errs"
	"sp1500_float/pkg/core/ingest"
	"sp1500_float/pkg/models"

	"github.com/spf13/cobra"
)

var methodologyFlags struct {
	document string
}

var methodologyCmd = &cobra.Command{
	Use:   "methodology",
	Short: "Summarize the float methodology and its D&O threshold",
	Long: `Read the S&P float adjustment methodology document (methodology.document,
or --document) and print the D&O threshold and the category definitions.`,
	Args: cobra.NoArgs,
	RunE: runMethodology,
}

var analyzeFlags struct {
	proxy   string
	company string
	quiet   bool
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <ticker>",
	Short: "Compute float shares for one ticker",
	Long: `Resolve the ticker's latest DEF 14A, extract the ownership breakdown, apply
the methodology and print the float share result.

Usage:
  floatshare analyze AAPL
  floatshare analyze AAPL --proxy ./doc_assets/aapl_def14a.htm   # skip the EDGAR lookup`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	methodologyCmd.Flags().StringVar(&methodologyFlags.document, "document", "", "Methodology document path or URL (default: methodology.document)")

	f := analyzeCmd.Flags()
	f.StringVar(&analyzeFlags.proxy, "proxy", "", "Proxy statement path or URL to use instead of the EDGAR lookup")
	f.StringVar(&analyzeFlags.company, "company", "", "Company name recorded with --proxy")
	f.BoolVarP(&analyzeFlags.quiet, "quiet", "q", false, "Print only the 15-key result")
}

func runMethodology(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	location := methodologyFlags.document
	if location == "" {
		location = a.cfg.Methodology.Document
	}
	doc, err := a.documents().Fetch(cmd.Context(), location)
	if err != nil {
		return err
	}
	an, err := a.analyzer(cmd.Context())
	if err != nil {
		return err
	}
	rules, err := an.Analyze(cmd.Context(), doc)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, rules)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.orchestrator(cmd.Context())
	if err != nil {
		return err
	}

	ticker := ingest.NormalizeTicker(args[0])
	var report *models.AnalysisReport
	if analyzeFlags.proxy != "" {
		report, err = orch.AnalyzeFiling(cmd.Context(), &ingest.Filing{
			Ticker:      ticker,
			CompanyName: analyzeFlags.company,
			FormType:    ingest.FormProxy,
			URL:         analyzeFlags.proxy,
		})
	} else {
		report, err = orch.AnalyzeOne(cmd.Context(), ticker)
	}
	if err != nil {
		a.logger.Error().Str("ticker", ticker).Str("stage", string(errs.StageOf(err))).Err(err).Msg("analysis failed")
		return err
	}

	if analyzeFlags.quiet {
		return printJSON(os.Stdout, report.Result)
	}
	if err := printJSON(os.Stdout, report); err != nil {
		return err
	}
	if len(report.Warnings) > 0 {
		codes := make([]string, 0, len(report.Warnings))
		for _, w := range report.Warnings {
			codes = append(codes, string(w.Code))
		}
		fmt.Fprintf(os.Stderr, "%d warning(s): %s\n", len(report.Warnings), strings.Join(codes, ", "))
	}
	return nil
}
