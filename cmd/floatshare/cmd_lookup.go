package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"sp1500_float/pkg/core/ingest"

	"github.com/spf13/cobra"
)

var constituentsFlags struct {
	limit  int
	asJSON bool
}

var constituentsCmd = &cobra.Command{
	Use:   "constituents",
	Short: "List the S&P 500, 400 and 600 constituents",
	Args:  cobra.NoArgs,
	RunE:  runConstituents,
}

var filingURLCmd = &cobra.Command{
	Use:   "filing-url <ticker>",
	Short: "Resolve a ticker to its latest DEF 14A proxy statement",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilingURL,
}

func init() {
	f := constituentsCmd.Flags()
	f.IntVar(&constituentsFlags.limit, "limit", 0, "Show at most N constituents (0 = all)")
	f.BoolVar(&constituentsFlags.asJSON, "json", false, "Print JSON instead of a table")
}

func runConstituents(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	cs, err := ingest.NewConstituentsClient(a.cfg.SEC.UserAgent).Fetch(cmd.Context())
	if err != nil {
		return err
	}
	if n := constituentsFlags.limit; n > 0 && n < len(cs) {
		cs = cs[:n]
	}
	if constituentsFlags.asJSON {
		return printJSON(os.Stdout, cs)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tSECURITY\tINDEX\tSECTOR")
	for _, c := range cs {
		fmt.Fprintf(tw, "%s\t%s\tS&P %s\t%s\n", c.Symbol, c.Security, c.IndexSeries, c.GICSSector)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d constituents\n", len(cs))
	return nil
}

func runFilingURL(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	filing, err := a.lookup().Resolve(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Company:   %s\n", filing.CompanyName)
	fmt.Printf("CIK:       %s\n", filing.CIK)
	fmt.Printf("Form:      %s\n", filing.FormType)
	fmt.Printf("Filed:     %s\n", filing.FilingDate.Format("2006-01-02"))
	fmt.Printf("Accession: %s\n", filing.AccessionNumber)
	fmt.Printf("URL:       %s\n", filing.URL)
	return nil
}
