package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

var rootCmd = &cobra.Command{
	Use:   "floatshare",
	Short: "Float-adjusted share analysis for S&P 1500 constituents",
	Long: `floatshare reads the S&P float adjustment methodology and each company's
latest DEF 14A proxy statement, extracts the strategic holdings, and computes
float shares and the adjusted float percentage.

Configuration is read from floatshare.yaml (or --config), a .env file and
FLOATSHARE_* environment variables.`,
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configPath, "config", "", "Config file (default: floatshare.yaml in . or ./config)")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "Override log.level (trace, debug, info, warn, error)")
	pf.StringVar(&rootFlags.logFormat, "log-format", "", "Override log.format (console, json)")

	rootCmd.AddCommand(constituentsCmd)
	rootCmd.AddCommand(filingURLCmd)
	rootCmd.AddCommand(methodologyCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(documentsCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
