package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List downloaded proxy documents",
	Args:  cobra.NoArgs,
	RunE:  runDocuments,
}

var cleanupFlags struct {
	days      int
	keepCache bool
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove downloaded documents and cached extractions older than N days",
	Args:  cobra.NoArgs,
	RunE:  runCleanup,
}

func init() {
	f := cleanupCmd.Flags()
	f.IntVar(&cleanupFlags.days, "days", 30, "Remove entries older than this many days")
	f.BoolVar(&cleanupFlags.keepCache, "keep-cache", false, "Only remove documents, leave the extraction cache alone")
}

func runDocuments(_ *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	assets, err := a.docs.List()
	if err != nil {
		return err
	}
	if len(assets) == 0 {
		fmt.Printf("No documents in %s\n", a.docs.Dir())
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSIZE\tMODIFIED")
	var total int64
	for _, as := range assets {
		total += as.Size
		fmt.Fprintf(tw, "%s\t%s\t%s\n", as.Name, humanBytes(as.Size), as.ModTime.Format("2006-01-02 15:04"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d documents, %s in %s\n", len(assets), humanBytes(total), a.docs.Dir())
	return nil
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	if cleanupFlags.days < 0 {
		return fmt.Errorf("--days must not be negative, got %d", cleanupFlags.days)
	}
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	cutoff := time.Now().AddDate(0, 0, -cleanupFlags.days)
	removed, err := a.docs.Cleanup(cutoff)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d document(s) older than %d days\n", removed, cleanupFlags.days)

	if cleanupFlags.keepCache {
		return nil
	}
	c, err := a.extractionCache(cmd.Context())
	if err != nil {
		return err
	}
	pruned, err := c.Prune(cmd.Context(), cutoff)
	if err != nil {
		return err
	}
	fmt.Printf("Pruned %d cached extraction(s)\n", pruned)
	return nil
}
