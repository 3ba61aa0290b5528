package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/ackaudit/pkg/corpus"
)

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Manage the reference acknowledgement corpus",
}

var corpusLoadCmd = &cobra.Command{
	Use:   "load [phrases.txt|-]",
	Short: "Embed and store reference phrases, one per line",
	Args:  cobra.ExactArgs(1),
	RunE:  runCorpusLoad,
}

var corpusCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of stored reference phrases",
	Args:  cobra.NoArgs,
	RunE:  runCorpusCount,
}

func init() {
	corpusCmd.AddCommand(corpusLoadCmd, corpusCountCmd)
	rootCmd.AddCommand(corpusCmd)
}

func runCorpusLoad(cmd *cobra.Command, args []string) error {
	var r io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open phrases: %w", err)
		}
		defer f.Close()
		r = f
	}
	phrases, err := corpus.ReadPhrases(r)
	if err != nil {
		return err
	}
	if len(phrases) == 0 {
		return fmt.Errorf("no phrases in %s", args[0])
	}

	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	bar := getProgressBar(len(phrases), "Embedding phrases")
	n, err := a.Loader(func(done, _ int) { bar.Set(done) }).Load(cmd.Context(), phrases)
	bar.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	color.Green("✓ Stored %d reference phrases", n)
	return nil
}

func runCorpusCount(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.Store.Count(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to count phrases: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), n)
	return nil
}
