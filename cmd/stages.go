package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/ackaudit/internal/app"
	"github.com/xhad/ackaudit/internal/models"
	"github.com/xhad/ackaudit/pkg/pipeline"
	"github.com/xhad/ackaudit/pkg/sink"
)

var (
	stageOutput     string
	extractionPath  string
	verdictPath     string
	includePageText bool
)

var extractCmd = &cobra.Command{
	Use:   "extract [pdf]",
	Short: "Extract metadata and sentences from a PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

var verifyCmd = &cobra.Command{
	Use:   "verify [extraction.json]",
	Short: "Verify the sentences of an extraction against the reference corpus",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

var highlightCmd = &cobra.Command{
	Use:   "highlight [pdf]",
	Short: "Highlight the verified sentences of a verdict in a PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  runHighlight,
}

func init() {
	extractCmd.Flags().StringVarP(&stageOutput, "output", "o", "", "write JSON here instead of stdout")
	extractCmd.Flags().BoolVar(&includePageText, "pages", false, "include per-page blocks and text")
	verifyCmd.Flags().StringVarP(&stageOutput, "output", "o", "", "write JSON here instead of stdout")
	highlightCmd.Flags().StringVarP(&stageOutput, "output", "o", "", "annotated PDF path (default <name>_highlighted.pdf)")
	highlightCmd.Flags().StringVar(&extractionPath, "extraction", "", "extraction JSON from the extract command")
	highlightCmd.Flags().StringVar(&verdictPath, "verdict", "", "verdict JSON from the verify command")
	_ = highlightCmd.MarkFlagRequired("verdict")

	rootCmd.AddCommand(extractCmd, verifyCmd, highlightCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read pdf: %w", err)
	}
	ext, err := app.NewLocal(cfg, nil, log).Extract(cmd.Context(), data)
	if err != nil {
		return err
	}
	if !includePageText {
		ext.Pages = nil
	}
	return writeJSON(cmd, stageOutput, ext)
}

func runVerify(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read extraction: %w", err)
	}
	ext, err := pipeline.DecodeExtraction(data)
	if err != nil {
		return err
	}

	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	spinner := getSpinner(fmt.Sprintf("Verifying %d sentences...", len(ext.Sentences)))
	verdict, err := a.Auditor.Verify(cmd.Context(), ext)
	spinner.Finish()
	if err != nil {
		return err
	}
	return writeJSON(cmd, stageOutput, verdict)
}

func runHighlight(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read pdf: %w", err)
	}

	var verdict models.DocumentVerdict
	if err := readJSON(verdictPath, &verdict); err != nil {
		return err
	}
	var sentences []models.Sentence
	if extractionPath != "" {
		raw, err := os.ReadFile(extractionPath)
		if err != nil {
			return fmt.Errorf("failed to read extraction: %w", err)
		}
		ext, err := pipeline.DecodeExtraction(raw)
		if err != nil {
			return err
		}
		sentences = ext.Sentences
	}

	out := app.NewLocal(cfg, nil, log).Highlight(cmd.Context(), data, sentences, verdict.Verifications)

	path := stageOutput
	if path == "" {
		path = sink.AnnotatedName(args[0])
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	color.Green("✓ Wrote %s", path)
	return nil
}

func writeJSON(cmd *cobra.Command, path string, v any) error {
	var w io.Writer = cmd.OutOrStdout()
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
