package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/ackaudit/internal/app"
	"github.com/xhad/ackaudit/internal/models"
	"github.com/xhad/ackaudit/pkg/report"
	"github.com/xhad/ackaudit/pkg/sink"
	"github.com/xhad/ackaudit/pkg/watch"
)

var (
	reportPath string
	xlsxPath   string
	noScan     bool
)

var auditCmd = &cobra.Command{
	Use:   "audit [pdf|dir|url...]",
	Short: "Run the full audit over files, directories and URLs",
	Long: `Audit extracts, verifies and highlights every PDF given. Directories are
searched recursively; URLs are fetched and same-host PDF links are followed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAudit,
}

var watchCmd = &cobra.Command{
	Use:   "watch [dir...]",
	Short: "Audit PDFs as they appear in directories",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWatch,
}

func init() {
	auditCmd.Flags().StringVarP(&reportPath, "report", "r", "", "write the JSON report here instead of stdout")
	auditCmd.Flags().StringVar(&xlsxPath, "xlsx", "", "also write an XLSX report")
	watchCmd.Flags().BoolVar(&noScan, "no-scan", false, "skip PDFs already present")

	rootCmd.AddCommand(auditCmd, watchCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	docs, entries := collect(ctx, a, args)
	if len(docs) == 0 && len(entries) == 0 {
		return fmt.Errorf("no PDFs found")
	}

	bar := getProgressBar(len(docs), "Auditing")
	for _, doc := range docs {
		if ctx.Err() != nil {
			break
		}
		bar.Describe(color.BlueString("Auditing %s", doc.Name))
		entries = append(entries, auditDocument(ctx, a, doc))
		bar.Add(1)
	}
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	if err := writeReports(cmd, entries); err != nil {
		return err
	}
	printSummary(entries)
	return ctx.Err()
}

// collect loads every input. Inputs that cannot be read become failed entries.
func collect(ctx context.Context, a *app.App, args []string) ([]models.Document, []report.Entry) {
	var docs []models.Document
	var failed []report.Entry

	for _, arg := range args {
		if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
			spinner := getSpinner(fmt.Sprintf("Fetching %s...", arg))
			fetched, err := a.Fetcher.Fetch(ctx, arg)
			spinner.Finish()
			if err != nil {
				failed = append(failed, report.Failed(arg, err))
				continue
			}
			docs = append(docs, fetched...)
			continue
		}

		info, err := os.Stat(arg)
		if err != nil {
			failed = append(failed, report.Failed(arg, err))
			continue
		}
		if !info.IsDir() {
			doc, err := readDocument(arg)
			if err != nil {
				failed = append(failed, report.Failed(arg, err))
				continue
			}
			docs = append(docs, doc)
			continue
		}

		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".pdf") {
				return nil
			}
			doc, err := readDocument(path)
			if err != nil {
				failed = append(failed, report.Failed(path, err))
				return nil
			}
			docs = append(docs, doc)
			return nil
		})
		if err != nil {
			failed = append(failed, report.Failed(arg, err))
		}
	}
	return docs, failed
}

func readDocument(path string) (models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return models.Document{Name: path, Bytes: data}, nil
}

// auditDocument runs one document and stores its annotated copy when anything was highlighted.
func auditDocument(ctx context.Context, a *app.App, doc models.Document) report.Entry {
	res, err := a.Auditor.Audit(ctx, doc, nil)
	if err != nil {
		log.Error().Err(err).Str("document", doc.Name).Msg("audit failed")
		return report.Failed(doc.Name, err)
	}

	location := ""
	if res.Highlight.Located > 0 {
		location, err = a.Sink.Put(ctx, sink.AnnotatedName(doc.Name), res.Annotated)
		if err != nil {
			log.Error().Err(err).Str("document", doc.Name).Msg("failed to store annotated document")
			location = ""
		}
	}
	return report.FromResult(res, location)
}

func writeReports(cmd *cobra.Command, entries []report.Entry) error {
	if reportPath == "" {
		if err := report.WriteJSON(cmd.OutOrStdout(), entries); err != nil {
			return err
		}
	} else {
		f, err := os.Create(reportPath)
		if err != nil {
			return fmt.Errorf("failed to create report: %w", err)
		}
		defer f.Close()
		if err := report.WriteJSON(f, entries); err != nil {
			return err
		}
	}

	if xlsxPath != "" {
		data, err := report.XLSX(entries)
		if err != nil {
			return err
		}
		if err := os.WriteFile(xlsxPath, data, 0o644); err != nil {
			return fmt.Errorf("failed to write xlsx report: %w", err)
		}
	}
	return nil
}

func printSummary(entries []report.Entry) {
	var yes, no, failed int
	for _, e := range entries {
		switch {
		case e.Error != "":
			failed++
		case e.Result == models.VerdictYes:
			yes++
		default:
			no++
		}
	}
	fmt.Fprintf(os.Stderr, "%s %d acknowledged  %s %d not acknowledged  %s %d failed\n",
		color.GreenString("✓"), yes, color.YellowString("·"), no, color.RedString("✗"), failed)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var ignore []string
	if abs, err := filepath.Abs(cfg.Output.Dir); err == nil {
		ignore = append(ignore, abs)
	}
	roots := make([]string, 0, len(args))
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", arg, err)
		}
		roots = append(roots, abs)
	}

	paths, errs, err := watch.Start(ctx, watch.WatchConfig{
		Roots:       roots,
		InitialScan: !noScan,
		Debounce:    time.Second,
		Ignore:      ignore,
	}, log)
	if err != nil {
		return err
	}
	color.Cyan("Watching %s", strings.Join(roots, ", "))

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watcher error")
		case path, ok := <-paths:
			if !ok {
				return nil
			}
			doc, err := readDocument(path)
			if err != nil {
				log.Warn().Err(err).Msg("skipping document")
				continue
			}
			e := auditDocument(ctx, a, doc)
			switch {
			case e.Error != "":
				color.Red("✗ %s: %s", e.Document, e.Error)
			case e.Result == models.VerdictYes:
				color.Green("✓ %s: Yes (%.2f) %s", e.Document, e.Confidence, e.Output)
			default:
				color.Yellow("· %s: No (%.2f)", e.Document, e.Confidence)
			}
		}
	}
}
