package commands

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/payrecon/internal/importer"
	"github.com/cleared-dev/payrecon/internal/importlog"
	"github.com/cleared-dev/payrecon/internal/model"
	"github.com/cleared-dev/payrecon/internal/records"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func newImportCommand(opts *rootOptions) *cobra.Command {
	var dryRun, inbox, quiet bool

	cmd := &cobra.Command{
		Use:   "import [file...]",
		Short: "Import bank export files",
		Long: `Import bank export files (CSV or XLSX) into the payments table,
matching each payment to a client. With --inbox every export in import/
is imported and moved to import/processed/ afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !inbox {
				return errors.New("no files given (pass files or --inbox)")
			}

			a, err := opts.loadApp(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.close() }()

			files := make([]string, 0, len(args))
			files = append(files, args...)
			if inbox {
				found, err := importer.Scan(a.root)
				if err != nil {
					return err
				}
				for _, f := range found {
					files = append(files, f.Path)
				}
				if len(found) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to import.")
				}
			}

			return runImport(cmd, a, files, importOptions{dryRun: dryRun, inbox: inbox, quiet: quiet})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "match and report without writing records")
	cmd.Flags().BoolVar(&inbox, "inbox", false, "import every export in import/")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "hide the progress bar")

	return cmd
}

type importOptions struct {
	dryRun bool
	inbox  bool
	quiet  bool
}

func runImport(cmd *cobra.Command, a *app, files []string, opts importOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var store records.Store = a.store
	var dry *records.DryRunStore
	if opts.dryRun {
		dry = records.NewDryRunStore(a.store)
		store = dry
	}
	matcher := a.newMatcher(store)
	im := a.newImporter(store, matcher)

	var failedFiles []string
	for _, path := range files {
		name := filepath.Base(path)

		rows, err := importer.ParseFile(path)
		if err != nil {
			fmt.Fprintf(out, "%s %s: %v\n", errStyle.Render("✗"), name, err)
			failedFiles = append(failedFiles, name)
			continue
		}

		var bar *progressbar.ProgressBar
		if !opts.quiet && len(rows) > 0 {
			bar = newProgressBar(cmd.ErrOrStderr(), len(rows), name)
			im.OnRow = func(done, _ int) { _ = bar.Set(done) }
		} else {
			im.OnRow = nil
		}

		result := im.Import(ctx, rows)
		if bar != nil {
			_ = bar.Finish()
		}
		a.log.Info().
			Str("file", name).
			Int("imported", result.Imported).
			Int("failed", result.Failed).
			Msg("Import finished")

		fmt.Fprintln(out, renderSummary(name, result, opts.dryRun))

		if opts.dryRun {
			continue
		}
		if err := importlog.Append(a.root, []importlog.Entry{importlog.NewEntry(time.Now().UTC(), name, result)}); err != nil {
			a.log.Warn().Err(err).Msg("Failed to write import log")
		}
		if opts.inbox && isInboxFile(a.root, path) {
			if result.Total > 0 && result.Failed == result.Total {
				fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("Every row of %s failed; leaving it in import/.", name)))
				continue
			}
			if err := importer.MarkProcessed(a.root, name); err != nil {
				return err
			}
		}
	}

	if dry != nil {
		fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf(
			"Dry run: %d payments and %d client mappings were not written.",
			dry.Pending(a.cfg.AITable.Tables.Payments),
			dry.Pending(a.cfg.AITable.Tables.ClientMappings),
		)))
	}

	if len(failedFiles) > 0 {
		return fmt.Errorf("could not read %s", strings.Join(failedFiles, ", "))
	}
	return nil
}

func isInboxFile(root, path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return filepath.Dir(abs) == filepath.Join(root, "import")
}

func newProgressBar(w io.Writer, total int, name string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan]"+name+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(w)
		}),
	)
}

// renderSummary formats one ImportResult as a bordered box.
func renderSummary(name string, r model.ImportResult, dryRun bool) string {
	title := name
	if dryRun {
		title += " (dry run)"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Rows:      %d\n", r.Total)
	fmt.Fprintf(&b, "Imported:  %s\n", okStyle.Render(fmt.Sprint(r.Imported)))
	fmt.Fprintf(&b, "Matched:   %d\n", r.Matched)
	fmt.Fprintf(&b, "Unmatched: %s\n", warnStyle.Render(fmt.Sprint(r.Unmatched)))
	fmt.Fprintf(&b, "Failed:    %s", errStyle.Render(fmt.Sprint(r.Failed)))
	for _, e := range r.Errors {
		b.WriteString("\n")
		b.WriteString(errStyle.Render("  " + e))
	}
	return boxStyle.Render(b.String())
}
