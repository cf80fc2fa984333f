package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/wsgrep/internal/config"
	"github.com/fyrsmithlabs/wsgrep/internal/logging"
	"github.com/fyrsmithlabs/wsgrep/internal/pattern"
	"github.com/fyrsmithlabs/wsgrep/internal/scanner"
	"github.com/fyrsmithlabs/wsgrep/internal/search"
	"github.com/fyrsmithlabs/wsgrep/internal/session"
	"github.com/fyrsmithlabs/wsgrep/internal/workspace"
)

var (
	searchPath          string
	searchPattern       string
	searchRegex         bool
	searchCaseSensitive bool
	searchWorkers       int
	searchVerbose       bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search a workspace tree for a pattern",
	Long: `Search recursively under a directory inside a git or Perforce
workspace. The directory must sit inside the configured client's root.

Examples:
  # Literal, case-insensitive search from the current directory
  wsgrep search --pattern "timeout"

  # Regular expression, case-sensitive, under a subtree
  wsgrep search --path ./src --pattern 'ERR\d+' --regex --case-sensitive

Exit status is 0 when at least one line matched, 1 when nothing matched,
and 2 on any failure.`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchPath, "path", ".", "directory to search under")
	searchCmd.Flags().StringVar(&searchPattern, "pattern", "", "pattern to search for (required)")
	searchCmd.Flags().BoolVar(&searchRegex, "regex", false, "treat the pattern as a regular expression")
	searchCmd.Flags().BoolVar(&searchCaseSensitive, "case-sensitive", false, "match case exactly")
	searchCmd.Flags().IntVar(&searchWorkers, "workers", 0, "concurrent file scans (0 uses the configured default)")
	searchCmd.Flags().BoolVar(&searchVerbose, "verbose", false, "log pipeline progress to stderr")
}

// applyWorkersOverride applies the --workers flag, holding the flag to the
// same bounds the config file is held to.
func applyWorkersOverride(cfg *config.Config, workers int) error {
	if workers <= 0 {
		return nil
	}
	cfg.Scanner.Workers = workers
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("--workers: %w", err)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyWorkersOverride(cfg, searchWorkers); err != nil {
		return err
	}

	logger := logging.NewNop()
	if searchVerbose {
		cfg.Logging.Format = "console"
		logger, err = logging.NewLogger(&cfg.Logging)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()
	}

	client, err := newBackend(cfg)
	if err != nil {
		return err
	}

	coord := search.New(
		workspace.NewResolver(client, logger),
		session.NewGuard(client, logger),
		&workspaceScanner{cfg: cfg.Scanner, logger: logger},
		logger, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := coord.Submit(search.Request{
		Path:          searchPath,
		Pattern:       searchPattern,
		IsRegex:       searchRegex,
		CaseSensitive: searchCaseSensitive,
	}); err != nil {
		return err
	}

	snap, err := coord.Wait(ctx)
	if err != nil {
		// Interrupted; stop the pipeline before reporting.
		coord.Cancel()
		snap, _ = coord.Wait(context.Background())
	}

	if snap.Status != search.StatusCompleted {
		return failureError(snap)
	}

	printResult(snap.Result)
	if snap.Result.MatchedLineCount() == 0 {
		os.Exit(1)
	}
	return nil
}

// failureError turns a terminal failure into the error the CLI exits with.
func failureError(snap search.Snapshot) error {
	msg := failureMessage(snap.Reason)
	if snap.Reason.Recoverable() {
		msg += " (log in and run the search again)"
	}
	return fmt.Errorf("%s", msg)
}

func failureMessage(reason search.Reason) string {
	switch reason {
	case search.ReasonMissingPath:
		return "no search path given"
	case search.ReasonInvalidPath:
		return "search path does not exist or is not a directory"
	case search.ReasonMissingPattern:
		return "no pattern given"
	case search.ReasonInvalidPattern:
		return "pattern is not a valid regular expression"
	case search.ReasonNotLoggedIn:
		return "no active session for this workspace"
	case search.ReasonSessionExpired:
		return "workspace session has expired"
	case search.ReasonClientRootConflict:
		return "search path is outside the workspace client root"
	case search.ReasonCancelled:
		return "search cancelled"
	default:
		return "backend error during search"
	}
}

var (
	pathColor  = color.New(color.FgMagenta)
	lineColor  = color.New(color.FgGreen)
	matchColor = color.New(color.FgRed, color.Bold)
	dimColor   = color.New(color.Faint)
)

// printResult writes matches grep-style, one line per match, with the
// matched spans highlighted.
func printResult(result *scanner.Result) {
	for _, file := range result.Files {
		for _, line := range file.Lines {
			pathColor.Print(file.Path)
			fmt.Print(":")
			lineColor.Print(line.Number)
			fmt.Print(":")
			printHighlighted(line.Text, line.Spans)
			fmt.Println()
		}
	}

	matches := result.MatchedLineCount()
	if matches == 0 {
		dimColor.Println("no matches found")
	} else {
		fmt.Printf("%s in %d files\n", pluralMatches(matches), len(result.Files))
	}
	dimColor.Printf("scanned %d files, skipped %d\n", result.ScannedFiles, result.SkippedFiles)
}

func printHighlighted(text string, spans []pattern.Span) {
	pos := 0
	for _, sp := range spans {
		if sp.Start < pos || sp.End > len(text) {
			continue
		}
		fmt.Print(text[pos:sp.Start])
		matchColor.Print(text[sp.Start:sp.End])
		pos = sp.End
	}
	fmt.Print(text[pos:])
}

func pluralMatches(n int) string {
	if n == 1 {
		return "1 match"
	}
	return fmt.Sprintf("%d matches", n)
}
