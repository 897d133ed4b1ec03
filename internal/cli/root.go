package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-docmerge/config"
	"github.com/goliatone/go-docmerge/internal/logger"
	"github.com/goliatone/go-docmerge/merge"
)

// ExitError carries a process exit status.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// errJobsFailed marks a batch that completed with failed jobs.
var errJobsFailed = errors.New("one or more documents failed")

// NewRootCommand builds the docmerge command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	root := &cobra.Command{
		Use:           "docmerge",
		Short:         "Merge spreadsheet records into Word templates",
		Long:          "docmerge fills DOCX templates with <<placeholder>> markers from spreadsheet rows or typed values and exports DOCX or PDF documents.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if debug {
				cfg.Log.Debug = true
			}
			log, err := logger.New(cfg.Log.Level, cfg.Log.Debug)
			if err != nil {
				return err
			}
			app.Config = cfg
			app.Logger = log
			if app.Out == nil {
				app.Out = cmd.OutOrStdout()
			}
			if app.Err == nil {
				app.Err = cmd.ErrOrStderr()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default .docmerge.yaml in the working or home directory)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newPlaceholdersCommand(app),
		newHeadersCommand(app),
		newRunCommand(app),
		newFillCommand(app),
		newTemplatesCommand(app),
		newHistoryCommand(app),
	)
	return root
}

// Execute runs the CLI and returns the process exit status.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := &App{Out: stdout, Err: stderr}
	defer app.Close()

	root := NewRootCommand(app)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		return reportError(stderr, err)
	}
	return 0
}

func reportError(w io.Writer, err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintf(w, "Error: %v\n", exitErr.Err)
		}
		return exitErr.Code
	}
	if ge := merge.AsGoError(err); ge != nil && ge.TextCode != "" {
		fmt.Fprintf(w, "Error [%s]: %v\n", ge.TextCode, err)
		return 1
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}

// batchOutcome prints result and converts job failures into an exit status.
func batchOutcome(w io.Writer, result merge.BatchResult) error {
	RenderResult(w, result)
	if result.Failed > 0 {
		return &ExitError{Code: 2, Err: errJobsFailed}
	}
	if result.Skipped > 0 {
		return &ExitError{Code: 3, Err: merge.NewError(merge.KindCanceled, "batch was interrupted", nil)}
	}
	return nil
}
