package cli

import (
	"os"
	"path/filepath"

	"github.com/goliatone/go-command/dispatcher"
	"github.com/spf13/cobra"

	mergecmd "github.com/goliatone/go-docmerge/command"
	"github.com/goliatone/go-docmerge/merge"
	mergeqry "github.com/goliatone/go-docmerge/query"
)

type templateFlags struct {
	path string
	id   string
}

func (f *templateFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.path, "template", "t", "", "DOCX template path")
	cmd.Flags().StringVar(&f.id, "template-id", "", "predefined template id")
}

type dataFlags struct {
	path      string
	sheet     string
	query     string
	headerRow int
}

func (f *dataFlags) bind(cmd *cobra.Command, usage string) {
	cmd.Flags().StringVarP(&f.path, "data", "d", "", usage)
	cmd.Flags().StringVar(&f.sheet, "sheet", "", "worksheet name (default: configured sheet or the first sheet)")
	cmd.Flags().StringVar(&f.query, "query", "", "SELECT query for sqlite data files")
	cmd.Flags().IntVar(&f.headerRow, "header-row", -1, "zero-based header row (default: configured header row)")
}

func (f dataFlags) options(app *App) DataOptions {
	opts := DataOptions{
		Path:      f.path,
		Sheet:     f.sheet,
		Query:     f.query,
		HeaderRow: f.headerRow,
		Comma:     app.Config.Comma(),
	}
	if opts.Sheet == "" {
		opts.Sheet = app.Config.Data.Sheet
	}
	if opts.HeaderRow < 0 {
		opts.HeaderRow = app.Config.Data.HeaderRow
	}
	return opts
}

func newPlaceholdersCommand(app *App) *cobra.Command {
	var (
		tmplFlags templateFlags
		data      dataFlags
	)
	cmd := &cobra.Command{
		Use:   "placeholders [template]",
		Short: "List template placeholders, or reconcile them against a data file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(args) == 1 {
				tmplFlags.path = args[0]
			}
			engine, err := app.Engine()
			if err != nil {
				return err
			}
			tmpl, err := app.LoadTemplate(ctx, engine, tmplFlags.path, tmplFlags.id)
			if err != nil {
				return err
			}
			svc, err := app.Service(ctx, engine, "", nil)
			if err != nil {
				return err
			}
			unsubscribe := subscribe(svc)
			defer unsubscribe()

			if data.path == "" {
				placeholders, err := dispatcher.Query[mergeqry.ListPlaceholders, merge.Placeholders](ctx, mergeqry.ListPlaceholders{Template: tmpl})
				if err != nil {
					return err
				}
				RenderPlaceholders(app.Out, placeholders)
				return nil
			}

			dataset, err := LoadData(ctx, data.options(app))
			if err != nil {
				return err
			}
			rec, err := dispatcher.Query[mergeqry.ReconcileFields, merge.Reconciliation](ctx, mergeqry.ReconcileFields{Template: tmpl, Dataset: dataset})
			if err != nil {
				return err
			}
			RenderReconciliation(app.Out, rec)
			return nil
		},
	}
	tmplFlags.bind(cmd)
	data.bind(cmd, "data file to reconcile placeholders against")
	return cmd
}

func newHeadersCommand(app *App) *cobra.Command {
	var data dataFlags
	cmd := &cobra.Command{
		Use:   "headers <data>",
		Short: "Show the column headers of a data file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				data.path = args[0]
			}
			dataset, err := LoadData(cmd.Context(), data.options(app))
			if err != nil {
				return err
			}
			RenderHeaders(app.Out, dataset)
			return nil
		},
	}
	data.bind(cmd, "data file (xlsx, csv or sqlite)")
	return cmd
}

func newRunCommand(app *App) *cobra.Command {
	var (
		tmplFlags  templateFlags
		data       dataFlags
		nameColumn string
		selected   []string
		formats    []string
		outDir     string
		images     []string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Merge data file records into a template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			fmts, err := ParseFormatFlag(formats, app.Config.Output.Formats)
			if err != nil {
				return err
			}
			engine, err := app.Engine()
			if err != nil {
				return err
			}
			tmpl, err := app.LoadTemplate(ctx, engine, tmplFlags.path, tmplFlags.id)
			if err != nil {
				return err
			}
			dataset, err := LoadData(ctx, data.options(app))
			if err != nil {
				return err
			}
			attachments, err := LoadImages(images)
			if err != nil {
				return err
			}
			svc, err := app.Service(ctx, engine, outDir, fmts)
			if err != nil {
				return err
			}
			unsubscribe := subscribe(svc)
			defer unsubscribe()

			result, err := dispatcher.DispatchWithResult[mergecmd.RunBatch, merge.BatchResult](ctx, mergecmd.RunBatch{
				Request: merge.BatchRequest{
					Template:   tmpl,
					Dataset:    dataset,
					NameColumn: nameColumn,
					Selected:   selected,
					Formats:    fmts,
					Extras:     merge.Extras{Images: attachments},
					Progress:   app.progress(),
					Source:     filepath.Base(data.path),
				},
			})
			if err != nil {
				return err
			}
			return batchOutcome(app.Out, result)
		},
	}
	tmplFlags.bind(cmd)
	data.bind(cmd, "data file (xlsx, csv or sqlite)")
	cmd.Flags().StringVarP(&nameColumn, "name-column", "n", "", "column identifying each record")
	cmd.Flags().StringArrayVarP(&selected, "select", "s", nil, "record to export, by name-column value (repeatable, default all)")
	cmd.Flags().StringSliceVarP(&formats, "format", "f", nil, "output formats: docx, pdf")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default: configured output dir)")
	cmd.Flags().StringArrayVar(&images, "image", nil, "image for image placeholders, path[:caption] (repeatable)")
	_ = cmd.MarkFlagRequired("data")
	_ = cmd.MarkFlagRequired("name-column")
	return cmd
}

func newFillCommand(app *App) *cobra.Command {
	var (
		tmplFlags templateFlags
		sets      []string
		images    []string
		id        string
		formats   []string
		outDir    string
		showForm  bool
	)
	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Fill a template once from values given on the command line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			fmts, err := ParseFormatFlag(formats, app.Config.Output.Formats)
			if err != nil {
				return err
			}
			engine, err := app.Engine()
			if err != nil {
				return err
			}
			tmpl, err := app.LoadTemplate(ctx, engine, tmplFlags.path, tmplFlags.id)
			if err != nil {
				return err
			}
			svc, err := app.Service(ctx, engine, outDir, fmts)
			if err != nil {
				return err
			}

			unsubscribe := subscribe(svc)
			defer unsubscribe()

			if showForm {
				fields, err := dispatcher.Query[mergeqry.ManualForm, []merge.FieldSpec](ctx, mergeqry.ManualForm{Template: tmpl})
				if err != nil {
					return err
				}
				RenderForm(app.Out, fields)
				return nil
			}

			values, err := ParseAssignments(sets)
			if err != nil {
				return err
			}
			attachments, err := LoadImages(images)
			if err != nil {
				return err
			}

			result, err := dispatcher.DispatchWithResult[mergecmd.FillManual, merge.BatchResult](ctx, mergecmd.FillManual{
				Request: merge.ManualRequest{
					Template:   tmpl,
					Values:     values,
					Images:     attachments,
					Formats:    fmts,
					Identifier: id,
					Progress:   app.progress(),
				},
			})
			if err != nil {
				return err
			}
			return batchOutcome(app.Out, result)
		},
	}
	tmplFlags.bind(cmd)
	cmd.Flags().StringArrayVar(&sets, "set", nil, "placeholder value, key=value (repeatable)")
	cmd.Flags().StringArrayVar(&images, "image", nil, "image for image placeholders, path[:caption] (repeatable)")
	cmd.Flags().StringVar(&id, "id", "", "output identifier (default: timestamp)")
	cmd.Flags().StringSliceVarP(&formats, "format", "f", nil, "output formats: docx, pdf")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default: configured output dir)")
	cmd.Flags().BoolVar(&showForm, "form", false, "print the fields the template asks for and exit")
	return cmd
}

func newTemplatesCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List predefined templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := app.Config.Registry()
			if err != nil {
				return err
			}
			entries := reg.List()
			for _, entry := range entries {
				if _, err := os.Stat(entry.Path); err != nil {
					app.log().Warnf("template %q: %v", entry.ID, err)
				}
			}
			RenderTemplates(app.Out, entries, app.Config.Fill.Locale)
			return nil
		},
	}
}

func newHistoryCommand(app *App) *cobra.Command {
	var filter merge.HistoryFilter
	cmd := &cobra.Command{
		Use:   "history [batch-id]",
		Short: "Show recorded batches, or the jobs of one batch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			history, err := app.History(ctx)
			if err != nil {
				return err
			}
			if history == nil {
				return merge.NewError(merge.KindValidation, "batch history is not configured, set history.dsn", nil)
			}
			svc := merge.NewService(merge.ServiceConfig{History: history, Logger: app.log()})
			unsubscribe := subscribe(svc)
			defer unsubscribe()

			if len(args) == 1 {
				record, err := dispatcher.Query[mergeqry.GetBatch, merge.BatchRecord](ctx, mergeqry.GetBatch{BatchID: args[0]})
				if err != nil {
					return err
				}
				RenderBatch(app.Out, record)
				return nil
			}
			records, err := dispatcher.Query[mergeqry.ListBatches, []merge.BatchRecord](ctx, mergeqry.ListBatches{Filter: filter})
			if err != nil {
				return err
			}
			RenderHistory(app.Out, records)
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.Template, "template", "", "only batches of this template name")
	cmd.Flags().IntVar(&filter.Limit, "limit", merge.DefaultHistoryLimit, "maximum batches to show")
	return cmd
}

func (a *App) progress() merge.ProgressFunc {
	log := a.log()
	return func(event merge.ProgressEvent) {
		switch event.Stage {
		case merge.StageBatchComplete:
		case merge.StageDone:
			log.Infof("[%d/%d] %s done", event.Index+1, event.Total, event.JobID)
		default:
			log.Debugf("[%d/%d] %s: %s", event.Index+1, event.Total, event.JobID, event.Stage)
		}
	}
}
