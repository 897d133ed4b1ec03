package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/goliatone/go-docmerge/merge"
)

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	return tw
}

// RenderResult prints one row per job followed by the batch summary.
func RenderResult(w io.Writer, result merge.BatchResult) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"#", "Record", "State", "Outputs", "Detail"})
	for _, job := range result.Jobs {
		keys := make([]string, 0, len(job.Outputs))
		for _, ref := range job.Outputs {
			keys = append(keys, ref.Key)
		}
		detail := strings.Join(job.Warnings, "; ")
		if job.Err != nil {
			detail = fmt.Sprintf("%s: %v", job.Kind, job.Err)
		}
		tw.AppendRow(table.Row{job.Index + 1, job.ID, job.State, strings.Join(keys, "\n"), detail})
	}
	tw.AppendFooter(table.Row{"", "", "", "", result.Summary()})
	tw.Render()
}

// RenderReconciliation prints how each placeholder resolved.
func RenderReconciliation(w io.Writer, rec merge.Reconciliation) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Placeholder", "Match", "Header", "Suggestions"})
	for _, match := range rec.Matches {
		tw.AppendRow(table.Row{match.Placeholder, match.Kind, match.Header, strings.Join(match.Suggestions, ", ")})
	}
	tw.Render()
}

// RenderPlaceholders prints placeholders in document order.
func RenderPlaceholders(w io.Writer, placeholders merge.Placeholders) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"#", "Placeholder", "Image"})
	for i, name := range placeholders.Names {
		tw.AppendRow(table.Row{i + 1, name, placeholders.IsImage(name)})
	}
	tw.Render()
}

// RenderForm prints the manual entry fields of a template.
func RenderForm(w io.Writer, fields []merge.FieldSpec) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Field", "Kind", "Required"})
	for _, field := range fields {
		tw.AppendRow(table.Row{field.Name, field.Kind, field.Required})
	}
	tw.Render()
}

// RenderHeaders prints dataset headers with a sample value from the first record.
func RenderHeaders(w io.Writer, dataset *merge.Dataset) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"#", "Header", "Sample"})
	var first merge.Record
	if dataset.Len() > 0 {
		first = dataset.Records[0]
	}
	for i, header := range dataset.Headers {
		tw.AppendRow(table.Row{i + 1, header, first.Value(header)})
	}
	tw.AppendFooter(table.Row{"", "records", dataset.Len()})
	tw.Render()
}

// RenderTemplates prints predefined templates.
func RenderTemplates(w io.Writer, entries []merge.TemplateEntry, locale string) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"ID", "Name", "Path", "Description"})
	for _, entry := range entries {
		tw.AppendRow(table.Row{entry.ID, entry.DisplayName(locale), entry.Path, entry.Description})
	}
	tw.Render()
}

// RenderHistory prints stored batches, newest first.
func RenderHistory(w io.Writer, records []merge.BatchRecord) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Batch", "Template", "Source", "Started", "Summary", "Failed"})
	for _, record := range records {
		tw.AppendRow(table.Row{
			record.BatchID,
			record.Template,
			record.Source,
			record.StartedAt.Local().Format(time.DateTime),
			record.Summary(),
			record.Failed,
		})
	}
	tw.Render()
}

// RenderBatch prints the jobs of one stored batch.
func RenderBatch(w io.Writer, record merge.BatchRecord) {
	fmt.Fprintf(w, "%s  %s  %s\n", record.BatchID, record.Template, record.Summary())
	tw := newTable(w)
	tw.AppendHeader(table.Row{"#", "Record", "State", "Outputs", "Detail", "ms"})
	for _, job := range record.Jobs {
		detail := strings.Join(job.Warnings, "; ")
		if job.Error != "" {
			detail = fmt.Sprintf("%s: %s", job.Kind, job.Error)
		}
		tw.AppendRow(table.Row{job.Index + 1, job.ID, job.State, strings.Join(job.Outputs, "\n"), detail, job.DurationMS})
	}
	tw.Render()
}
