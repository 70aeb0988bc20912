package app

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/drblury/opsflow/internal/adapters/email"
	"github.com/drblury/opsflow/internal/runtime"
	"github.com/drblury/opsflow/internal/runtime/boundary"
)

// RenderSummary writes a one-row table of poll outcomes.
func RenderSummary(w io.Writer, s email.PollSummary) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Listed", "Published", "Dropped", "Duplicates", "Failed"})
	tw.AppendRow(table.Row{s.Listed, s.Published, s.Dropped, s.Duplicates, s.Failed})
	tw.Render()
}

// RenderFailures writes the failed traces, or a single line when there are
// none.
func RenderFailures(w io.Writer, failures []boundary.Failure) {
	if len(failures) == 0 {
		_, _ = io.WriteString(w, "No failed traces.\n")
		return
	}
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Trace", "Origin", "Reason", "Count", "Failed At"})
	for _, f := range failures {
		tw.AppendRow(table.Row{f.TraceID, f.Origin, f.Reason, f.Count, f.FailedAt.Format(time.RFC3339)})
	}
	tw.Render()
}

// RenderHandlers writes each subscription with its delivery counters.
func RenderHandlers(w io.Writer, handlers []*runtime.HandlerInfo) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"#", "Subscriber", "Kind", "Processed", "Failed"})
	for _, h := range handlers {
		processed, failed := h.Stats.Counts()
		tw.AppendRow(table.Row{h.Order, h.Name, h.Kind, processed, failed})
	}
	tw.Render()
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	return tw
}
