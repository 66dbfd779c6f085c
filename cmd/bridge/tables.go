package main

import (
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/morezero/analytics-bridge/internal/server"
	"github.com/morezero/analytics-bridge/pkg/db"
)

// renderMethods writes the operations table of the served channel.
func renderMethods(w io.Writer, out *server.MethodsOutput) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Method", "Channel", "Version", "Subject"})
	rows := make([][]string, 0, len(out.Methods))
	for _, m := range out.Methods {
		rows = append(rows, []string{m, out.Channel, out.Version, out.Subject})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

// renderEvents writes recorded events, newest first.
func renderEvents(w io.Writer, events []db.Event) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Created", "Name", "User", "Screen", "Params"})
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, []string{
			e.Created.UTC().Format("2006-01-02 15:04:05"),
			e.Name,
			deref(e.UserID),
			deref(e.ScreenName),
			strings.TrimSpace(string(e.Params)),
		})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
