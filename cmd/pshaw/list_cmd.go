package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/asheshgoplani/pshaw/internal/session"
)

// Table column widths for list --long output
const (
	tableColLabel = 20
	tableColState = 9
	tableColSize  = 9
	tableColUsed  = 15
	tableColPwd   = 40
)

// describeConcurrency bounds how many sessions list --long stats at once.
const describeConcurrency = 8

// sessionJSON is the list --json record.
type sessionJSON struct {
	Label        string     `json:"label"`
	Dir          string     `json:"dir"`
	Attached     *bool      `json:"attached,omitempty"`
	LogBytes     *int64     `json:"log_bytes,omitempty"`
	HistoryBytes *int64     `json:"history_bytes,omitempty"`
	Pwd          string     `json:"pwd,omitempty"`
	LastOutput   *time.Time `json:"last_output,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	AttachCount  *int       `json:"attach_count,omitempty"`
	LastExitCode *int       `json:"last_exit_code,omitempty"`
}

func (a *app) listCommand() *cobra.Command {
	var long, asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions",
		Long: `Print one session label per line in lexical order. list never touches
session locks, so it is safe to run while sessions are attached.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := a.controller()
			if err != nil {
				return a.fail(err)
			}
			ctx := context.Background()

			var labels []string
			for label, err := range ctrl.List(ctx) {
				if err != nil {
					// list always exits 0; an unreadable base lists what it got.
					cliLog.Warn("list_failed", slog.String("error", err.Error()))
					fmt.Fprintln(a.stderr, warnStyle.Render("pshaw: warning: "+err.Error()))
					break
				}
				labels = append(labels, label)
			}

			if !long {
				if asJSON {
					return a.fail(a.printJSON(shortRecords(ctrl, labels)))
				}
				for _, label := range labels {
					fmt.Fprintln(a.stdout, label)
				}
				return nil
			}

			if err := ctrl.ReconcileJournal(ctx); err != nil {
				cliLog.Warn("journal_reconcile_failed", slog.String("error", err.Error()))
			}
			descs, err := describeAll(ctx, ctrl, labels)
			if err != nil {
				return a.fail(err)
			}
			if asJSON {
				return a.fail(a.printJSON(longRecords(descs)))
			}
			a.printTable(descs)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show state, sizes and working directory")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

// describeAll stats every session concurrently, preserving label order.
// A session removed between listing and stat is skipped.
func describeAll(ctx context.Context, ctrl *session.Controller, labels []string) ([]session.Description, error) {
	results := make([]*session.Description, len(labels))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(describeConcurrency)
	for i, label := range labels {
		g.Go(func() error {
			d, err := ctrl.Describe(ctx, label)
			if err != nil {
				if session.ExitCode(err) == session.ExitNoSession {
					return nil
				}
				return err
			}
			results[i] = &d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	descs := make([]session.Description, 0, len(results))
	for _, d := range results {
		if d != nil {
			descs = append(descs, *d)
		}
	}
	return descs, nil
}

func shortRecords(ctrl *session.Controller, labels []string) []sessionJSON {
	records := make([]sessionJSON, 0, len(labels))
	for _, label := range labels {
		p, err := ctrl.Store().Resolve(label)
		if err != nil {
			continue
		}
		records = append(records, sessionJSON{Label: label, Dir: p.Dir})
	}
	return records
}

func longRecords(descs []session.Description) []sessionJSON {
	records := make([]sessionJSON, 0, len(descs))
	for _, d := range descs {
		rec := sessionJSON{
			Label:        d.Label,
			Dir:          d.Dir,
			Attached:     &d.Attached,
			LogBytes:     &d.LogSize,
			HistoryBytes: &d.HistorySize,
			Pwd:          d.Pwd,
			LastOutput:   &d.LogModTime,
		}
		if j := d.Journal; j != nil {
			if !j.CreatedAt.IsZero() {
				rec.CreatedAt = &j.CreatedAt
			}
			rec.AttachCount = &j.AttachCount
			rec.LastExitCode = &j.LastExitCode
		}
		records = append(records, rec)
	}
	return records
}

func (a *app) printJSON(v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format JSON output: %w", err)
	}
	fmt.Fprintln(a.stdout, string(output))
	return nil
}

func (a *app) printTable(descs []session.Description) {
	if len(descs) == 0 {
		return
	}
	header := fmt.Sprintf("%s %s %s %s %s",
		pad("LABEL", tableColLabel), pad("STATE", tableColState), pad("LOG", tableColSize),
		pad("LAST OUTPUT", tableColUsed), "DIRECTORY")
	fmt.Fprintln(a.stdout, headerStyle.Render(header))
	fmt.Fprintln(a.stdout, dimStyle.Render(strings.Repeat("-", tableColLabel+tableColState+tableColSize+tableColUsed+tableColPwd+4)))

	for _, d := range descs {
		state, style := "detached", dimStyle
		if d.Attached {
			state, style = "attached", attachedStyle
		}
		used := "-"
		if d.LogSize > 0 {
			used = humanize.Time(d.LogModTime)
		}
		fmt.Fprintf(a.stdout, "%s %s %s %s %s\n",
			pad(truncate(d.Label, tableColLabel), tableColLabel),
			style.Render(pad(state, tableColState)),
			pad(humanize.IBytes(uint64(d.LogSize)), tableColSize),
			pad(used, tableColUsed),
			truncateLeft(shortenHome(d.Pwd), tableColPwd))
	}
}

// truncate shortens s to max display cells, marking the cut with "...".
func truncate(s string, max int) string {
	if runewidth.StringWidth(s) <= max {
		return s
	}
	return runewidth.Truncate(s, max, "...")
}

// truncateLeft keeps the end of s, which is the informative part of a path.
func truncateLeft(s string, max int) string {
	if runewidth.StringWidth(s) <= max {
		return s
	}
	runes := []rune(s)
	for i := range runes {
		tail := string(runes[i:])
		if runewidth.StringWidth(tail)+3 <= max {
			return "..." + tail
		}
	}
	return runewidth.Truncate(s, max, "")
}

// pad right-pads s to width display cells.
func pad(s string, width int) string {
	return runewidth.FillRight(s, width)
}
