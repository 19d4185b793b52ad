// Package report renders a comparison report for people (table) or
// machines (JSON), and drives the progress display while a run is going.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/vvka-141/csvdelta/internal/tui"
	"github.com/vvka-141/csvdelta/pkg/csvdelta"
)

// Format selects a renderer.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatTable, FormatJSON:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q (expected table or json): %w", s, csvdelta.ErrInvalidConfig)
	}
}

// Render writes r to w in the given format.
func Render(w io.Writer, r *csvdelta.Report, format Format) error {
	switch format {
	case FormatJSON:
		return RenderJSON(w, r)
	default:
		return RenderTable(w, r)
	}
}

// KiB formats a byte count as kibibytes with two decimals.
func KiB(bytes int64) string {
	return strconv.FormatFloat(float64(bytes)/1024, 'f', 2, 64)
}

func signedKiB(bytes int64) string {
	s := KiB(bytes)
	if bytes > 0 {
		return "+" + s
	}
	return s
}

func signed(n int64) string {
	if n > 0 {
		return "+" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}

func rows(p *int64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatInt(*p, 10)
}

var tableHeaders = []string{"File", "Today (KB)", "Yesterday (KB)", "Δ (KB)", "Yesterday rows", "Today rows", "Δ rows", "Note"}

// noteColumn is the only left-aligned column besides the file name.
const noteColumn = 7

// RenderTable writes a bordered table with one row per entry, followed by a
// one-line summary.
func RenderTable(w io.Writer, r *csvdelta.Report) error {
	fmt.Fprintln(w, tui.TitleStyle.Render(fmt.Sprintf("%s %s %s", r.Root, tui.SymbolArrowRight, r.BaselineDir)))

	if r.StructuralError != nil {
		_, err := fmt.Fprintf(w, "%s %v\n", tui.ErrorStyle.Render(tui.SymbolCross), r.StructuralError)
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tui.BorderStyle).
		Headers(tableHeaders...)

	var deltas [][2]int64
	for _, e := range r.Entries {
		row, delta := tableRow(r, e)
		t.Row(row...)
		deltas = append(deltas, delta)
	}

	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return tui.HeaderStyle
		}
		if row < 0 || row >= len(r.Entries) {
			return tui.CellStyle
		}
		if r.Entries[row].Error != nil {
			return tui.CellStyle.Foreground(tui.ColorError)
		}
		if !r.Entries[row].Result.HasBaseline() {
			return mutedStyle(col)
		}
		switch col {
		case 0, noteColumn:
			return tui.CellStyle
		case 3:
			return deltaStyle(deltas[row][0])
		case 6:
			return deltaStyle(deltas[row][1])
		default:
			return tui.NumberStyle
		}
	})

	if len(r.Entries) > 0 {
		fmt.Fprintln(w, t.Render())
	}
	_, err := fmt.Fprintln(w, summary(r))
	return err
}

func tableRow(r *csvdelta.Report, e csvdelta.Entry) ([]string, [2]int64) {
	if e.Error != nil {
		return []string{e.Error.Filename, "-", "-", "-", "-", "-", "-", e.Error.Message}, [2]int64{}
	}

	res := e.Result
	if !res.HasBaseline() {
		return []string{res.Filename, KiB(res.Today.Size), "-", "-", "-", rows(res.Today.Rows), "-",
			"no copy in " + r.BaselineDir}, [2]int64{}
	}

	var sizeDelta, rowDelta int64
	if res.SizeDelta != nil {
		sizeDelta = *res.SizeDelta
	}
	if res.RowDelta != nil {
		rowDelta = *res.RowDelta
	}
	return []string{
		res.Filename,
		KiB(res.Today.Size),
		KiB(res.Yesterday.Size),
		signedKiB(sizeDelta),
		rows(res.Yesterday.Rows),
		rows(res.Today.Rows),
		signed(rowDelta),
		"",
	}, [2]int64{sizeDelta, rowDelta}
}

// mutedStyle greys out a today-only row, keeping numeric columns right-aligned.
func mutedStyle(col int) lipgloss.Style {
	if col == 0 || col == noteColumn {
		return tui.MutedStyle
	}
	return tui.MutedStyle.Align(lipgloss.Right)
}

func deltaStyle(delta int64) lipgloss.Style {
	switch {
	case delta > 0:
		return tui.NumberStyle.Foreground(tui.ColorSuccess)
	case delta < 0:
		return tui.NumberStyle.Foreground(tui.ColorWarning)
	default:
		return tui.NumberStyle
	}
}

func summary(r *csvdelta.Report) string {
	n := len(r.Entries)
	switch r.Status() {
	case csvdelta.StatusCancelled:
		return tui.WarningStyle.Render(fmt.Sprintf("Cancelled after %d file(s)", n))
	case csvdelta.StatusPartial:
		return tui.WarningStyle.Render(fmt.Sprintf("%s %d file(s), %d error(s)", tui.SymbolCross, n, r.ErrorCount()))
	default:
		return tui.SuccessStyle.Render(fmt.Sprintf("%s %d file(s) compared", tui.SymbolCheck, n))
	}
}

type jsonDocument struct {
	RunID       string      `json:"run_id"`
	Root        string      `json:"root"`
	BaselineDir string      `json:"baseline_dir"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at"`
	Status      string      `json:"status"`
	Error       string      `json:"error,omitempty"`
	Files       []jsonEntry `json:"files"`
}

type jsonEntry struct {
	Filename  string                 `json:"filename"`
	Today     *csvdelta.FileSnapshot `json:"today,omitempty"`
	Yesterday *csvdelta.FileSnapshot `json:"yesterday,omitempty"`
	SizeDelta *int64                 `json:"size_delta,omitempty"`
	RowDelta  *int64                 `json:"row_delta,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// RenderJSON writes r as one indented JSON document.
func RenderJSON(w io.Writer, r *csvdelta.Report) error {
	doc := jsonDocument{
		RunID:       r.RunID.String(),
		Root:        r.Root,
		BaselineDir: r.BaselineDir,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Status:      string(r.Status()),
		Files:       make([]jsonEntry, 0, len(r.Entries)),
	}
	if r.StructuralError != nil {
		doc.Error = r.StructuralError.Error()
	}

	for _, e := range r.Entries {
		if e.Error != nil {
			doc.Files = append(doc.Files, jsonEntry{Filename: e.Error.Filename, Error: e.Error.Message})
			continue
		}
		today := e.Result.Today
		doc.Files = append(doc.Files, jsonEntry{
			Filename:  e.Result.Filename,
			Today:     &today,
			Yesterday: e.Result.Yesterday,
			SizeDelta: e.Result.SizeDelta,
			RowDelta:  e.Result.RowDelta,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
