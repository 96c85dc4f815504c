package internal

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/starford/nbpublish/internal/models"
	"github.com/starford/nbpublish/internal/publish"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// RenderSummary formats a batch run as a table followed by a totals line.
// With colorize set the status column is colored.
func RenderSummary(sum publish.Summary, colorize bool) string {
	headers := []string{"Topic", "Notebook", "Status", "Cells", "Media", "Notes"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}

	rows := make([][]string, 0, len(sum.Results))
	for _, r := range sum.Results {
		var notes []string
		if r.Err != nil {
			notes = append(notes, r.Err.Error())
		}
		notes = append(notes, r.Warnings...)
		rows = append(rows, []string{
			r.Topic,
			r.Source,
			statusText(r.Status, colorize),
			strconv.Itoa(r.CellsProcessed),
			strconv.Itoa(len(r.Assets)),
			strings.Join(notes, "; "),
		})
	}
	for _, p := range sum.Pruned {
		rows = append(rows, []string{"", p, statusText("pruned", colorize), "", "", ""})
	}

	var b strings.Builder
	if len(rows) > 0 {
		b.WriteString(renderTable(headers, rows, aligns))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%d published, %d skipped, %d failed, %d pruned\n",
		sum.Count(models.StatusPublished),
		sum.Count(models.StatusSkipped),
		sum.Count(models.StatusFailed),
		len(sum.Pruned))
	return b.String()
}

func statusText(status string, colorize bool) string {
	if !colorize {
		return status
	}
	switch status {
	case models.StatusPublished:
		return text.Colors{text.FgGreen}.Sprint(status)
	case models.StatusFailed:
		return text.Colors{text.FgRed}.Sprint(status)
	case "pruned":
		return text.Colors{text.FgYellow}.Sprint(status)
	default:
		return status
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}
