// Package report writes run results: the equity curve as CSV and as an
// interactive HTML chart.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"meridian/internal/performance"
	"meridian/internal/portfolio"
)

// WriteEquityCSV writes one row per snapshot with the columns
// datetime,{symbols...},cash,commission,total,returns,cumulative_growth.
func WriteEquityCSV(w io.Writer, symbols []string, curve []portfolio.EquityPoint) error {
	cw := csv.NewWriter(w)

	header := append([]string{"datetime"}, symbols...)
	header = append(header, "cash", "commission", "total", "returns", "cumulative_growth")
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(header))
	for _, pt := range curve {
		row = row[:0]
		row = append(row, pt.Time.UTC().Format(time.RFC3339))
		for _, sym := range symbols {
			row = append(row, formatFloat(pt.Holdings[sym]))
		}
		row = append(row,
			formatFloat(pt.Cash),
			formatFloat(pt.Commission),
			formatFloat(pt.Total),
			formatFloat(pt.Returns),
			formatFloat(pt.Growth),
		)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %s: %w", pt.Time, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteEquityChart renders the growth and drawdown series of curve as a
// standalone HTML page.
func WriteEquityChart(w io.Writer, title string, curve []portfolio.EquityPoint) error {
	if len(curve) == 0 {
		return fmt.Errorf("equity chart: empty curve")
	}

	growth := portfolio.Growth(curve)
	_, _, dd := performance.Drawdowns(growth)

	x := make([]string, len(curve))
	equity := make([]opts.LineData, len(curve))
	drawdown := make([]opts.LineData, len(curve))
	for i, pt := range curve {
		x[i] = pt.Time.UTC().Format("2006-01-02 15:04")
		equity[i] = opts.LineData{Value: growth[i]}
		drawdown[i] = opts.LineData{Value: -dd[i]}
	}

	equityChart := newLine(title, "Equity curve")
	equityChart.SetXAxis(x).AddSeries("equity", equity)

	ddChart := newLine(title, "Drawdown")
	ddChart.SetXAxis(x).AddSeries("drawdown", drawdown)

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.PageTitle = title
	page.AddCharts(equityChart, ddChart)
	return page.Render(w)
}

func newLine(page, title string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: page, Width: "1100px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	return line
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
