package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/pitchdata/match.report/internal/events"
	"github.com/pitchdata/match.report/internal/tactical"
)

var heatmapPalette = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// RenderHeatmaps renders both teams' occupancy heatmaps as a standalone
// HTML page.
func RenderHeatmaps(w io.Writer, rep *MatchReport) error {
	page := components.NewPage()
	page.PageTitle = "Match Occupancy Heatmaps"
	for _, team := range []events.Team{events.TeamHome, events.TeamAway} {
		hm, ok := rep.Heatmaps[team]
		if !ok {
			continue
		}
		page.AddCharts(heatmapChart(fmt.Sprintf("%s occupancy", team), hm))
	}
	return page.Render(w)
}

// heatmapChart builds one occupancy chart. Columns follow the pitch X
// axis, rows the Y axis, values normalised to the densest cell.
func heatmapChart(title string, hm tactical.Heatmap) *charts.HeatMap {
	cols := make([]string, hm.Size)
	rows := make([]string, hm.Size)
	for i := 0; i < hm.Size; i++ {
		cols[i] = fmt.Sprintf("x%d", i)
		rows[i] = fmt.Sprintf("y%d", i)
	}

	data := make([]opts.HeatMapData, 0, hm.Size*hm.Size)
	for row := range hm.Cells {
		for col, v := range hm.Cells[row] {
			data = append(data, opts.HeatMapData{Value: [3]interface{}{col, row, v}})
		}
	}

	chart := charts.NewHeatMap()
	chart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "length", SplitArea: &opts.SplitArea{Show: opts.Bool(true)}}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Name: "width", Data: rows, SplitArea: &opts.SplitArea{Show: opts.Bool(true)}}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        1,
			InRange:    &opts.VisualMapInRange{Color: heatmapPalette},
		}),
	)
	chart.SetXAxis(cols).AddSeries("occupancy", data)
	return chart
}
