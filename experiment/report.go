package main

import (
	"fmt"
	"io"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// WriteSpeedReport renders the per-run mean-speed traces to an HTML chart.
func WriteSpeedReport(path, scenarioName string, runs []*RunStats) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer f.Close()
	return RenderSpeedReport(f, scenarioName, runs)
}

// RenderSpeedReport writes the chart HTML to w.
func RenderSpeedReport(w io.Writer, scenarioName string, runs []*RunStats) error {
	if len(runs) == 0 {
		return fmt.Errorf("no runs to report")
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Experiment Report",
			Width:     "1100px",
			Height:    "550px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Network mean speed",
			Subtitle: fmt.Sprintf("scenario=%s runs=%d", scenarioName, len(runs)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "speed (m/s)"}),
	)

	// X axis comes from the longest run so shorter runs still align.
	longest := runs[0]
	for _, r := range runs[1:] {
		if r.Steps() > longest.Steps() {
			longest = r
		}
	}
	xs := make([]string, longest.Steps())
	for i, t := range longest.Times {
		xs[i] = fmt.Sprintf("%.1f", t)
	}
	line.SetXAxis(xs)

	for i, r := range runs {
		data := make([]opts.LineData, r.Steps())
		for j, v := range r.MeanSpeeds {
			data[j] = opts.LineData{Value: v}
		}
		line.AddSeries(fmt.Sprintf("run %d", i), data)
	}

	return line.Render(w)
}
