package report

import (
	"bytes"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// RenderChart draws portfolio and benchmark values as a PNG line chart.
func RenderChart(r *Report) ([]byte, error) {
	if r == nil || r.Portfolio.Len() < 2 {
		return nil, fmt.Errorf("need at least 2 data points to chart")
	}

	portfolio := chart.TimeSeries{
		Name: "Portfolio",
		Style: chart.Style{
			StrokeColor: drawing.ColorFromHex("2563eb"),
			StrokeWidth: 2.5,
		},
		XValues: r.Portfolio.Dates,
		YValues: r.Portfolio.Values,
	}
	benchmark := chart.TimeSeries{
		Name: "Benchmark " + r.Benchmark,
		Style: chart.Style{
			StrokeColor:     drawing.ColorFromHex("9ca3af"),
			StrokeWidth:     1.5,
			StrokeDashArray: []float64{5.0, 3.0},
		},
		XValues: r.BenchmarkValues.Dates,
		YValues: r.BenchmarkValues.Values,
	}

	graph := chart.Chart{
		Title:  "Portfolio vs Benchmark (Base=100)",
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("Jan 06")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f", f)
				}
				return ""
			},
		},
		Series: []chart.Series{portfolio, benchmark},
	}
	graph.Elements = []chart.Renderable{chart.LegendLeft(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}
