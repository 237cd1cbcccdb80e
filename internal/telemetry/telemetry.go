package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"contrib.go.opencensus.io/exporter/prometheus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
)

var (
	MClassifications = stats.Int64("teaser/classifications", "Stateless classification calls", stats.UnitDimensionless)
	MChunks          = stats.Int64("teaser/chunks", "Observation chunks collected", stats.UnitDimensionless)
	MClosed          = stats.Int64("teaser/closed", "Instances closed by a checkpoint decision", stats.UnitDimensionless)
	MEarliness       = stats.Float64("teaser/earliness", "Fraction of the series consumed at close", stats.UnitDimensionless)
)

var views = []*view.View{
	{
		Name:        "teaser/classifications",
		Description: "Stateless classification calls",
		Measure:     MClassifications,
		Aggregation: view.Count(),
	},
	{
		Name:        "teaser/chunks",
		Description: "Observation chunks collected",
		Measure:     MChunks,
		Aggregation: view.Count(),
	},
	{
		Name:        "teaser/closed",
		Description: "Instances closed by a checkpoint decision",
		Measure:     MClosed,
		Aggregation: view.Count(),
	},
	{
		Name:        "teaser/earliness",
		Description: "Earliness of closed instances",
		Measure:     MEarliness,
		Aggregation: view.Distribution(0.1, 0.25, 0.5, 0.75, 0.9, 1),
	},
}

// Register installs the views and returns the prometheus scrape
// handler.
func Register() (http.Handler, error) {
	if err := view.Register(views...); err != nil {
		return nil, fmt.Errorf("unable to register views: %w", err)
	}
	exporter, err := prometheus.NewExporter(prometheus.Options{Namespace: "teaser"})
	if err != nil {
		return nil, fmt.Errorf("unable to create prometheus exporter: %w", err)
	}
	view.RegisterExporter(exporter)
	return exporter, nil
}

func RecordClosed(ctx context.Context, earliness float64) {
	stats.Record(ctx, MClosed.M(1), MEarliness.M(earliness))
}

func RecordChunk(ctx context.Context) {
	stats.Record(ctx, MChunks.M(1))
}

func RecordClassification(ctx context.Context) {
	stats.Record(ctx, MClassifications.M(1))
}
