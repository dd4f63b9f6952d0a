package analysis

import (
	"bytes"
	"context"
	"log/slog"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/ashita-ai/pneuma/internal/cost"
	"github.com/ashita-ai/pneuma/internal/model"
	"github.com/ashita-ai/pneuma/internal/persona"
)

func TestRun_ContentKindLabelSharedByLogsAndMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	svc := New(randomLatencyCaller(1000), persona.NewSampler(rand.NewPCG(7, 11)), smallPopulation(5),
		cost.DefaultModel(), Config{}, logger)

	err := svc.Run(context.Background(), "q", imageArtifact, 2, func(model.Event) error { return nil })
	require.NoError(t, err)

	assert.Contains(t, logs.String(), `"msg":"analysis: batch started"`)
	assert.Contains(t, logs.String(), `"content_kind":"image"`)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var kind attribute.Value
	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "pneuma.analysis.batches" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "batches metric has type %T", m.Data)
			require.Len(t, sum.DataPoints, 1)
			kind, found = sum.DataPoints[0].Attributes.Value(attribute.Key("content_kind"))
		}
	}
	require.True(t, found, "batch counter carries the content_kind attribute")
	assert.Equal(t, "image", kind.AsString())
}
