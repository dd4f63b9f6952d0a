package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "pneuma", Version: "test"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestMeterAndTracer_UsableWithoutInit(t *testing.T) {
	counter, err := Meter("pneuma/test").Int64Counter("pneuma.test.count")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	_, span := Tracer("pneuma/test").Start(context.Background(), "test")
	span.End()
}
