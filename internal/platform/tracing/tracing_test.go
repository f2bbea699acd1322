package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"notary/internal/platform/config"
)

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{ServiceName: "notary"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetup_CreatesProviderWhenEndpointSet(t *testing.T) {
	// Non-routable address: nothing is exported before shutdown.
	shutdown, err := Setup(context.Background(), config.TracingConfig{
		Endpoint:    "http://192.0.2.1:4318",
		ServiceName: "notary-test",
		SampleRatio: 1,
	})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
