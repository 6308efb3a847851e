package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/giisexport/internal/core"
)

func TestMetrics_Recorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ArtifactGenerated("LES", 10, 2, 3, 150*time.Millisecond)
	m.ArtifactGenerated("LES", 5, 0, 0, 50*time.Millisecond)
	m.ArtifactGenerated("CDT", 1, 1, 0, time.Second)
	m.GenerationFailed("CEX")
	m.DeliverableSealed("LES")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ArtifactsGenerated.WithLabelValues("LES")))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.RowsAccepted.WithLabelValues("LES")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RowsExcluded.WithLabelValues("LES")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RowWarnings.WithLabelValues("LES")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsExcluded.WithLabelValues("CDT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationFailures.WithLabelValues("CEX")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliverablesSealed.WithLabelValues("LES")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.GenerationDuration))
}

func TestMetrics_ObserveLimiter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	l := core.NewGenerationLimiter(3, time.Second)
	m.ObserveLimiter(l, "CDT", "LES")

	release, err := l.Acquire(context.Background(), "LES")
	require.NoError(t, err)
	defer release()

	expected := `
# HELP giis_generations_active Guide generations currently holding a limiter slot
# TYPE giis_generations_active gauge
giis_generations_active 1
# HELP giis_generations_available Free generation limiter slots
# TYPE giis_generations_available gauge
giis_generations_available 2
# HELP giis_guide_generations_active Generations of one guide currently holding a limiter slot
# TYPE giis_guide_generations_active gauge
giis_guide_generations_active{guide="CDT"} 0
giis_guide_generations_active{guide="LES"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"giis_generations_active", "giis_generations_available", "giis_guide_generations_active"))
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	// Each registry gets its own collectors; no global registration.
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
