package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gather returns the sum of all samples of each metric family by name.
func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				out[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[mf.GetName()] += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[mf.GetName()] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestCollectors(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.BatchApplied("a.csproj", 10*time.Millisecond)
	c.BatchApplied("a.csproj", 20*time.Millisecond)
	c.BatchCancelled()
	c.SetDependencies("a.csproj", "net8.0", 7)
	c.ItemSkipped("NuGetDependency")

	got := gather(t, reg)
	assert.Equal(t, 2.0, got["depsnap_batches_applied_total"])
	assert.Equal(t, 2.0, got["depsnap_apply_duration_seconds"])
	assert.Equal(t, 1.0, got["depsnap_batches_cancelled_total"])
	assert.Equal(t, 7.0, got["depsnap_dependencies"])
	assert.Equal(t, 1.0, got["depsnap_handler_items_skipped_total"])

	c.ForgetProject("a.csproj")
	_, ok := gather(t, reg)["depsnap_dependencies"]
	assert.False(t, ok)
}

func TestNew_DuplicateRegistrationFails(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestNilCollectorsAreNoOps(t *testing.T) {
	t.Parallel()
	var c *Collectors
	assert.NotPanics(t, func() {
		c.BatchApplied("p", time.Second)
		c.BatchCancelled()
		c.SetDependencies("p", "t", 1)
		c.ForgetProject("p")
		c.ItemSkipped("x")
	})
}
