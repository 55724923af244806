package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"glitchscript/internal/linkbus"
	"glitchscript/internal/manager"
	"glitchscript/internal/manager/store"
	"glitchscript/internal/worker"
)

func newTestManager(t *testing.T) *manager.Manager {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := manager.New(db,
		manager.WithWorkerOptions(worker.WithSlotCount(2)),
		manager.WithLinkBusOptions(linkbus.WithBound(8)),
	)
	m.Start()
	t.Cleanup(m.Stop)
	return m
}

func TestDescribeEmitsEveryGauge(t *testing.T) {
	t.Parallel()
	c := NewCollector(newTestManager(t))

	ch := make(chan *prometheus.Desc, 20)
	c.Describe(ch)
	close(ch)

	count := 0
	for range ch {
		count++
	}
	require.Equal(t, 5, count)
}

func TestCollectReportsSlotCountWithNoScriptsPlaced(t *testing.T) {
	t.Parallel()
	c := NewCollector(newTestManager(t))

	ch := make(chan prometheus.Metric, 20)
	c.Collect(ch)
	close(ch)

	values := map[string]float64{}
	for m := range ch {
		var out dto.Metric
		require.NoError(t, m.Write(&out))
		values[m.Desc().String()] = out.GetGauge().GetValue()
	}
	require.Len(t, values, 5)

	for desc, v := range values {
		if desc == describeOf(c.slotCount) {
			require.Equal(t, float64(2), v)
		} else if desc == describeOf(c.placed) || desc == describeOf(c.activeSlots) || desc == describeOf(c.scriptsErr) {
			require.Zero(t, v)
		}
	}
}

func describeOf(d *prometheus.Desc) string { return d.String() }

func TestCollectorSatisfiesPrometheusCollectorInterface(t *testing.T) {
	t.Parallel()
	var _ prometheus.Collector = NewCollector(newTestManager(t))
}
