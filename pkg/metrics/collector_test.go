package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

type fakeSource struct {
	mu                      sync.Mutex
	sessions, roots, pushes int
	samples                 int
}

func (f *fakeSource) SessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples++
	return f.sessions
}

func (f *fakeSource) RootCount() int { return f.roots }
func (f *fakeSource) PushCount() int { return f.pushes }

func (f *fakeSource) sampled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.samples
}

func TestCollectorSamplesSource(t *testing.T) {
	src := &fakeSource{sessions: 3, roots: 5, pushes: 2}
	c := NewCollector(src)

	c.collect()
	assert.Equal(t, 3.0, gaugeValue(t, SessionsActive))
	assert.Equal(t, 5.0, gaugeValue(t, RootsActive))
	assert.Equal(t, 2.0, gaugeValue(t, PushConnectionsActive))

	src.sessions = 0
	c.collect()
	assert.Equal(t, 0.0, gaugeValue(t, SessionsActive))
}

func TestCollectorStartStop(t *testing.T) {
	src := &fakeSource{sessions: 1}
	c := NewCollectorWithInterval(src, 5*time.Millisecond)
	c.Start()
	assert.Eventually(t, func() bool { return src.sampled() >= 3 }, 2*time.Second, 5*time.Millisecond)

	c.Stop()
	c.Stop()
	n := src.sampled()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, src.sampled(), "no samples after Stop")
}
