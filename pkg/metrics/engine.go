package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ucla-readable/featherstitch/pkg/engine"
)

// engineMetrics is the Prometheus implementation of engine.Metrics.
type engineMetrics struct {
	patchesCreated      *prometheus.CounterVec
	patchesSatisfied    prometheus.Counter
	patchesRolledBack   prometheus.Counter
	dependsAdded        prometheus.Counter
	dependsRemoved      prometheus.Counter
	cyclesRejected      prometheus.Counter
	liveGraphSize       prometheus.Gauge
}

// NewEngineMetrics creates a Prometheus-backed engine.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called);
// engine.Engine.SetMetrics(nil) is the intended zero-overhead default.
func NewEngineMetrics() engine.Metrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()

	return &engineMetrics{
		patchesCreated: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "featherstitch_engine_patches_created_total",
				Help: "Patches created; the type label is always \"all\".",
			},
			[]string{"type"},
		),
		patchesSatisfied: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "featherstitch_engine_patches_satisfied_total",
			Help: "Patches that have completed Satisfy.",
		}),
		patchesRolledBack: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "featherstitch_engine_patches_rolled_back_total",
			Help: "Patches rolled back by a revision prepare pass.",
		}),
		dependsAdded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "featherstitch_engine_depends_added_total",
			Help: "AddDepend calls that succeeded.",
		}),
		dependsRemoved: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "featherstitch_engine_depends_removed_total",
			Help: "RemoveDepend calls (including those implied by Satisfy).",
		}),
		cyclesRejected: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "featherstitch_engine_cycles_rejected_total",
			Help: "AddDepend calls rejected by the optional cycle check.",
		}),
		liveGraphSize: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "featherstitch_engine_live_patches",
			Help: "Patches currently allocated (created minus reclaimed).",
		}),
	}
}

func (m *engineMetrics) PatchCreated()   { m.patchesCreated.WithLabelValues("all").Inc() }
func (m *engineMetrics) PatchSatisfied() { m.patchesSatisfied.Inc() }
func (m *engineMetrics) PatchRolledBack() { m.patchesRolledBack.Inc() }
func (m *engineMetrics) DependAdded()      { m.dependsAdded.Inc() }
func (m *engineMetrics) DependRemoved()    { m.dependsRemoved.Inc() }
func (m *engineMetrics) CycleRejected()    { m.cyclesRejected.Inc() }
func (m *engineMetrics) SetLiveGraphSize(n int) { m.liveGraphSize.Set(float64(n)) }
