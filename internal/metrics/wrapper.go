package metrics

import "github.com/prometheus/client_golang/prometheus"

// Interfaces for metrics to avoid circular imports
type MetricsCounter interface {
	Inc()
}

type MetricsGauge interface {
	Set(float64)
	Add(float64)
}

type MetricsHistogram interface {
	Observe(float64)
}

// Short aliases kept for call sites that predate the Metrics* names
type Counter = MetricsCounter
type Gauge = MetricsGauge
type Histogram = MetricsHistogram

// MetricsWrapper exposes the service metrics behind small flat methods so
// that the model, jobs, and registry packages can record observations
// without importing prometheus directly.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

// Model adapter and cache observations.

func (w *MetricsWrapper) AdapterCallsInc()    { w.m.AdapterCalls.Inc() }
func (w *MetricsWrapper) AdapterFailuresInc() { w.m.AdapterFailures.Inc() }
func (w *MetricsWrapper) CacheHitsInc()       { w.m.CacheHits.Inc() }
func (w *MetricsWrapper) CacheMissesInc()     { w.m.CacheMisses.Inc() }
func (w *MetricsWrapper) CacheEvictionsInc()  { w.m.CacheEvictions.Inc() }

func (w *MetricsWrapper) CacheEntriesSet(v float64) { w.m.CacheEntries.Set(v) }

// Training observations.

func (w *MetricsWrapper) TrainRunInc(family string) {
	w.m.TrainRuns.WithLabelValues(family).Inc()
}

func (w *MetricsWrapper) TrainDurationObserve(seconds float64) {
	w.m.TrainDuration.Observe(seconds)
}

func (w *MetricsWrapper) TrainFailuresInc() { w.m.TrainFailures.Inc() }

// Job lifecycle observations.

func (w *MetricsWrapper) JobsActiveAdd(delta float64) { w.m.JobsActive.Add(delta) }
func (w *MetricsWrapper) JobsQueuedSet(v float64)     { w.m.JobsQueued.Set(v) }
func (w *MetricsWrapper) JobsCompletedInc()           { w.m.JobsCompleted.Inc() }
func (w *MetricsWrapper) JobsFailedInc()              { w.m.JobsFailed.Inc() }

// Registry mirror observations.

func (w *MetricsWrapper) SyncsInc()        { w.m.RegistrySyncs.Inc() }
func (w *MetricsWrapper) SyncFailuresInc() { w.m.RegistrySyncFailures.Inc() }

func (w *MetricsWrapper) BreakerOpenSet(open bool) {
	if open {
		w.m.RegistryBreakerOpen.Set(1)
	} else {
		w.m.RegistryBreakerOpen.Set(0)
	}
}

// Accessors returning the narrow interfaces, for call sites that hold a
// single instrument rather than the whole wrapper.

func (w *MetricsWrapper) UploadsTotal() MetricsCounter {
	return &CounterWrapper{w.m.UploadsTotal}
}

func (w *MetricsWrapper) DatasetsRegistered() MetricsCounter {
	return &CounterWrapper{w.m.DatasetsRegistered}
}

func (w *MetricsWrapper) PredictRows() MetricsCounter {
	return &CounterWrapper{w.m.PredictRows}
}

func (w *MetricsWrapper) WSConnections() MetricsGauge {
	return &GaugeWrapper{w.m.WSConnections}
}

func (w *MetricsWrapper) IngestDuration() MetricsHistogram {
	return &HistogramWrapper{w.m.IngestDuration}
}

type CounterWrapper struct {
	c prometheus.Counter
}

func (cw *CounterWrapper) Inc() {
	cw.c.Inc()
}

type GaugeWrapper struct {
	g prometheus.Gauge
}

func (gw *GaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}

func (gw *GaugeWrapper) Add(v float64) {
	gw.g.Add(v)
}

type HistogramWrapper struct {
	h prometheus.Histogram
}

func (hw *HistogramWrapper) Observe(v float64) {
	hw.h.Observe(v)
}
