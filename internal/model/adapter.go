package model

// Adapter is the capability surface the optimizer and surface evaluator
// run against. Predict returns the expected final price; PredictProba
// returns the probability the lot sells.
type Adapter interface {
	Predict(c Candidate) (float64, error)
	PredictProba(c Candidate) (float64, error)
}

// MetricsInterface defines metrics methods needed by the model layer
type MetricsInterface interface {
	AdapterCallsInc()
	AdapterFailuresInc()
	CacheHitsInc()
	CacheMissesInc()
	CacheEvictionsInc()
	CacheEntriesSet(float64)
	TrainRunInc(family string)
	TrainDurationObserve(float64)
	TrainFailuresInc()
}

// instrumentedAdapter counts adapter calls and failures around an inner
// adapter.
type instrumentedAdapter struct {
	inner   Adapter
	metrics MetricsInterface
}

// Instrument wraps an adapter with call and failure counting. A nil
// metrics sink returns the adapter unchanged.
func Instrument(a Adapter, metrics MetricsInterface) Adapter {
	if metrics == nil {
		return a
	}
	return &instrumentedAdapter{inner: a, metrics: metrics}
}

func (ia *instrumentedAdapter) Predict(c Candidate) (float64, error) {
	ia.metrics.AdapterCallsInc()
	v, err := ia.inner.Predict(c)
	if err != nil {
		ia.metrics.AdapterFailuresInc()
	}
	return v, err
}

func (ia *instrumentedAdapter) PredictProba(c Candidate) (float64, error) {
	ia.metrics.AdapterCallsInc()
	v, err := ia.inner.PredictProba(c)
	if err != nil {
		ia.metrics.AdapterFailuresInc()
	}
	return v, err
}
