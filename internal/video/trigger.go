package video

// TriggerSampler wraps a sampler with a boost hook: a consumer that spots an
// activity boundary can request denser sampling for a bounded stretch of
// video time without restarting the scan. Outside boosted stretches the base
// interval applies.
type TriggerSampler struct {
	inner         Resampler
	baseInterval  float64
	denseInterval float64
	boostUntil    float64
	boosting      bool
}

// NewTriggerSampler wraps inner. baseInterval is the normal sampling step;
// denseInterval is the step used while a boost is active.
func NewTriggerSampler(inner Resampler, baseInterval, denseInterval float64) *TriggerSampler {
	inner.SetInterval(baseInterval)
	return &TriggerSampler{
		inner:         inner,
		baseInterval:  baseInterval,
		denseInterval: denseInterval,
	}
}

// NewTriggerFileSampler opens path and wraps it in a TriggerSampler whose
// dense step is denseRatio times finer than the configured one.
func NewTriggerFileSampler(path string, opts Options, denseRatio float64) (*TriggerSampler, error) {
	if denseRatio < 1 {
		denseRatio = 1
	}
	base := opts.interval()
	inner, err := NewFileSampler(path, opts)
	if err != nil {
		return nil, err
	}
	return NewTriggerSampler(inner, base, base/denseRatio), nil
}

// Boost requests dense sampling until the given video timestamp. Calling it
// again extends the boosted stretch.
func (t *TriggerSampler) Boost(untilTS float64) {
	if untilTS > t.boostUntil {
		t.boostUntil = untilTS
	}
	if !t.boosting {
		t.boosting = true
		t.inner.SetInterval(t.denseInterval)
	}
}

// Next advances the underlying sampler, reverting to the base interval once
// the boosted stretch is behind us.
func (t *TriggerSampler) Next() bool {
	if t.boosting && t.inner.Pending() > t.boostUntil {
		t.boosting = false
		t.inner.SetInterval(t.baseInterval)
	}
	return t.inner.Next()
}

// Sample returns the current frame of the underlying sampler.
func (t *TriggerSampler) Sample() *FrameSample { return t.inner.Sample() }

// Err returns the terminal error of the underlying sampler.
func (t *TriggerSampler) Err() error { return t.inner.Err() }

// Close closes the underlying sampler.
func (t *TriggerSampler) Close() error { return t.inner.Close() }
