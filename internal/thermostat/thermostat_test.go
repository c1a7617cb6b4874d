package thermostat

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/thermostat/internal/env"
)

type fakeSource struct {
	mu sync.Mutex
	r  env.Reading
}

func (f *fakeSource) set(tempC float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.r = env.NewReading("fake", tempC, 50, time.Time{})
}

func (f *fakeSource) invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.r.Valid = false
}

func (f *fakeSource) Reading() env.Reading {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.r
}

// recorder records handler calls in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		ProcessData: func() { r.add("process") },
		OnLowTemp:   func() { r.add("low") },
		OnHighTemp:  func() { r.add("high") },
	}
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) count(name string) int {
	n := 0
	for _, c := range r.get() {
		if c == name {
			n++
		}
	}
	return n
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

var t0 = time.Unix(1_700_000_000, 0)

func at(ms int64) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func newEnabled(t *testing.T, tempC float64, opts ...Option) (*Controller, *fakeSource, *recorder) {
	t.Helper()
	src := &fakeSource{}
	src.set(tempC)
	rec := &recorder{}
	c, err := New(src, rec.handlers(), opts...)
	require.NoError(t, err)
	c.Enable()
	return c, src, rec
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(&fakeSource{}, (&recorder{}).handlers())
	require.NoError(t, err)

	s := c.State()
	assert.False(t, s.Enabled)
	assert.False(t, s.ActuatorOn)
	assert.Equal(t, 18.0, s.LimitLow)
	assert.Equal(t, 21.0, s.LimitHigh)
	assert.Equal(t, 3.0, s.Delta)
	assert.Equal(t, 10*time.Second, s.RefreshInterval())
}

func TestNew_Rejects(t *testing.T) {
	h := (&recorder{}).handlers()

	_, err := New(nil, h)
	assert.Error(t, err)

	_, err = New(&fakeSource{}, Handlers{ProcessData: func() {}, OnLowTemp: func() {}})
	assert.Error(t, err, "missing high handler")

	_, err = New(&fakeSource{}, h, WithLimits(20, 20))
	assert.ErrorIs(t, err, ErrInvalidSetting)

	_, err = New(&fakeSource{}, h, WithLimits(22, 20))
	assert.ErrorIs(t, err, ErrInvalidSetting)

	_, err = New(&fakeSource{}, h, WithRefreshInterval(0))
	assert.ErrorIs(t, err, ErrInvalidSetting)
}

func TestTick_DeadBandClosedInterval(t *testing.T) {
	for _, temp := range []float64{18.0, 18.01, 19.5, 20.99, 21.0} {
		c, _, rec := newEnabled(t, temp)

		evaluated, err := c.Tick(at(0))
		require.NoError(t, err)
		assert.True(t, evaluated)
		assert.Equal(t, []string{"process"}, rec.get(), "temp %.2f", temp)
	}
}

func TestTick_BelowLowLimit(t *testing.T) {
	c, _, rec := newEnabled(t, 17.99)

	_, err := c.Tick(at(0))
	require.NoError(t, err)

	assert.Equal(t, []string{"process", "low"}, rec.get())
	assert.True(t, c.State().ActuatorOn)
}

func TestTick_AboveHighLimit(t *testing.T) {
	c, _, rec := newEnabled(t, 21.01)

	_, err := c.Tick(at(0))
	require.NoError(t, err)

	assert.Equal(t, []string{"process", "high"}, rec.get())
	assert.False(t, c.State().ActuatorOn)
}

func TestTick_HysteresisCycle(t *testing.T) {
	c, src, rec := newEnabled(t, 17, WithRefreshInterval(time.Second))

	steps := []struct {
		temp     float64
		wantCall string
		wantOn   bool
	}{
		{temp: 17, wantCall: "low", wantOn: true},
		{temp: 19, wantCall: "", wantOn: true},
		{temp: 21, wantCall: "", wantOn: true},
		{temp: 21.5, wantCall: "high", wantOn: false},
		{temp: 20, wantCall: "", wantOn: false},
		{temp: 18, wantCall: "", wantOn: false},
		{temp: 17.5, wantCall: "low", wantOn: true},
	}

	for i, step := range steps {
		rec.reset()
		src.set(step.temp)

		evaluated, err := c.Tick(at(int64(i) * 1000))
		require.NoError(t, err)
		require.True(t, evaluated)

		want := []string{"process"}
		if step.wantCall != "" {
			want = append(want, step.wantCall)
		}
		assert.Equal(t, want, rec.get(), "step %d temp %.1f", i, step.temp)
		assert.Equal(t, step.wantOn, c.State().ActuatorOn, "step %d", i)
	}
}

func TestTick_StaleReadingSkipsReaction(t *testing.T) {
	c, src, rec := newEnabled(t, 10)
	src.invalidate()

	evaluated, err := c.Tick(at(0))
	assert.True(t, evaluated)
	assert.ErrorIs(t, err, ErrStaleReading)
	assert.Equal(t, []string{"process"}, rec.get())
	assert.False(t, c.State().ActuatorOn)
}

func TestTick_ProcessDataRunsBeforeTheCheck(t *testing.T) {
	src := &fakeSource{}
	src.set(20)
	var calls []string
	c, err := New(src, Handlers{
		// the host samples here; the controller must see the new value
		ProcessData: func() { calls = append(calls, "process"); src.set(15) },
		OnLowTemp:   func() { calls = append(calls, "low") },
		OnHighTemp:  func() { calls = append(calls, "high") },
	})
	require.NoError(t, err)
	c.Enable()

	_, err = c.Tick(at(0))
	require.NoError(t, err)
	assert.Equal(t, []string{"process", "low"}, calls)
}

func TestTick_AtMostOncePerPeriod(t *testing.T) {
	c, _, rec := newEnabled(t, 20, WithRefreshInterval(time.Second))

	for ms := int64(0); ms < 5000; ms++ {
		_, err := c.Tick(at(ms))
		require.NoError(t, err)
	}

	assert.Equal(t, 5, rec.count("process"))
}

func TestTick_CoarsePollingMissesNoPeriod(t *testing.T) {
	const (
		intervalMS = 1000
		pollMS     = 7
		startMS    = 3
		periods    = 1000
	)
	c, _, rec := newEnabled(t, 20, WithRefreshInterval(intervalMS*time.Millisecond))

	var (
		fired      []int64
		moduloHits int
	)
	for ms := int64(startMS); ms < startMS+periods*intervalMS; ms += pollMS {
		// the exact-millisecond check this schedule replaces
		if ms%intervalMS == 0 {
			moduloHits++
		}
		evaluated, err := c.Tick(at(ms))
		require.NoError(t, err)
		if evaluated {
			fired = append(fired, ms)
		}
	}

	require.Len(t, fired, periods)
	assert.Equal(t, periods, rec.count("process"))
	for n, ms := range fired {
		ideal := int64(startMS + n*intervalMS)
		lateness := ms - ideal
		require.GreaterOrEqual(t, lateness, int64(0), "period %d", n)
		require.Less(t, lateness, int64(pollMS), "period %d drifted", n)
	}
	assert.Less(t, moduloHits, periods/5, "exact-tick matching loses most periods at this poll rate")
}

func TestTick_SlowerPollingThanIntervalSkipsWithoutReplay(t *testing.T) {
	c, _, rec := newEnabled(t, 20, WithRefreshInterval(time.Second))

	for i := int64(0); i < 10; i++ {
		evaluated, err := c.Tick(at(i * 2500))
		require.NoError(t, err)
		assert.True(t, evaluated)
	}
	assert.Equal(t, 10, rec.count("process"), "one evaluation per tick, never a burst")

	// deadline keeps the original phase: after the tick at 22500 the next
	// slot is 23000
	evaluated, _ := c.Tick(at(22999))
	assert.False(t, evaluated)
	evaluated, _ = c.Tick(at(23000))
	assert.True(t, evaluated)
}

func TestDisabled_NoCallbacks(t *testing.T) {
	src := &fakeSource{}
	src.set(5)
	rec := &recorder{}
	c, err := New(src, rec.handlers(), WithRefreshInterval(time.Second))
	require.NoError(t, err)

	for ms := int64(0); ms < 10_000; ms += 100 {
		evaluated, err := c.Tick(at(ms))
		require.NoError(t, err)
		assert.False(t, evaluated)
	}
	assert.Empty(t, rec.get())
}

func TestEnable_ResumesWithoutReplay(t *testing.T) {
	c, _, rec := newEnabled(t, 20, WithRefreshInterval(time.Second))

	_, _ = c.Tick(at(0))
	require.Equal(t, 1, rec.count("process"))

	c.Disable()
	assert.False(t, c.IsEnabled())
	for ms := int64(100); ms < 10_000; ms += 100 {
		_, _ = c.Tick(at(ms))
	}
	require.Equal(t, 1, rec.count("process"))

	c.Enable()
	evaluated, _ := c.Tick(at(10_050))
	assert.True(t, evaluated, "enable evaluates on the next tick")
	assert.Equal(t, 2, rec.count("process"), "missed periods are not replayed")

	evaluated, _ = c.Tick(at(10_500))
	assert.False(t, evaluated)
	evaluated, _ = c.Tick(at(11_050))
	assert.True(t, evaluated)
}

func TestEnableDisable_Idempotent(t *testing.T) {
	c, _, rec := newEnabled(t, 20, WithRefreshInterval(time.Second))
	_, _ = c.Tick(at(0))

	c.Enable() // already enabled: schedule untouched
	evaluated, _ := c.Tick(at(500))
	assert.False(t, evaluated)

	c.Disable()
	c.Disable()
	assert.False(t, c.IsEnabled())
	assert.Equal(t, 1, rec.count("process"))
}

func TestSetRefreshInterval_Reschedules(t *testing.T) {
	c, _, _ := newEnabled(t, 20, WithRefreshInterval(10*time.Second))
	_, _ = c.Tick(at(0))

	require.NoError(t, c.SetRefreshInterval(time.Second))
	evaluated, _ := c.Tick(at(999))
	assert.False(t, evaluated)
	evaluated, _ = c.Tick(at(1000))
	assert.True(t, evaluated)
}

func TestSetters_Scenario(t *testing.T) {
	c, err := New(&fakeSource{}, (&recorder{}).handlers(), WithLimits(18, 21))
	require.NoError(t, err)
	require.Equal(t, 3.0, c.TempDelta())

	require.NoError(t, c.SetLimitHigh(25))
	assert.Equal(t, 25.0, c.LimitHigh())
	assert.Equal(t, 22.0, c.LimitLow())

	require.NoError(t, c.SetTempDelta(5))
	assert.Equal(t, 25.0, c.LimitHigh())
	assert.Equal(t, 20.0, c.LimitLow())
	assert.Equal(t, 5.0, c.TempDelta())
}

func TestSetTempDelta_AlwaysDerivesLowFromHigh(t *testing.T) {
	c, err := New(&fakeSource{}, (&recorder{}).handlers())
	require.NoError(t, err)

	require.NoError(t, c.SetLimitLow(10)) // 10..13
	require.NoError(t, c.SetTempDelta(1))

	assert.Equal(t, 13.0, c.LimitHigh(), "high stays where it was")
	assert.Equal(t, 12.0, c.LimitLow(), "low follows high, not the other way round")
}

func TestSetters_InvariantHolds(t *testing.T) {
	c, err := New(&fakeSource{}, (&recorder{}).handlers())
	require.NoError(t, err)

	ops := []func() error{
		func() error { return c.SetLimitLow(16.3) },
		func() error { return c.SetTempDelta(2.7) },
		func() error { return c.SetLimitHigh(-4.1) },
		func() error { return c.SetTempDelta(0.1) },
		func() error { return c.SetLimitLow(30.05) },
		func() error { return c.SetTempDelta(12.5) },
		func() error { return c.SetLimitHigh(21) },
	}
	for i, op := range ops {
		require.NoError(t, op())
		s := c.State()
		assert.InDelta(t, s.Delta, s.LimitHigh-s.LimitLow, 1e-9, "after op %d", i)
		assert.Greater(t, s.Delta, 0.0)
		assert.Greater(t, s.LimitHigh, s.LimitLow)
	}
}

func TestSetters_RejectInvalid(t *testing.T) {
	c, err := New(&fakeSource{}, (&recorder{}).handlers())
	require.NoError(t, err)
	before := c.State()

	tests := []struct {
		name string
		op   func() error
	}{
		{name: "zero delta", op: func() error { return c.SetTempDelta(0) }},
		{name: "negative delta", op: func() error { return c.SetTempDelta(-1) }},
		{name: "NaN delta", op: func() error { return c.SetTempDelta(math.NaN()) }},
		{name: "NaN low", op: func() error { return c.SetLimitLow(math.NaN()) }},
		{name: "Inf high", op: func() error { return c.SetLimitHigh(math.Inf(1)) }},
		{name: "-Inf low", op: func() error { return c.SetLimitLow(math.Inf(-1)) }},
		{name: "low too large for the band", op: func() error { return c.SetLimitLow(1e17) }},
		{name: "high too large for the band", op: func() error { return c.SetLimitHigh(-1e17) }},
		{name: "zero interval", op: func() error { return c.SetRefreshInterval(0) }},
		{name: "negative interval", op: func() error { return c.SetRefreshInterval(-time.Second) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSetting)

			var settingErr *SettingError
			assert.ErrorAs(t, err, &settingErr)
			assert.Equal(t, before, c.State(), "rejected change must not alter state")
		})
	}
}

func TestSetTempDelta_RejectsDeltaLostInRounding(t *testing.T) {
	c, err := New(&fakeSource{}, (&recorder{}).handlers())
	require.NoError(t, err)
	require.NoError(t, c.SetLimitHigh(1e15))
	before := c.State()

	// the spacing of float64 values near 1e15 is 0.125
	err = c.SetTempDelta(0.001)
	assert.ErrorIs(t, err, ErrInvalidSetting)
	assert.Equal(t, before, c.State())
	assert.Greater(t, c.LimitHigh(), c.LimitLow())
}

func TestRun_EvaluatesUntilCancelled(t *testing.T) {
	c, _, rec := newEnabled(t, 15, WithRefreshInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, time.Millisecond) }()

	assert.Eventually(t, func() bool { return rec.count("low") >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_RejectsNonPositivePoll(t *testing.T) {
	c, _, _ := newEnabled(t, 20)
	assert.Error(t, c.Run(context.Background(), 0))
}

func TestFormatSettings(t *testing.T) {
	out := FormatSettings(State{
		Enabled:           true,
		ActuatorOn:        false,
		LimitLow:          18,
		LimitHigh:         21,
		Delta:             3,
		RefreshIntervalMS: 10000,
	})

	assert.Contains(t, out, "Upper limit        21.0 °C")
	assert.Contains(t, out, "Delta temp          3.0 °C")
	assert.Contains(t, out, "Lower limit        18.0 °C")
	assert.Contains(t, out, "Refresh interval  10000 ms")
	assert.Contains(t, out, "Thermostat is enabled and switch is off")
}
