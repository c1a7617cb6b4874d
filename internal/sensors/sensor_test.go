package sensors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/thermostat/internal/config"
	"github.com/relabs-tech/thermostat/internal/env"
)

func TestInitialize_SucceedsAfterRetries(t *testing.T) {
	m := NewMock(env.NewStore(), 20, 50)
	m.FailInit(2)

	err := Initialize(context.Background(), m, InitPolicy{Attempts: 5, Backoff: time.Millisecond})
	require.NoError(t, err)

	inits, samples := m.Counts()
	assert.Equal(t, 3, inits)
	assert.Equal(t, 1, samples, "initialize takes the first sample")
	assert.True(t, m.Reading().Valid)
}

func TestInitialize_FatalAfterBoundedRetries(t *testing.T) {
	m := NewMock(env.NewStore(), 20, 50)
	m.FailInit(10)

	err := Initialize(context.Background(), m, InitPolicy{Attempts: 5, Backoff: time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSensorUnavailable)

	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "mock", initErr.Sensor)
	assert.Equal(t, 5, initErr.Attempts)

	inits, samples := m.Counts()
	assert.Equal(t, 5, inits)
	assert.Equal(t, 0, samples, "no sample without a confirmed sensor")
	assert.False(t, m.Reading().Valid)
}

func TestInitialize_ContextCancelledDuringBackoff(t *testing.T) {
	m := NewMock(env.NewStore(), 20, 50)
	m.FailInit(10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Initialize(ctx, m, InitPolicy{Attempts: 5, Backoff: time.Hour})
	assert.ErrorIs(t, err, ErrSensorUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInitialize_FailedFirstSampleIsNotFatal(t *testing.T) {
	m := NewMock(env.NewStore(), 20, 50)
	m.FailNextSample(errors.New("nack"))

	require.NoError(t, Initialize(context.Background(), m, InitPolicy{Attempts: 1}))
	assert.False(t, m.Reading().Valid)
}

func TestMock_SampleFailureIsTransient(t *testing.T) {
	store := env.NewStore()
	m := NewMock(store, 20, 50)
	ctx := context.Background()

	require.NoError(t, m.Sample(ctx))
	m.FailNextSample(errors.New("nack"))

	err := m.Sample(ctx)
	assert.ErrorIs(t, err, ErrReadFailed)
	assert.False(t, store.Snapshot().Valid)

	require.NoError(t, m.Sample(ctx))
	assert.True(t, store.Snapshot().Valid)
}

func TestMock_Drift(t *testing.T) {
	m := NewMock(env.NewStore(), 20, 50)
	heating := true
	m.Drift(func() bool { return heating }, 0.5)
	ctx := context.Background()

	require.NoError(t, m.Sample(ctx))
	assert.InDelta(t, 20.5, m.Celsius(), 1e-9)

	heating = false
	require.NoError(t, m.Sample(ctx))
	assert.InDelta(t, 20.25, m.Celsius(), 1e-9)
}

func TestOpen(t *testing.T) {
	store := env.NewStore()

	cfg := config.Default()
	cfg.SensorDriver = "mock"
	s, err := Open(cfg, nil, store)
	require.NoError(t, err)
	assert.Equal(t, "mock", s.Name())

	cfg.SensorDriver = "sht31"
	_, err = Open(cfg, nil, store)
	assert.Error(t, err, "sht31 without a bus")

	cfg.SensorDriver = "dht22"
	_, err = Open(cfg, nil, store)
	assert.Error(t, err)
}

func TestBME280_CancelledSampleInvalidatesStore(t *testing.T) {
	store := env.NewStore()
	store.Set(env.NewReading("bme280", 21, 40, time.Now()))
	s := NewBME280(nil, BME280DefaultAddr, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Sample(ctx)
	assert.ErrorIs(t, err, ErrReadFailed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, store.Snapshot().Valid)
	assert.ErrorIs(t, store.LastError(), ErrReadFailed)
}
