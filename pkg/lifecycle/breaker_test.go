package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failing() error    { return errBoom }
func succeeding() error { return nil }

func TestCircuitBreaker_OpensAfterExactlyThresholdFailures(t *testing.T) {
	breaker := NewCircuitBreaker("test", 3, time.Minute)

	for i := 0; i < 2; i++ {
		err := breaker.Execute(failing)
		require.ErrorIs(t, err, errBoom, "breaker must stay closed below the threshold")
	}
	assert.Equal(t, "closed", breaker.State())

	err := breaker.Execute(failing)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, "open", breaker.State())

	err = breaker.Execute(succeeding)
	assert.ErrorIs(t, err, ErrCircuitOpen, "open breaker must fail fast without calling through")
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	breaker := NewCircuitBreaker("test", 3, time.Minute)

	require.Error(t, breaker.Execute(failing))
	require.Error(t, breaker.Execute(failing))
	require.NoError(t, breaker.Execute(succeeding))
	require.Error(t, breaker.Execute(failing))
	require.Error(t, breaker.Execute(failing))

	assert.Equal(t, "closed", breaker.State())
}

func TestCircuitBreaker_HalfOpenAdmitsOneProbe(t *testing.T) {
	breaker := NewCircuitBreaker("test", 1, time.Minute)

	current := time.Now()
	breaker.now = func() time.Time { return current }

	require.ErrorIs(t, breaker.Execute(failing), errBoom)
	require.Equal(t, "open", breaker.State())

	// Still open before the reset timeout elapses
	current = current.Add(30 * time.Second)
	assert.ErrorIs(t, breaker.Execute(succeeding), ErrCircuitOpen)

	current = current.Add(31 * time.Second)
	assert.Equal(t, "half-open", breaker.State())

	// Successful probe closes the breaker
	require.NoError(t, breaker.Execute(succeeding))
	assert.Equal(t, "closed", breaker.State())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	breaker := NewCircuitBreaker("test", 1, time.Minute)

	current := time.Now()
	breaker.now = func() time.Time { return current }

	require.ErrorIs(t, breaker.Execute(failing), errBoom)

	current = current.Add(2 * time.Minute)
	require.ErrorIs(t, breaker.Execute(failing), errBoom)
	assert.Equal(t, "open", breaker.State())

	// A second full timeout must elapse before the next probe
	current = current.Add(30 * time.Second)
	assert.ErrorIs(t, breaker.Execute(succeeding), ErrCircuitOpen)

	current = current.Add(31 * time.Second)
	require.NoError(t, breaker.Execute(succeeding))
	assert.Equal(t, "closed", breaker.State())
}

func TestCircuitBreaker_HalfOpenRejectsConcurrentSecondCall(t *testing.T) {
	breaker := NewCircuitBreaker("test", 1, time.Millisecond)

	require.ErrorIs(t, breaker.Execute(failing), errBoom)
	time.Sleep(5 * time.Millisecond)

	probeEntered := make(chan struct{})
	releaseProbe := make(chan struct{})
	probeDone := make(chan error, 1)

	go func() {
		probeDone <- breaker.Execute(func() error {
			close(probeEntered)
			<-releaseProbe
			return nil
		})
	}()

	<-probeEntered
	assert.ErrorIs(t, breaker.Execute(succeeding), ErrCircuitOpen,
		"only one probe may be in flight while half-open")

	close(releaseProbe)
	require.NoError(t, <-probeDone)
	assert.Equal(t, "closed", breaker.State())
}
