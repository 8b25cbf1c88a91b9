package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(clk *testclock.Clock) *CircuitBreaker {
	return NewCircuitBreaker("dispatch",
		WithMaxFailures(2),
		WithResetTimeout(10*time.Second),
		WithClock(clk),
	)
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	// Given
	clk := testclock.NewClock(time.Unix(0, 0))
	cb := newTestBreaker(clk)
	boom := errors.New("boom")

	// When
	_ = cb.Execute(func() error { return boom })
	assert.Equal(t, StateClosed, cb.State())
	_ = cb.Execute(func() error { return boom })

	// Then
	assert.Equal(t, StateOpen, cb.State())
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenAfterReset(t *testing.T) {
	clk := testclock.NewClock(time.Unix(0, 0))
	cb := newTestBreaker(clk)
	cb.RecordFailure()
	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())

	clk.Advance(10 * time.Second)

	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clk := testclock.NewClock(time.Unix(0, 0))
	cb := NewCircuitBreaker("dispatch", WithMaxFailures(1), WithResetTimeout(time.Second), WithClock(clk))
	cb.RecordFailure()
	clk.Advance(time.Second)
	require.Equal(t, StateHalfOpen, cb.State())

	cb.RecordFailure()

	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
