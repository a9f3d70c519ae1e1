// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDevice = errors.New("device timeout")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	return New("note-acceptor", Settings{Threshold: threshold, Cooldown: 10 * time.Second, Now: clk.now}), clk
}

func fail() error    { return errDevice }
func succeed() error { return nil }

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(2)

	require.ErrorIs(t, b.Do(fail), errDevice)
	assert.Equal(t, Closed, b.State())
	assert.True(t, b.Allows())

	require.ErrorIs(t, b.Do(fail), errDevice)
	assert.Equal(t, Tripped, b.State())
	assert.False(t, b.Allows())

	called := false
	err := b.Do(func() error { called = true; return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerSuccessResetsStreak(t *testing.T) {
	b, _ := newTestBreaker(2)

	_ = b.Do(fail)
	require.NoError(t, b.Do(succeed))
	_ = b.Do(fail)
	assert.Equal(t, Closed, b.State())
}

func TestBreakerTrialOutcomeDecidesState(t *testing.T) {
	b, clk := newTestBreaker(1)

	_ = b.Do(fail)
	require.Equal(t, Tripped, b.State())

	clk.advance(10 * time.Second)
	assert.True(t, b.Allows(), "cooldown elapsed")

	require.ErrorIs(t, b.Do(fail), errDevice)
	require.Equal(t, Tripped, b.State(), "failed trial trips again")
	assert.False(t, b.Allows())

	clk.advance(10 * time.Second)
	require.NoError(t, b.Do(succeed))
	assert.Equal(t, Closed, b.State())
}

func TestBreakerAdmitsOneTrialAtATime(t *testing.T) {
	b, clk := newTestBreaker(1)
	_ = b.Do(fail)
	clk.advance(time.Minute)

	var nested error
	require.NoError(t, b.Do(func() error {
		assert.Equal(t, Trial, b.State())
		assert.False(t, b.Allows())
		nested = b.Do(succeed)
		return nil
	}))
	require.ErrorIs(t, nested, ErrCircuitOpen)
	assert.Equal(t, Closed, b.State())
}

func TestBreakerCountsPanicAsFailure(t *testing.T) {
	b, _ := newTestBreaker(1)

	assert.PanicsWithValue(t, "driver crashed", func() {
		_ = b.Do(func() error { panic("driver crashed") })
	})
	assert.Equal(t, Tripped, b.State())
	require.ErrorIs(t, b.Do(succeed), ErrCircuitOpen)
}

func TestNewBreakerDefaults(t *testing.T) {
	b := New("defaults", Settings{})
	assert.Equal(t, defaultThreshold, b.threshold)
	assert.Equal(t, defaultCooldown, b.cooldown)
	assert.Equal(t, "defaults", b.Name())
	assert.Equal(t, "closed", b.State().String())
	assert.Equal(t, "half-open", Trial.String())
}
