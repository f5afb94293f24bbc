package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pders01/moji/internal/fault"
)

func TestLinear(t *testing.T) {
	l := Linear{Step: 1200 * time.Millisecond}
	assert.Equal(t, 1200*time.Millisecond, l.Delay(1))
	assert.Equal(t, 2400*time.Millisecond, l.Delay(2))
	assert.Equal(t, 3600*time.Millisecond, l.Delay(3))
	assert.Equal(t, 1200*time.Millisecond, l.Delay(0))
}

func TestExponential(t *testing.T) {
	e := Exponential{Base: 100 * time.Millisecond, Max: time.Second}
	assert.Equal(t, 100*time.Millisecond, e.Delay(1))
	assert.Equal(t, 200*time.Millisecond, e.Delay(2))
	assert.Equal(t, 800*time.Millisecond, e.Delay(4))
	assert.Equal(t, time.Second, e.Delay(10))
}

func TestPolicyShouldRetry(t *testing.T) {
	p := Transient(3, None{})

	assert.True(t, p.ShouldRetry(fault.KindNetworkTimeout, 1))
	assert.True(t, p.ShouldRetry(fault.KindNetworkConnection, 2))
	assert.False(t, p.ShouldRetry(fault.KindNetworkTimeout, 3), "final attempt is terminal")
	assert.False(t, p.ShouldRetry(fault.KindHTTPStatus, 1))
	assert.False(t, p.ShouldRetry(fault.KindOversizedContent, 1))
}

func TestPolicyAttemptsFloor(t *testing.T) {
	assert.Equal(t, 1, Policy{}.Attempts())
	assert.Equal(t, time.Duration(0), Policy{}.Delay(2))
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
