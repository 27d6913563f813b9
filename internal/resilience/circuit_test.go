package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/evidence-cli/internal/config"
)

var errUpstream = errors.New("upstream down")

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestBreaker(threshold int) (*CircuitBreaker, *clock, *[]string) {
	var changes []string
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: threshold,
		ResetTimeout:     10 * time.Second,
		OnStateChange: func(from, to CircuitState) {
			changes = append(changes, from.String()+"->"+to.String())
		},
	})
	cb.now = c.now
	return cb, c, &changes
}

func fail(context.Context) error { return errUpstream }
func pass(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _, changes := newTestBreaker(2)
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errUpstream)
	assert.Equal(t, CircuitClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, fail), errUpstream)
	assert.Equal(t, CircuitOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, []string{"closed->open"}, *changes)
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb, _, _ := newTestBreaker(2)
	ctx := context.Background()
	_ = cb.Execute(ctx, fail)
	require.NoError(t, cb.Execute(ctx, pass))
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb, c, changes := newTestBreaker(1)
	ctx := context.Background()
	_ = cb.Execute(ctx, fail)
	require.Equal(t, CircuitOpen, cb.State())

	c.t = c.t.Add(11 * time.Second)
	assert.Equal(t, CircuitHalfOpen, cb.State())
	require.NoError(t, cb.Execute(ctx, pass))
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, *changes)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, c, _ := newTestBreaker(3)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, fail)
	}
	c.t = c.t.Add(11 * time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errUpstream)
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, pass), ErrCircuitOpen)
}

func TestCircuitBreaker_CanceledDoesNotTrip(t *testing.T) {
	cb, _, _ := newTestBreaker(1)
	err := cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _, _ := newTestBreaker(1)
	_ = cb.Execute(context.Background(), fail)
	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.NoError(t, cb.Execute(context.Background(), pass))
}

func TestExecuteVal(t *testing.T) {
	cb, _, _ := newTestBreaker(1)
	v, err := ExecuteVal(context.Background(), cb, func(context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	_, _ = ExecuteVal(context.Background(), cb, func(context.Context) (string, error) { return "", errUpstream })
	v, err = ExecuteVal(context.Background(), cb, func(context.Context) (string, error) { return "never", nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Empty(t, v)
}

func TestServiceBreakers(t *testing.T) {
	sb := NewServiceBreakers(CircuitBreakerConfig{FailureThreshold: 1})
	edge := sb.Get("edge")
	assert.Same(t, edge, sb.Get("edge"))
	_ = edge.Execute(context.Background(), fail)
	_ = sb.Get("edgar")

	assert.Equal(t, map[string]string{"edge": "open", "edgar": "closed"}, sb.States())
}

func TestFromGenerationConfig(t *testing.T) {
	cfg := FromGenerationConfig(config.GenerationConfig{BreakerFailures: 3, BreakerResetSecs: 5})
	assert.Equal(t, 3, cfg.FailureThreshold)
	assert.Equal(t, 5*time.Second, cfg.ResetTimeout)

	def := FromGenerationConfig(config.GenerationConfig{})
	assert.Equal(t, DefaultCircuitBreakerConfig().FailureThreshold, def.FailureThreshold)
}
