package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(Settings{
		Name:                "push",
		MaxRequests:         1,
		Timeout:             time.Hour,
		ConsecutiveFailures: 2,
	})
	boom := errors.New("provider down")

	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, "open", cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	var transitions []string
	settings := DefaultSettings("email")
	settings.OnStateChange = func(_, from, to string) { transitions = append(transitions, from+"->"+to) }
	cb := NewCircuitBreaker(settings)

	for i := 0; i < 10; i++ {
		assert.NoError(t, cb.Execute(func() error { return nil }))
	}
	assert.Equal(t, "closed", cb.State())
	assert.Empty(t, transitions)
	assert.Equal(t, "email", cb.Name())
}
