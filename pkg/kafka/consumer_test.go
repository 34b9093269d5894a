package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyHandler struct {
	failures int
	calls    int
	panics   bool
}

func (h *flakyHandler) Topic() string { return "pricing.sales" }

func (h *flakyHandler) Handle(_ context.Context, _ []byte) error {
	h.calls++
	if h.panics {
		panic("boom")
	}
	if h.calls <= h.failures {
		return errors.New("transient")
	}
	return nil
}

func newTestConsumer(t *testing.T, retries int) *Consumer {
	t.Helper()
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(retries, time.Millisecond, 2*time.Millisecond),
	)
	require.NoError(t, err)
	return c
}

func TestNewConsumerRequiresBrokers(t *testing.T) {
	_, err := NewConsumer()
	require.Error(t, err)
}

func TestProcessRetriesUntilSuccess(t *testing.T) {
	c := newTestConsumer(t, 3)
	h := &flakyHandler{failures: 2}

	require.NoError(t, c.process(h, []byte(`{}`)))
	assert.Equal(t, 3, h.calls)
}

func TestProcessGivesUpAfterRetryMax(t *testing.T) {
	c := newTestConsumer(t, 2)
	h := &flakyHandler{failures: 10}

	require.Error(t, c.process(h, nil))
	assert.Equal(t, 3, h.calls)
}

func TestProcessRecoversPanics(t *testing.T) {
	c := newTestConsumer(t, 0)
	h := &flakyHandler{panics: true}

	err := c.process(h, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}

func TestRegisterHandlerIgnoresDuplicates(t *testing.T) {
	c := newTestConsumer(t, 0)
	first := &flakyHandler{}
	c.RegisterHandler(first)
	c.RegisterHandler(&flakyHandler{failures: 1})

	assert.Same(t, first, c.handlers["pricing.sales"])
}

func TestBackoffWithJitterStaysInRange(t *testing.T) {
	lo, hi := 10*time.Millisecond, 80*time.Millisecond
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffWithJitter(lo, hi, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, hi)
	}
}
