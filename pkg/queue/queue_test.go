package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	ProductID string `json:"product_id"`
}

type recordingJob struct {
	seen []string
	err  error
}

func (j *recordingJob) Type() string { return "retrain" }

func (j *recordingJob) Handle(_ context.Context, raw json.RawMessage) error {
	p, err := Decode[payload](raw)
	if err != nil {
		return err
	}
	j.seen = append(j.seen, p.ProductID)
	return j.err
}

// unreachable points at a closed port so Redis calls fail fast.
func unreachable() *redis.Client {
	return redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
}

func TestDecode(t *testing.T) {
	p, err := Decode[payload](json.RawMessage(`{"product_id":"PROD001"}`))
	require.NoError(t, err)
	assert.Equal(t, "PROD001", p.ProductID)

	_, err = Decode[payload](nil)
	assert.Error(t, err)
	_, err = Decode[payload](json.RawMessage(`{`))
	assert.Error(t, err)
}

func TestDefaultsAndRegister(t *testing.T) {
	q := NewRedisQueue(unreachable(), Config{}, nil)
	assert.Equal(t, 1, q.cfg.Workers)
	assert.Equal(t, 10*time.Second, q.cfg.RetryDelay)
	assert.Equal(t, "priceopt:queue:messages", q.queueKey())
	assert.Equal(t, "priceopt:queue:dlq", q.deadLetterKey())

	first := &recordingJob{}
	q.Register(first)
	q.Register(&recordingJob{})
	j, ok := q.job("retrain")
	require.True(t, ok)
	assert.Same(t, first, j)
}

func TestEnqueueRejectsUnknownType(t *testing.T) {
	q := NewRedisQueue(unreachable(), Config{}, nil)
	_, err := q.Enqueue(context.Background(), "missing", payload{})
	assert.ErrorContains(t, err, "no job registered")
}

func TestEnqueueSurfacesRedisErrors(t *testing.T) {
	q := NewRedisQueue(unreachable(), Config{}, nil)
	q.Register(&recordingJob{})
	_, err := q.Enqueue(context.Background(), "retrain", payload{ProductID: "PROD001"})
	assert.Error(t, err)
}

func TestProcessRunsJob(t *testing.T) {
	q := NewRedisQueue(unreachable(), Config{RetryLimit: 1}, nil)
	job := &recordingJob{}
	q.Register(job)

	q.process(context.Background(), Message{ID: "1", Type: "retrain", Payload: json.RawMessage(`{"product_id":"PROD002"}`)})
	assert.Equal(t, []string{"PROD002"}, job.seen)

	// a failing job is rescheduled; the Redis error is only logged
	job.err = errors.New("boom")
	q.process(context.Background(), Message{ID: "2", Type: "retrain", Payload: json.RawMessage(`{"product_id":"PROD003"}`)})
	assert.Equal(t, []string{"PROD002", "PROD003"}, job.seen)
}

func TestStartFailsWithoutRedis(t *testing.T) {
	q := NewRedisQueue(unreachable(), Config{}, nil)
	assert.Error(t, q.Start())
	require.NoError(t, q.Stop(context.Background()))
}
