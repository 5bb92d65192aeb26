package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves queued messages and blocks once they run out
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	fetched   []int64
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.fetched = append(r.fetched, msg.Offset)
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) Committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func (r *fakeReader) Fetched() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.fetched...)
}

func newTestConsumer(reader messageReader) *Consumer {
	c := newConsumer(reader, "product-events")
	c.retryBackoff = time.Millisecond
	c.maxBackoff = 4 * time.Millisecond
	return c
}

func TestStartConsumingRetriesFailedMessageBeforeMovingOn(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{{Offset: 10}, {Offset: 11}}}
	consumer := newTestConsumer(reader)

	var mu sync.Mutex
	var handled []int64
	failures := 0
	handler := func(_ context.Context, msg kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, msg.Offset)
		if msg.Offset == 10 && failures < 2 {
			failures++
			return errors.New("database unavailable")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.StartConsuming(ctx, handler) }()

	assert.Eventually(t, func() bool { return len(reader.Committed()) == 2 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{10, 10, 10, 11}, handled)
	assert.Equal(t, []int64{10, 11}, reader.Committed())
}

func TestStartConsumingStopsRetryingOnCancel(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{{Offset: 10}, {Offset: 11}}}
	consumer := newTestConsumer(reader)

	attempts := make(chan struct{}, 100)
	handler := func(context.Context, kafka.Message) error {
		attempts <- struct{}{}
		return errors.New("always fails")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.StartConsuming(ctx, handler) }()

	<-attempts
	<-attempts
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop after cancel")
	}

	assert.Empty(t, reader.Committed())
	assert.Equal(t, []int64{10}, reader.Fetched())
}
