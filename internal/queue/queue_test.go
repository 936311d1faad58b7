package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	require.NoError(t, q.Publish(ctx, Message{Type: "a", Body: []byte(`{"n":1}`)}))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	msg := receive(t, ch)
	assert.Equal(t, "a", msg.Type)
	assert.JSONEq(t, `{"n":1}`, string(msg.Body))

	cancel()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestInMemoryPublishRespectsContext(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Message{Type: "fill"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Publish(ctx, Message{Type: "blocked"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisQueueFIFO(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewRedisQueue(client, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Publish(ctx, Message{Type: "first", Body: []byte(`"1"`)}))
	require.NoError(t, q.Publish(ctx, Message{Type: "second", Body: []byte(`"2"`)}))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", receive(t, ch).Type)
	assert.Equal(t, "second", receive(t, ch).Type)
}

func TestRedisQueueSkipsMalformed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewRedisQueue(client, "events")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := mr.Lpush("events", "not json")
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, Message{Type: "good", Body: []byte(`{}`)}))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "good", receive(t, ch).Type)
}

func TestDiscard(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var q Queue = Discard{}
	require.NoError(t, q.Publish(ctx, Message{Type: "x"}))
	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	q, closeFn, err := Open(ctx, "memory", "", "")
	require.NoError(t, err)
	assert.IsType(t, &InMemory{}, q)
	assert.NoError(t, closeFn())

	q, _, err = Open(ctx, "none", "", "")
	require.NoError(t, err)
	assert.IsType(t, Discard{}, q)

	mr := miniredis.RunT(t)
	q, closeFn, err = Open(ctx, "redis", mr.Addr(), "k")
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, Message{Type: "x"}))
	assert.True(t, mr.Exists("k"))
	require.IsType(t, &RedisQueue{}, q)
	assert.Greater(t, q.(*RedisQueue).client.Options().ReadTimeout, popBlock)
	assert.NoError(t, closeFn())

	_, _, err = Open(ctx, "kafka", "", "")
	assert.ErrorContains(t, err, "unknown queue backend")
}
