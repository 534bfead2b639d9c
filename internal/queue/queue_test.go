package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	require.NoError(t, q.Publish(ctx, Message{Type: "a", Body: []byte("1")}))
	require.NoError(t, q.Publish(ctx, Message{Type: "b", Body: []byte("2")}))

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	first := <-msgs
	second := <-msgs
	require.Equal(t, "a", first.Type)
	require.Equal(t, "2", string(second.Body))
	require.NoError(t, first.Ack(true))

	cancel()
	select {
	case _, ok := <-msgs:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestInMemoryPublishBlocksUntilCancelled(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Message{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Publish(ctx, Message{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSerialize(t *testing.T) {
	msg := deserialize(serialize(Message{Type: TypeClockIn, Body: []byte(`{"a":"x|y"}`)}))
	require.Equal(t, TypeClockIn, msg.Type)
	require.Equal(t, `{"a":"x|y"}`, string(msg.Body))

	raw := deserialize("no separator")
	require.Empty(t, raw.Type)
	require.Equal(t, "no separator", string(raw.Body))
}

func TestMessageAck(t *testing.T) {
	var got []bool
	msg := Message{ack: func(ok bool) error {
		got = append(got, ok)
		if !ok {
			return errors.New("nacked")
		}
		return nil
	}}
	require.NoError(t, msg.Ack(true))
	require.Error(t, msg.Ack(false))
	require.Equal(t, []bool{true, false}, got)
}

func TestClockInEventRoundTrip(t *testing.T) {
	evt := ClockInEvent{RecordID: "r1", Username: "alice", Lateness: "on_time", SameDayCount: 2}
	msg, err := NewClockInMessage(evt)
	require.NoError(t, err)
	require.Equal(t, TypeClockIn, msg.Type)

	back, err := DecodeClockIn(msg)
	require.NoError(t, err)
	require.Equal(t, evt, back)

	_, err = DecodeClockIn(Message{Type: "other"})
	require.Error(t, err)
	_, err = DecodeClockIn(Message{Type: TypeClockIn, Body: []byte("{")})
	require.Error(t, err)
}

func TestOpen(t *testing.T) {
	q, closeFn, err := Open(Options{Backend: BackendMemory})
	require.NoError(t, err)
	require.IsType(t, &InMemory{}, q)
	require.NoError(t, closeFn())

	q, _, err = Open(Options{Backend: BackendRedis, Redis: redis.NewClient(&redis.Options{Addr: "localhost:0"})})
	require.NoError(t, err)
	require.Equal(t, DefaultName, q.(*RedisQueue).key)

	_, _, err = Open(Options{Backend: BackendRedis})
	require.Error(t, err)

	_, _, err = Open(Options{Backend: "kafka"})
	require.ErrorContains(t, err, "unknown queue backend")
}
