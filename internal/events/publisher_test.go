package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessPublisher_DeliversToSubscribers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher, pubSub := NewInProcessEventPublisher("qz.", logger)
	defer publisher.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, err := pubSub.Subscribe(ctx, "qz."+TypeAttemptSubmitted)
	require.NoError(t, err)

	event := NewEvent(TypeAttemptSubmitted, AttemptFinishedData{AttemptID: "a1", TestID: "t1", UserID: "u1", Score: 50})
	require.NoError(t, publisher.Publish(ctx, event))

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, event.ID, msg.UUID)
		assert.Equal(t, TypeAttemptSubmitted, msg.Metadata.Get("event_type"))

		var got Event
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		assert.Equal(t, eventSource, got.Source)
		assert.Equal(t, eventVersion, got.Version)
		data, ok := got.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "a1", data["attemptId"])
	case <-ctx.Done():
		t.Fatal("event was not delivered")
	}
}

func TestNewEventPublisher_FallsBackWithoutBrokers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher, err := NewEventPublisher(nil, "qz.", logger)
	require.NoError(t, err)
	defer publisher.Close()

	_, ok := publisher.(*WatermillPublisher)
	assert.True(t, ok)
}

func TestMockEventPublisher(t *testing.T) {
	m := NewMockEventPublisher(slog.Default())
	require.NoError(t, m.Publish(context.Background(), NewEvent(TypeUserProvisioned, nil)))
	require.NoError(t, m.Publish(context.Background(), NewEvent(TypeAttemptSubmitted, nil)))

	assert.Len(t, m.GetPublishedEvents(), 2)
	assert.Len(t, m.EventsOfType(TypeUserProvisioned), 1)

	m.ClearEvents()
	assert.Empty(t, m.GetPublishedEvents())
}
