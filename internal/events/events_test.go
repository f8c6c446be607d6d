package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/partyroom/internal/testutil"
)

var at = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestKafkaPublisherSendsKeyedJSON(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	ev := New(PlayerLoggedIn, "alice", "r1", at)

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "sessions" {
			return errors.New("wrong topic")
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "alice" {
			return errors.New("wrong key")
		}
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var got Event
		if err := json.Unmarshal(raw, &got); err != nil {
			return err
		}
		if got.ID != ev.ID || got.Type != ev.Type || got.RoomID != ev.RoomID || !got.At.Equal(ev.At) {
			return errors.New("event changed in transit")
		}
		return nil
	})

	pub := NewKafkaPublisherWithProducer(producer, "sessions")
	require.NoError(t, pub.Publish(context.Background(), ev))
	require.NoError(t, pub.Close())
}

func TestKafkaPublisherReportsFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := NewKafkaPublisherWithProducer(producer, "sessions")
	err := pub.Publish(context.Background(), New(PlayerEvicted, "bob", "r2", at))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, pub.Close())
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, Event) error {
	f.calls++
	return errors.New("down")
}
func (f *failingPublisher) Close() error { return nil }

func TestEmitSwallowsErrors(t *testing.T) {
	pub := &failingPublisher{}
	Emit(context.Background(), pub, testutil.NopLogger(), New(PlayerLoggedOut, "alice", "", at))
	assert.Equal(t, 1, pub.calls)
}

func TestNewAssignsUniqueIDs(t *testing.T) {
	a := New(PlayerLoggedIn, "alice", "r1", at)
	b := New(PlayerLoggedIn, "alice", "r1", at)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), a))
}
