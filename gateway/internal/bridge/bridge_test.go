package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epos/pkg/correlation"
	"epos/pkg/messaging"
)

type publishedCommand struct {
	msg     messaging.Message
	replyTo string
}

// fakeBroker stands in for the publisher and, through respond, for the
// service consuming the command queue.
type fakeBroker struct {
	mu         sync.Mutex
	connected  bool
	publishErr error
	delay      time.Duration
	respond    func(msg messaging.Message) (messaging.Reply, bool)
	replies    *ReplyConsumer
	published  []publishedCommand
	wg         sync.WaitGroup
}

func (f *fakeBroker) IsConnected() bool {
	return f.connected
}

func (f *fakeBroker) PublishCommand(ctx context.Context, msg messaging.Message, replyTo string) error {
	f.mu.Lock()
	f.published = append(f.published, publishedCommand{msg: msg, replyTo: replyTo})
	f.mu.Unlock()

	if f.publishErr != nil {
		return f.publishErr
	}
	if f.respond == nil {
		return nil
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		time.Sleep(f.delay)
		reply, ok := f.respond(msg)
		if !ok {
			return
		}
		body, _ := json.Marshal(reply)
		_ = f.replies.Handle(context.Background(), amqp.Delivery{Body: body, CorrelationId: msg.ID})
	}()
	return nil
}

func newBridge(t *testing.T, broker *fakeBroker) (*Bridge, *correlation.Tracker) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	tracker := correlation.NewTracker(time.Minute)
	broker.replies = NewReplyConsumer(tracker, logger)
	t.Cleanup(broker.wg.Wait)
	return New(broker, tracker, "response_queue", time.Second, logger), tracker
}

func clientPayload() map[string]interface{} {
	return map[string]interface{}{"naziv": "Acme", "email": "a@acme.com", "tenant_id": "t-1"}
}

func TestSendAndWaitReturnsReply(t *testing.T) {
	broker := &fakeBroker{
		connected: true,
		respond: func(msg messaging.Message) (messaging.Reply, bool) {
			return messaging.Reply{"klijent_id": "k-1", "naziv": "Acme"}, true
		},
	}
	b, tracker := newBridge(t, broker)

	reply, err := b.SendAndWait(context.Background(), messaging.MessageTypeCreateClient, clientPayload(), 0)
	require.NoError(t, err)
	assert.Equal(t, "k-1", reply.String("klijent_id"))
	_, failed := reply.Failure()
	assert.False(t, failed)
	assert.Zero(t, tracker.Len())

	require.Len(t, broker.published, 1)
	sent := broker.published[0]
	assert.Equal(t, "response_queue", sent.replyTo)
	assert.Equal(t, messaging.MessageTypeCreateClient, sent.msg.Type)
	assert.NotEmpty(t, sent.msg.ID)
	assert.NotEmpty(t, sent.msg.Timestamp)

	var data map[string]string
	require.NoError(t, sent.msg.Decode(&data))
	assert.Equal(t, "a@acme.com", data["email"])
}

func TestSendAndWaitReturnsBusinessFailureVerbatim(t *testing.T) {
	broker := &fakeBroker{
		connected: true,
		respond: func(msg messaging.Message) (messaging.Reply, bool) {
			return messaging.Reply{"error": "Klijent sa email-om a@acme.com već postoji", "code": "already_exists"}, true
		},
	}
	b, _ := newBridge(t, broker)

	reply, err := b.SendAndWait(context.Background(), messaging.MessageTypeCreateClient, clientPayload(), 0)
	require.NoError(t, err)
	failure, failed := reply.Failure()
	assert.True(t, failed)
	assert.Equal(t, "Klijent sa email-om a@acme.com već postoji", failure)
}

func TestSendAndWaitTimesOutAndDropsLateReply(t *testing.T) {
	broker := &fakeBroker{connected: true}
	b, tracker := newBridge(t, broker)

	start := time.Now()
	reply, err := b.SendAndWait(context.Background(), messaging.MessageTypeCreateClient, clientPayload(), 200*time.Millisecond)
	assert.ErrorIs(t, err, correlation.ErrTimedOut)
	assert.Equal(t, TimeoutReply(), reply)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	assert.Zero(t, tracker.Len())

	// The consumer answers after the caller gave up.
	time.Sleep(100 * time.Millisecond)
	late, _ := json.Marshal(messaging.Reply{"klijent_id": "k-1"})
	assert.NoError(t, broker.replies.Handle(context.Background(), amqp.Delivery{
		Body:          late,
		CorrelationId: broker.published[0].msg.ID,
	}))
	assert.Zero(t, tracker.Len())
}

func TestSendAndWaitFailsFastWhenBrokerIsDown(t *testing.T) {
	broker := &fakeBroker{connected: false}
	b, tracker := newBridge(t, broker)

	_, err := b.SendAndWait(context.Background(), messaging.MessageTypeCreateClient, clientPayload(), 0)
	assert.ErrorIs(t, err, messaging.ErrBrokerUnavailable)
	assert.Empty(t, broker.published)
	assert.Zero(t, tracker.Len())
}

func TestSendAndWaitRemovesSlotWhenPublishFails(t *testing.T) {
	broker := &fakeBroker{connected: true, publishErr: errors.New("channel closed")}
	b, tracker := newBridge(t, broker)

	_, err := b.SendAndWait(context.Background(), messaging.MessageTypeDeleteClient, map[string]string{"klijent_id": "k-1"}, 0)
	assert.ErrorIs(t, err, messaging.ErrBrokerUnavailable)
	assert.Zero(t, tracker.Len())
}

func TestSendAndWaitRejectsDuplicateID(t *testing.T) {
	broker := &fakeBroker{connected: true}
	b, tracker := newBridge(t, broker)
	b.newID = func() string { return "fixed" }
	require.NoError(t, tracker.Register("fixed"))

	_, err := b.SendAndWait(context.Background(), messaging.MessageTypeCreateClient, clientPayload(), 0)
	assert.ErrorIs(t, err, correlation.ErrDuplicateCorrelationID)
	assert.Empty(t, broker.published)
}

func TestConcurrentRequestsGetTheirOwnReplies(t *testing.T) {
	broker := &fakeBroker{
		connected: true,
		respond: func(msg messaging.Message) (messaging.Reply, bool) {
			var data map[string]string
			if err := msg.Decode(&data); err != nil {
				return nil, false
			}
			return messaging.Reply{"klijent_id": data["email"]}, true
		},
	}
	b, tracker := newBridge(t, broker)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			email := fmt.Sprintf("c%d@acme.com", i)
			reply, err := b.SendAndWait(context.Background(), messaging.MessageTypeCreateClient,
				map[string]string{"naziv": "Acme", "email": email}, 5*time.Second)
			if assert.NoError(t, err) {
				assert.Equal(t, email, reply.String("klijent_id"))
			}
		}(i)
	}
	wg.Wait()
	assert.Zero(t, tracker.Len())
}

func TestReplyConsumerHandle(t *testing.T) {
	logger, _ := test.NewNullLogger()
	tracker := correlation.NewTracker(time.Minute)
	consumer := NewReplyConsumer(tracker, logger)

	t.Run("malformed body is dropped", func(t *testing.T) {
		err := consumer.Handle(context.Background(), amqp.Delivery{Body: []byte("{oops"), CorrelationId: "x"})
		assert.True(t, messaging.IsMalformed(err))

		err = consumer.Handle(context.Background(), amqp.Delivery{Body: []byte("null"), CorrelationId: "x"})
		assert.True(t, messaging.IsMalformed(err))
	})

	t.Run("missing correlation id is acked", func(t *testing.T) {
		assert.NoError(t, consumer.Handle(context.Background(), amqp.Delivery{Body: []byte(`{"ok":true}`)}))
	})

	t.Run("matching reply resolves the slot", func(t *testing.T) {
		require.NoError(t, tracker.Register("r-1"))
		require.NoError(t, consumer.Handle(context.Background(), amqp.Delivery{
			Body:          []byte(`{"faktura_id":"f-1"}`),
			CorrelationId: "r-1",
		}))

		reply, err := tracker.Await(context.Background(), "r-1", time.Now())
		require.NoError(t, err)
		assert.Equal(t, "f-1", reply.String("faktura_id"))
	})
}
