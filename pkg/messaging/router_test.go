package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epos/pkg/apperr"
)

type sentReply struct {
	replyTo       string
	correlationID string
	reply         Reply
}

type recordingReplies struct {
	mu   sync.Mutex
	sent []sentReply
	err  error
}

func (r *recordingReplies) PublishReply(ctx context.Context, replyTo, correlationID string, reply Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentReply{replyTo, correlationID, reply})
	return r.err
}

func commandDelivery(t *testing.T, msg Message, replyTo string) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return amqp.Delivery{
		Body:          body,
		ReplyTo:       replyTo,
		CorrelationId: msg.ID,
		Type:          string(msg.Type),
	}
}

type clientPayload struct {
	Naziv string `json:"naziv"`
	Email string `json:"email"`
}

func TestRouterRepliesWithHandlerResult(t *testing.T) {
	logger, _ := test.NewNullLogger()
	replies := &recordingReplies{}
	router := NewRouter(replies, logger)
	router.Handle(MessageTypeCreateClient, func(ctx context.Context, msg Message) (Reply, error) {
		var p clientPayload
		if err := msg.Decode(&p); err != nil {
			return nil, err
		}
		return Reply{"klijent_id": 1, "naziv": p.Naziv}, nil
	})

	msg, err := NewMessageWithID("c-1", MessageTypeCreateClient, clientPayload{Naziv: "Acme", Email: "a@acme.com"})
	require.NoError(t, err)

	require.NoError(t, router.Deliver(context.Background(), commandDelivery(t, msg, "response_queue")))
	require.Len(t, replies.sent, 1)
	assert.Equal(t, "response_queue", replies.sent[0].replyTo)
	assert.Equal(t, "c-1", replies.sent[0].correlationID)
	assert.Equal(t, "Acme", replies.sent[0].reply["naziv"])
}

func TestRouterAnswersBusinessFailureAndAcks(t *testing.T) {
	logger, _ := test.NewNullLogger()
	replies := &recordingReplies{}
	router := NewRouter(replies, logger)
	router.Handle(MessageTypeCreateClient, func(ctx context.Context, msg Message) (Reply, error) {
		return nil, apperr.AlreadyExists("Klijent sa email-om %s već postoji", "a@acme.com")
	})

	msg, err := NewMessageWithID("c-2", MessageTypeCreateClient, clientPayload{})
	require.NoError(t, err)

	require.NoError(t, router.Deliver(context.Background(), commandDelivery(t, msg, "response_queue")))
	require.Len(t, replies.sent, 1)
	failure, ok := replies.sent[0].reply.Failure()
	assert.True(t, ok)
	assert.Equal(t, "Klijent sa email-om a@acme.com već postoji", failure)
	assert.Equal(t, "already_exists", replies.sent[0].reply.Code())
}

func TestRouterRequeuesTransientFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	replies := &recordingReplies{}
	router := NewRouter(replies, logger)
	dbErr := errors.New("database is locked")
	router.Handle(MessageTypeDeleteClient, func(ctx context.Context, msg Message) (Reply, error) {
		return nil, dbErr
	})

	msg, err := NewMessageWithID("c-3", MessageTypeDeleteClient, map[string]int{"klijent_id": 1})
	require.NoError(t, err)

	err = router.Deliver(context.Background(), commandDelivery(t, msg, "response_queue"))
	assert.ErrorIs(t, err, dbErr)
	assert.False(t, IsMalformed(err))
	assert.Empty(t, replies.sent)
}

func TestRouterDropsUndecodableMessages(t *testing.T) {
	logger, _ := test.NewNullLogger()
	replies := &recordingReplies{}
	router := NewRouter(replies, logger)

	err := router.Deliver(context.Background(), amqp.Delivery{
		Body:          []byte("{not json"),
		ReplyTo:       "response_queue",
		CorrelationId: "c-4",
	})
	assert.True(t, IsMalformed(err))
	require.Len(t, replies.sent, 1)
	assert.Equal(t, "c-4", replies.sent[0].correlationID)
	assert.Equal(t, "validation", replies.sent[0].reply.Code())

	msg, err := NewMessageWithID("c-5", MessageType("launch_rocket"), map[string]string{})
	require.NoError(t, err)
	assert.True(t, IsMalformed(router.Deliver(context.Background(), commandDelivery(t, msg, ""))))
	assert.Len(t, replies.sent, 1, "no reply without a reply destination")
}

func TestRouterDoesNotReplyToEvents(t *testing.T) {
	logger, _ := test.NewNullLogger()
	replies := &recordingReplies{}
	router := NewRouter(replies, logger)

	var handled bool
	router.Handle(MessageTypeClientDeleted, func(ctx context.Context, msg Message) (Reply, error) {
		handled = true
		return nil, nil
	})

	msg, err := NewMessage(MessageTypeClientDeleted, map[string]int{"klijent_id": 4})
	require.NoError(t, err)

	require.NoError(t, router.Deliver(context.Background(), commandDelivery(t, msg, "")))
	assert.True(t, handled)
	assert.Empty(t, replies.sent)
	assert.Equal(t, []MessageType{MessageTypeClientDeleted}, router.RoutingKeys())
}

func TestRouterAcksWhenReplyIsLost(t *testing.T) {
	logger, _ := test.NewNullLogger()
	replies := &recordingReplies{err: ErrBrokerUnavailable}
	router := NewRouter(replies, logger)
	router.Handle(MessageTypeCreateClient, func(ctx context.Context, msg Message) (Reply, error) {
		return Reply{"klijent_id": 9}, nil
	})

	msg, err := NewMessage(MessageTypeCreateClient, clientPayload{Naziv: "Acme"})
	require.NoError(t, err)

	assert.NoError(t, router.Deliver(context.Background(), commandDelivery(t, msg, "response_queue")))
}

func TestReplyAccessors(t *testing.T) {
	var reply Reply
	require.NoError(t, json.Unmarshal([]byte(`{"faktura_id": 12, "broj_fakture": "FAK-000012"}`), &reply))

	_, failed := reply.Failure()
	assert.False(t, failed)
	assert.Equal(t, "12", reply.String("faktura_id"))
	assert.Equal(t, "FAK-000012", reply.String("broj_fakture"))
	assert.Equal(t, "", reply.String("missing"))

	failure := FailureReply(apperr.NotFound("Klijent nije pronađen"))
	msg, ok := failure.Failure()
	assert.True(t, ok)
	assert.Equal(t, "Klijent nije pronađen", msg)
	assert.Equal(t, "not_found", failure.Code())
}
