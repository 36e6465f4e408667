package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"epos/pkg/apperr"
)

type MessageType string

const (
	MessageTypeCreateClient  MessageType = "create_client"
	MessageTypeUpdateClient  MessageType = "update_client"
	MessageTypeDeleteClient  MessageType = "delete_client"
	MessageTypeCreateInvoice MessageType = "create_invoice"
	MessageTypeUpdateInvoice MessageType = "update_invoice"
	MessageTypeDeleteInvoice MessageType = "delete_invoice"
	MessageTypeCreateExpense MessageType = "create_expense"
	MessageTypeUpdateExpense MessageType = "update_expense"
	MessageTypeDeleteExpense MessageType = "delete_expense"

	// Events are published without a reply destination.
	MessageTypeClientDeleted   MessageType = "client_deleted"
	MessageTypeInvoiceCreated  MessageType = "invoice_created"
	MessageTypeTenantActivated MessageType = "tenant_activated"
)

// Message is the command and event envelope. It is never mutated after publish.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewMessage wraps payload in an envelope with a fresh id.
func NewMessage(t MessageType, payload interface{}) (Message, error) {
	return NewMessageWithID(uuid.NewString(), t, payload)
}

func NewMessageWithID(id string, t MessageType, payload interface{}) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Message{
		ID:        id,
		Type:      t,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Data:      data,
	}, nil
}

// Decode unmarshals the payload into v. A payload that does not decode is malformed.
func (m Message) Decode(v interface{}) error {
	if len(m.Data) == 0 {
		return Malformed(fmt.Errorf("%s: empty payload", m.Type))
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return Malformed(fmt.Errorf("%s: decode payload: %w", m.Type, err))
	}
	return nil
}

// Reply is the body of a reply message. A failure carries the reserved "error" key.
type Reply map[string]interface{}

func (r Reply) Failure() (string, bool) {
	v, ok := r["error"]
	if !ok {
		return "", false
	}
	msg, _ := v.(string)
	if msg == "" {
		msg = fmt.Sprint(v)
	}
	return msg, true
}

// Code returns the machine code of a failure reply, empty when absent.
func (r Reply) Code() string {
	return r.String("code")
}

func (r Reply) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprint(v)
	default:
		return fmt.Sprint(v)
	}
}

// FailureReply converts err into a failure reply carrying its code.
func FailureReply(err error) Reply {
	return Reply{
		"error": err.Error(),
		"code":  string(apperr.CodeOf(err)),
	}
}

type QueueConfig struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
}

type ExchangeConfig struct {
	Name    string
	Type    string // direct, fanout, topic, headers
	Durable bool
}

// Topology is what a service declares before it starts consuming.
type Topology struct {
	Exchange    ExchangeConfig
	Queue       QueueConfig
	RoutingKeys []MessageType
}
