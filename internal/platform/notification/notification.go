// Package notification delivers terminal adjudication outcomes to interested
// parties. Delivery is fire-and-forget: a failed publish is logged and never
// propagated back into the adjudication transaction.
package notification

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// OutcomeEvent is the message published for every terminal decision.
type OutcomeEvent struct {
	ClaimID   uuid.UUID `json:"claim_id"`
	Outcome   string    `json:"outcome"`
	Timestamp time.Time `json:"timestamp"`
}

// Dispatcher is the engine-side contract.
type Dispatcher interface {
	Notify(claimID uuid.UUID, outcome string)
}

// AMQPDispatcher publishes outcome events to a topic exchange.
type AMQPDispatcher struct {
	conn     *amqp091.Connection
	ch       *amqp091.Channel
	exchange string
	log      zerolog.Logger
}

// DialAMQP connects to the broker and declares the outcomes exchange.
func DialAMQP(url, exchange string, log zerolog.Logger) (*AMQPDispatcher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPDispatcher{conn: conn, ch: ch, exchange: exchange, log: log}, nil
}

func (d *AMQPDispatcher) Notify(claimID uuid.UUID, outcome string) {
	body, err := json.Marshal(OutcomeEvent{
		ClaimID:   claimID,
		Outcome:   outcome,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		d.log.Error().Err(err).Str("claim_id", claimID.String()).Msg("marshal outcome event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = d.ch.PublishWithContext(ctx, d.exchange, "claims.outcome", false, false, amqp091.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		d.log.Error().Err(err).
			Str("claim_id", claimID.String()).
			Str("outcome", outcome).
			Msg("publish outcome event")
	}
}

func (d *AMQPDispatcher) Close() {
	if d.ch != nil {
		d.ch.Close()
	}
	if d.conn != nil {
		d.conn.Close()
	}
}

// Memory records events in process. Used in tests and when no broker is
// configured.
type Memory struct {
	mu     sync.Mutex
	events []OutcomeEvent
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Notify(claimID uuid.UUID, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, OutcomeEvent{
		ClaimID:   claimID,
		Outcome:   outcome,
		Timestamp: time.Now().UTC(),
	})
}

// Events returns a copy of everything dispatched so far.
func (m *Memory) Events() []OutcomeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OutcomeEvent, len(m.events))
	copy(out, m.events)
	return out
}
