// Package amqp implements the message broker interface for AMQP compliant brokers (ie RabbitMQ)
package amqp

import (
	"encoding/json"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/tarancss/linka/lib/msg"
)

// Exchange is the topic exchange escrow events are published to. Routing keys are escrow.<kind>.<escrowId>.
const Exchange = "le"

// Amqp implements a connection to a broker and a channel for reuse.
type Amqp struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex // guards ch
}

// New instantiates a new amqp broker.
func New(uri string) (*Amqp, error) {
	r := Amqp{}

	var err error

	if r.conn, err = amqp.Dial(uri); err != nil {
		return &r, err
	}

	log.WithField("uri", uri).Info("Connected to message broker")

	return &r, nil
}

// Setup obtains an amqp channel and declares the "le" ("linka events") exchange.
func (r *Amqp) Setup(x interface{}) error {
	// obtain a one-use channel
	channel, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()

	return channel.ExchangeDeclare(Exchange, amqp.ExchangeTopic, true, false, false, false, nil)
}

// Close terminates gracefully the connection to the AMQP message broker
func (r *Amqp) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch != nil {
		if err := r.ch.Close(); err != nil {
			log.WithError(err).Error("Error closing amqp.Channel")
		}

		r.ch = nil
	}

	return r.conn.Close()
}

func (r *Amqp) channel() (*amqp.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch == nil {
		ch, err := r.conn.Channel()
		if err != nil {
			return nil, err
		}

		r.ch = ch
	}

	return r.ch, nil
}

// RoutingKey returns the routing key e is published with.
func RoutingKey(e msg.Event) string {
	id := e.EscrowID
	if id == "" {
		id = "none"
	}

	return "escrow." + e.Kind + "." + id
}

// SendEvent publishes an escrow event to the "le" exchange.
func (r *Amqp) SendEvent(e msg.Event) error {
	jsonDoc, err := json.Marshal(e)
	if err != nil {
		return err
	}

	ch, err := r.channel()
	if err != nil {
		return err
	}

	m := amqp.Publishing{
		Headers:      amqp.Table{"x-escrow-tx": e.TxHash},
		Body:         jsonDoc,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.TS,
	}

	if err = ch.Publish(Exchange, RoutingKey(e), false, false, m); err != nil {
		log.WithFields(log.Fields{"kind": e.Kind, "escrowId": e.EscrowID}).WithError(err).
			Error("Error sending escrow event to message broker")
	}

	return err
}

// GetEvents consumes events of the given kinds from the "le" exchange through a durable queue, pushing them to the
// returned channel. With no kinds, every event is consumed. The Mutex pointer is provided to ensure the consumed message
// has been fully dealt with by the management function, so the message consumed is only acknowledged when the mutex is
// unlocked.
func (r *Amqp) GetEvents(queue string, mut *sync.Mutex, kinds ...string) (<-chan msg.Event, <-chan error, error) {
	ch, err := r.channel()
	if err != nil {
		return nil, nil, err
	}

	if _, err = ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, nil, err
	}

	keys := []string{"escrow.#"}
	if len(kinds) > 0 {
		keys = keys[:0]
		for _, k := range kinds {
			keys = append(keys, "escrow."+k+".*")
		}
	}

	for _, k := range keys {
		if err = ch.QueueBind(queue, k, Exchange, false, nil); err != nil {
			return nil, nil, err
		}
	}

	msgs, err := ch.Consume(queue, "linka-"+queue, false, false, false, false, nil)
	if err != nil {
		return nil, nil, err
	}

	eves := make(chan msg.Event)
	errs := make(chan error)

	go func() {
		defer close(eves)

		for m := range msgs {
			e := new(msg.Event)
			if err := json.Unmarshal(m.Body, e); err != nil {
				// a message that can never be decoded must not be redelivered
				_ = m.Reject(false)
				errs <- err

				continue
			}

			eves <- *e

			mut.Lock() // wait for the consumer to finish processing the event

			if err := m.Ack(false); err != nil {
				log.WithError(err).Warn("Error acknowledging escrow event")
			}
		}
	}()

	return eves, errs, nil
}
