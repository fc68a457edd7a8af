// Package msg defines the interface for different message brokers and the escrow lifecycle events exchanged through
// them.
package msg

import (
	"sync"
	"time"
)

// Kinds of escrow lifecycle events.
const (
	KindCreated      = "created"
	KindReleased     = "released"
	KindRefunded     = "refunded"
	KindDisputed     = "disputed"
	KindOpened       = "opened" // dispute opened in the dispute resolution contract
	KindEvidence     = "evidence"
	KindResolved     = "resolved"
	KindUnmirrored   = "unmirrored"   // on-chain effect with no mirror record to update
	KindMirrorFailed = "mirrorfailed" // on-chain effect whose mirror write failed, to be repaired
	KindRepaired     = "repaired"
)

// Event is published every time an escrow operation reaches the chain or the reconciler repairs one.
type Event struct {
	Kind     string    `json:"kind"`
	EscrowID string    `json:"escrowId,omitempty"`
	TxHash   string    `json:"txHash,omitempty"`
	IntentID string    `json:"intentId,omitempty"`
	Status   string    `json:"status,omitempty"`
	Mirrored bool      `json:"mirrored"`
	TS       time.Time `json:"ts"`
}

// Broker publishes and consumes escrow events.
type Broker interface {
	Setup(interface{}) error
	Close() error

	SendEvent(e Event) error
	// GetEvents consumes the events of the given kinds, or all of them when none is given, through queue. A consumed
	// event is acknowledged only after the consumer unlocks mut.
	GetEvents(queue string, mut *sync.Mutex, kinds ...string) (<-chan Event, <-chan error, error)
}

// Discard is a Broker that drops every event. It is used when no message broker is configured.
type Discard struct{}

// Setup does nothing.
func (Discard) Setup(interface{}) error { return nil }

// Close does nothing.
func (Discard) Close() error { return nil }

// SendEvent drops e.
func (Discard) SendEvent(Event) error { return nil }

// GetEvents returns channels that never deliver.
func (Discard) GetEvents(string, *sync.Mutex, ...string) (<-chan Event, <-chan error, error) {
	return make(chan Event), make(chan error), nil
}
