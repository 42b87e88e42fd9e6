// Package events publishes order domain events from the repository API to
// connected terminals and, optionally, a message broker.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	OrderCreated   = "order.created"
	OrderUpdated   = "order.updated"
	OrderPaid      = "order.paid"
	OrderCancelled = "order.cancelled"
)

type Event struct {
	Type     string          `json:"type"`
	BranchID uuid.UUID       `json:"branch_id"`
	OrderID  uuid.UUID       `json:"order_id"`
	At       time.Time       `json:"at"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// New builds an event, marshalling payload when it is not nil.
func New(typ string, branchID, orderID uuid.UUID, payload any) Event {
	ev := Event{Type: typ, BranchID: branchID, OrderID: orderID, At: time.Now().UTC()}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			ev.Payload = raw
		}
	}
	return ev
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Emit publishes ev and logs a failure instead of returning it. A broker
// outage must not fail the request that produced the event.
func Emit(ctx context.Context, p Publisher, ev Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"type":     ev.Type,
			"order_id": ev.OrderID,
		}).Error("publish order event")
	}
}
