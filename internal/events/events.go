// Package events publishes vessel arrival events to message brokers.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trackship/internal/notify"
	"trackship/internal/scheduler"
	"trackship/internal/state"
)

// TypeArrival is the event type of an arrival.
const TypeArrival = "vessel.arrival"

// ArrivalEvent describes a vessel entering the notification area and the
// result of notifying recipients about it.
type ArrivalEvent struct {
	ID         string       `json:"id"`
	Type       string       `json:"type"`
	OccurredAt time.Time    `json:"occurredAt"`
	Vessel     state.Vessel `json:"vessel"`
	Zone       string       `json:"zone"`
	Distance   float64      `json:"distance"`
	Recipients int          `json:"recipients"`
	Sent       int          `json:"sent"`
	Errors     int          `json:"errors"`
	Invalid    int          `json:"invalid"`
}

// NewArrivalEvent builds an event with a fresh ID.
func NewArrivalEvent(v state.Vessel, out notify.Outcome, recipients int, at time.Time) ArrivalEvent {
	return ArrivalEvent{
		ID:         uuid.New().String(),
		Type:       TypeArrival,
		OccurredAt: at.UTC(),
		Vessel:     v,
		Zone:       v.Zone,
		Distance:   v.Distance,
		Recipients: recipients,
		Sent:       out.Sent,
		Errors:     out.Errors,
		Invalid:    len(out.InvalidRecipients),
	}
}

// Publisher sends arrival events somewhere.
type Publisher interface {
	Publish(ctx context.Context, e ArrivalEvent) error
	Close() error
}

// Multi fans an event out to several publishers.
type Multi []Publisher

// Publish sends e to every publisher and joins their errors.
func (m Multi) Publish(ctx context.Context, e ArrivalEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every publisher.
func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ArrivalHook adapts p into a scheduler arrival hook. Publish failures are
// logged and otherwise ignored.
func ArrivalHook(p Publisher, logger *zap.Logger) func(context.Context, scheduler.ArrivalReport) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("events")
	return func(ctx context.Context, r scheduler.ArrivalReport) {
		e := NewArrivalEvent(r.Vessel, r.Outcome, r.Recipients, r.At)
		if err := p.Publish(ctx, e); err != nil {
			log.Error("publish arrival event",
				zap.String("id", e.ID),
				zap.String("identity", e.Vessel.Identity),
				zap.Error(err),
			)
			return
		}
		log.Debug("published arrival event", zap.String("id", e.ID), zap.String("identity", e.Vessel.Identity))
	}
}
