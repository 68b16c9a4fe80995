package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap/zaptest"

	"trackship/internal/geo"
	"trackship/internal/notify"
	"trackship/internal/scheduler"
	"trackship/internal/state"
)

var at = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func arrival() state.Vessel {
	return state.Vessel{
		Identity: "T1",
		MMSI:     "226000001",
		Name:     "MARIE-LOUISE",
		Position: geo.Point{Lat: 48.86, Lon: 2.34},
		Distance: 850,
		Zone:     "zone1",
	}
}

func TestNewArrivalEvent(t *testing.T) {
	out := notify.Outcome{Sent: 2, Errors: 1, InvalidRecipients: []string{"x"}}
	e := NewArrivalEvent(arrival(), out, 3, at)

	if _, err := uuid.Parse(e.ID); err != nil {
		t.Errorf("ID %q is not a UUID: %v", e.ID, err)
	}
	if e.Type != TypeArrival || e.Zone != "zone1" || e.Distance != 850 {
		t.Errorf("event = %+v", e)
	}
	if e.Sent != 2 || e.Errors != 1 || e.Invalid != 1 || e.Recipients != 3 {
		t.Errorf("outcome fields = %+v", e)
	}
	if other := NewArrivalEvent(arrival(), out, 3, at); other.ID == e.ID {
		t.Error("event IDs are not unique")
	}
}

type fakeJS struct {
	subject string
	data    []byte
	opts    int
	err     error
}

func (f *fakeJS) Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.subject, f.data, f.opts = subject, data, len(opts)
	if f.err != nil {
		return nil, f.err
	}
	return &jetstream.PubAck{Stream: "TRACKSHIP_ARRIVALS", Sequence: 1}, nil
}

func TestNATSPublisher(t *testing.T) {
	js := &fakeJS{}
	p := &NATSPublisher{js: js, subject: "trackship.arrivals"}

	e := NewArrivalEvent(arrival(), notify.Outcome{Sent: 1}, 1, at)
	if err := p.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if js.subject != "trackship.arrivals.zone1" {
		t.Errorf("subject = %q", js.subject)
	}
	if js.opts != 1 {
		t.Errorf("publish options = %d, want message ID option", js.opts)
	}

	var decoded ArrivalEvent
	if err := json.Unmarshal(js.data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.ID != e.ID || decoded.Vessel.Identity != "T1" {
		t.Errorf("decoded = %+v", decoded)
	}

	e.Zone = ""
	_ = p.Publish(context.Background(), e)
	if js.subject != "trackship.arrivals.unknown" {
		t.Errorf("subject without zone = %q", js.subject)
	}

	js.err = errors.New("no responders")
	if err := p.Publish(context.Background(), e); err == nil {
		t.Error("Publish() error = nil")
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() without connection = %v", err)
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{w: w}

	e := NewArrivalEvent(arrival(), notify.Outcome{}, 0, at)
	if err := p.Publish(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d", len(w.msgs))
	}
	m := w.msgs[0]
	if string(m.Key) != "T1" {
		t.Errorf("key = %q, want vessel identity", m.Key)
	}
	if len(m.Headers) != 2 || string(m.Headers[0].Value) != e.ID {
		t.Errorf("headers = %+v", m.Headers)
	}

	_ = p.Close()
	if !w.closed {
		t.Error("writer not closed")
	}

	if _, err := NewKafkaPublisher(KafkaConfig{}); err == nil {
		t.Error("NewKafkaPublisher without brokers succeeded")
	}
}

type recordingPublisher struct {
	events []ArrivalEvent
	err    error
}

func (r *recordingPublisher) Publish(ctx context.Context, e ArrivalEvent) error {
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingPublisher) Close() error { return r.err }

func TestMultiAndHook(t *testing.T) {
	ok := &recordingPublisher{}
	broken := &recordingPublisher{err: errors.New("broker down")}
	m := Multi{broken, ok}

	hook := ArrivalHook(m, zaptest.NewLogger(t))
	hook(context.Background(), scheduler.ArrivalReport{
		Vessel:     arrival(),
		Outcome:    notify.Outcome{Sent: 4},
		Recipients: 4,
		At:         at,
	})

	if len(ok.events) != 1 || len(broken.events) != 1 {
		t.Fatalf("events = %d/%d, want every publisher called", len(ok.events), len(broken.events))
	}
	if ok.events[0].Sent != 4 || !ok.events[0].OccurredAt.Equal(at) {
		t.Errorf("event = %+v", ok.events[0])
	}
	if err := m.Close(); err == nil {
		t.Error("Multi.Close() dropped an error")
	}
}
