package logger

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
)

const (
	shipBuffer   = 1000
	shipBatch    = 200
	shipTimeout  = 15 * time.Second
	defaultFlush = 10 * time.Second
)

// eventSink receives batches of log events.
type eventSink interface {
	Ingest(ctx context.Context, events []axiom.Event) error
}

type axiomSink struct {
	client  *axiom.Client
	dataset string
}

func newAxiomSink(token, orgID, dataset, service string) (*axiomSink, error) {
	if dataset == "" {
		dataset = "dev_" + service
	}
	opts := []axiom.Option{axiom.SetToken(token)}
	if orgID != "" {
		opts = append(opts, axiom.SetOrganizationID(orgID))
	}
	c, err := axiom.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	return &axiomSink{client: c, dataset: dataset}, nil
}

func (s *axiomSink) Ingest(ctx context.Context, events []axiom.Event) error {
	_, err := s.client.IngestEvents(ctx, s.dataset, events)
	return err
}

// shipper is an io.Writer that turns zerolog JSON lines into events and
// hands them to a sink in batches. Debug events are not forwarded and
// events are dropped while the buffer is full.
type shipper struct {
	sink    eventSink
	service string
	events  chan axiom.Event
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

func newShipper(sink eventSink, service string, every time.Duration) *shipper {
	if every <= 0 {
		every = defaultFlush
	}
	s := &shipper{
		sink:    sink,
		service: service,
		events:  make(chan axiom.Event, shipBuffer),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run(every)
	return s
}

func (s *shipper) Write(p []byte) (int, error) {
	ev := axiom.Event{}
	if err := json.Unmarshal(p, &ev); err != nil {
		ev = axiom.Event{"message": string(p), "level": "info"}
	}
	if ev["level"] == "debug" {
		return len(p), nil
	}
	ev["service"] = s.service
	if _, ok := ev[ingest.TimestampField]; !ok {
		ev[ingest.TimestampField] = time.Now()
	}
	select {
	case s.events <- ev:
	default:
	}
	return len(p), nil
}

func (s *shipper) run(every time.Duration) {
	defer s.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()

	batch := make([]axiom.Event, 0, shipBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), shipTimeout)
		_ = s.sink.Ingest(ctx, batch)
		cancel()
		batch = make([]axiom.Event, 0, shipBatch)
	}
	for {
		select {
		case <-s.done:
			for {
				select {
				case ev := <-s.events:
					batch = append(batch, ev)
				default:
					flush()
					return
				}
			}
		case <-t.C:
			flush()
		case ev := <-s.events:
			batch = append(batch, ev)
			if len(batch) >= shipBatch {
				flush()
			}
		}
	}
}

// Close drains buffered events, sends the last batch and stops the loop.
func (s *shipper) Close() {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
}
