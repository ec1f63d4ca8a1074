package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"smartlock/models"
)

// Sink stores or forwards journal events.
type Sink interface {
	Name() string
	Write(ctx context.Context, ev models.LockEvent) error
}

// Journal decouples event producers from slow sinks. Record never blocks;
// events are dropped when the queue is full.
type Journal struct {
	thing   string
	queue   chan models.LockEvent
	sinks   []Sink
	dropped atomic.Uint64
}

func NewJournal(thing string, size int, sinks ...Sink) *Journal {
	if size <= 0 {
		size = 64
	}
	return &Journal{
		thing: thing,
		queue: make(chan models.LockEvent, size),
		sinks: sinks,
	}
}

func (j *Journal) Record(ev models.LockEvent) {
	ev.Thing = j.thing
	select {
	case j.queue <- ev:
	default:
		j.dropped.Add(1)
	}
}

func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

func (j *Journal) Run(ctx context.Context) {
	for {
		select {
		case ev := <-j.queue:
			j.write(ctx, ev)
		case <-ctx.Done():
			j.flush()
			return
		}
	}
}

// flush writes whatever is still queued with a short deadline of its own.
func (j *Journal) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-j.queue:
			j.write(ctx, ev)
		default:
			return
		}
	}
}

func (j *Journal) write(ctx context.Context, ev models.LockEvent) {
	for _, s := range j.sinks {
		if err := s.Write(ctx, ev); err != nil {
			log.Warn().Err(err).Str("sink", s.Name()).Str("kind", string(ev.Kind)).Msg("Journal write failed")
		}
	}
}

// NatsSink mirrors events to lock.<thing>.events.
type NatsSink struct {
	nc      *nats.Conn
	subject string
}

func NewNatsSink(nc *nats.Conn, thing string) *NatsSink {
	return &NatsSink{nc: nc, subject: EventSubject(thing)}
}

func EventSubject(thing string) string {
	return fmt.Sprintf("lock.%v.events", thing)
}

func (s *NatsSink) Name() string { return "nats" }

func (s *NatsSink) Write(_ context.Context, ev models.LockEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.nc.Publish(s.subject, data); err != nil {
		return fmt.Errorf("publish to NATS subject '%s': %w", s.subject, err)
	}
	return nil
}

// PostgresSink appends events to the lock_events table.
type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Write(ctx context.Context, ev models.LockEvent) error {
	_, err := InsertLockEvent(ctx, s.db, ev)
	return err
}
