package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"smartlock/models"
	"smartlock/utils"
)

// Transport is the MQTT client as seen by the lock. Subscription handlers are
// invoked sequentially and must return quickly.
type Transport interface {
	Publisher
	AddSubscriptionTopic(topic string, qos byte, handler mqtt.MessageHandler)
	Unsubscribe(topic string) error
}

type Options struct {
	Dwell         time.Duration
	RelockDelay   time.Duration
	AckTimeout    time.Duration
	StrictVersion bool
	JournalSize   int

	// OnTransition observes controller state changes. Optional.
	OnTransition func(ControllerState)
}

func DefaultOptions() Options {
	return Options{
		Dwell:       5 * time.Second,
		RelockDelay: 5 * time.Second,
		AckTimeout:  5000 * time.Millisecond,
		JournalSize: 64,
	}
}

type stage struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// Lock wires the reconciler, controller and publisher together and owns
// their goroutines.
type Lock struct {
	thing  string
	opts   Options
	mqtt   Transport
	device Device
	nc     *nats.Conn
	db     *sql.DB

	mu      sync.Mutex
	started bool
	stages  []stage
	topics  []string

	journal     *Journal
	reconciler  *Reconciler
	controller  *Controller
	coordinator *Coordinator
}

func NewLock(thing string, transport Transport, device Device, nc *nats.Conn, db *sql.DB, opts Options) (*Lock, error) {
	if thing == "" {
		return nil, errors.New("thing name cannot be empty")
	}
	if transport == nil {
		return nil, errors.New("mqtt service cannot be nil")
	}
	if device == nil {
		return nil, errors.New("device cannot be nil")
	}
	if opts.Dwell <= 0 || opts.RelockDelay <= 0 || opts.AckTimeout <= 0 {
		return nil, fmt.Errorf("invalid timings: %+v", opts)
	}

	return &Lock{
		thing:  thing,
		opts:   opts,
		mqtt:   transport,
		device: device,
		nc:     nc,
		db:     db,
	}, nil
}

func (l *Lock) sinks(ctx context.Context) []Sink {
	var sinks []Sink
	if l.nc != nil {
		sinks = append(sinks, NewNatsSink(l.nc, l.thing))
	}
	if l.db != nil {
		if err := EnsureLockEventsTable(ctx, l.db); err != nil {
			log.Error().Err(err).Msg("Journal table unavailable, postgres sink disabled")
		} else {
			sinks = append(sinks, NewPostgresSink(l.db))
		}
	}
	return sinks
}

// Start creates every channel before any goroutine that uses it, then starts
// the journal, publisher and controller, and finally subscribes to the delta
// topic that feeds the reconciler.
func (l *Lock) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return errors.New("lock is already started")
	}

	requests := newMailbox[Request]()
	settled := newMailbox[models.LockState]()
	cycles := make(chan Cycle, 1)

	l.journal = NewJournal(l.thing, l.opts.JournalSize, l.sinks(ctx)...)
	l.reconciler = NewReconciler(l.thing, l.opts.StrictVersion, requests, settled, l.journal.Record)
	l.controller = NewController(l.device, l.opts.Dwell, requests.C(), cycles, l.journal.Record)
	l.controller.onTransition = l.opts.OnTransition
	l.coordinator = NewCoordinator(l.thing, l.mqtt, l.opts.AckTimeout, l.opts.RelockDelay,
		cycles, settled, l.journal.Record)

	l.spawn(ctx, "journal", l.journal.Run)
	l.spawn(ctx, "publisher", l.coordinator.Run)
	l.spawn(ctx, "actuator", l.controller.Run)

	l.subscribe(utils.UpdateAcceptedTopic(l.thing), 0, l.responseHandler())
	l.subscribe(utils.UpdateRejectedTopic(l.thing), 0, l.responseHandler())
	l.subscribe(utils.UpdateDeltaTopic(l.thing), 1, l.deltaHandler())

	l.started = true
	log.Info().Str("thing", l.thing).Msg("Lock started")
	return nil
}

func (l *Lock) spawn(parent context.Context, name string, run func(context.Context)) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx)
	}()
	l.stages = append(l.stages, stage{name: name, cancel: cancel, done: done})
}

func (l *Lock) subscribe(topic string, qos byte, handler mqtt.MessageHandler) {
	l.mqtt.AddSubscriptionTopic(topic, qos, handler)
	l.topics = append(l.topics, topic)
}

// Stop tears down in reverse order of Start.
func (l *Lock) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		return
	}

	for i := len(l.topics) - 1; i >= 0; i-- {
		if err := l.mqtt.Unsubscribe(l.topics[i]); err != nil {
			log.Warn().Err(err).Str("topic", l.topics[i]).Msg("Unsubscribe failed")
		}
	}
	for i := len(l.stages) - 1; i >= 0; i-- {
		s := l.stages[i]
		s.cancel()
		<-s.done
		log.Debug().Str("stage", s.name).Msg("stopped")
	}

	l.topics = nil
	l.stages = nil
	l.started = false
	log.Info().Str("thing", l.thing).Msg("Lock stopped")
}

type Status struct {
	Thing         string `json:"thing"`
	Version       uint64 `json:"version"`
	LockState     string `json:"lock_state"`
	Controller    string `json:"controller"`
	ProtocolFault bool   `json:"protocol_fault"`
	DroppedEvents uint64 `json:"dropped_events"`
}

// Status is safe to call from any goroutine. The second result is false
// once the controller has latched a fault.
func (l *Lock) Status() (Status, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := Status{Thing: l.thing, LockState: models.LockClosed.String(), Controller: StateIdle.String()}
	if !l.started {
		return st, true
	}
	st.Version = l.reconciler.Version()
	st.LockState = l.reconciler.LockState().String()
	st.Controller = l.controller.State().String()
	st.ProtocolFault = l.reconciler.ProtocolFault()
	st.DroppedEvents = l.journal.Dropped()
	return st, l.controller.State() != StateFault
}
