package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"smartlock/models"
	"smartlock/services"
	"smartlock/utils"
)

const shadowQoS = 1

// Publisher is the outbound half of the transport. PublishAsync must return
// without waiting for the broker; ack runs when delivery is confirmed.
type Publisher interface {
	PublishAsync(topic string, qos byte, payload []byte, ack func()) error
}

// TickToken returns client tokens derived from the milliseconds elapsed since
// start, truncated to six digits.
func TickToken(start time.Time) func() string {
	return func() string {
		return fmt.Sprintf("%06d", time.Since(start).Milliseconds()%1_000_000)
	}
}

// Coordinator reports finished cycles to the shadow. It builds every outbound
// document and owns client token generation.
type Coordinator struct {
	thing       string
	topic       string
	pub         Publisher
	ackTimeout  time.Duration
	relockDelay time.Duration

	cycles  <-chan Cycle
	settled *mailbox[models.LockState]
	token   func() string
	record  Recorder
}

func NewCoordinator(thing string, pub Publisher, ackTimeout, relockDelay time.Duration,
	cycles <-chan Cycle, settled *mailbox[models.LockState], record Recorder) *Coordinator {
	return &Coordinator{
		thing:       thing,
		topic:       utils.UpdateTopic(thing),
		pub:         pub,
		ackTimeout:  ackTimeout,
		relockDelay: relockDelay,
		cycles:      cycles,
		settled:     settled,
		token:       TickToken(time.Now()),
		record:      record,
	}
}

func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cycle := <-c.cycles:
			c.handle(ctx, cycle)
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, cycle Cycle) {
	if cycle.Fault != nil {
		log.Error().Err(cycle.Fault).Str("thing", c.thing).Msg("Not reporting faulted cycle")
		return
	}

	switch cycle.Request.State {
	case models.LockOpen:
		c.publish(ctx, "reported_open", models.ReportedDocument(models.LockOpen, c.token()))

		// No sensor tells us the door shut again; assume the physical cycle is
		// over after the relock delay.
		if !sleepCtx(ctx, c.relockDelay) {
			return
		}
		c.publish(ctx, "clear_desired", models.ClearDesiredDocument(models.LockClosed, c.token()))
	default:
		c.publish(ctx, "reported_closed", models.ReportedDocument(models.LockClosed, c.token()))
	}

	c.settled.Post(models.LockClosed)
}

// publish sends one document and waits a bounded time for its transport
// acknowledgement. Each publish gets its own signal, so a late ack for an
// earlier document is never taken for this one. The wait runs even when the
// publish fails; a timeout is logged and otherwise ignored.
func (c *Coordinator) publish(ctx context.Context, name string, doc models.Shadow) {
	logger := log.With().Str("thing", c.thing).Str("document", name).
		Str("client_token", doc.ClientToken).Logger()

	payload, err := doc.Marshal()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to build shadow document")
		return
	}

	ack := newAckSignal()
	if err := c.pub.PublishAsync(c.topic, shadowQoS, payload, ack.Give); err != nil {
		logger.Error().Err(err).Msg("Failed to publish to MQTT broker")
		services.RecordPublish(name, "error")
	} else {
		logger.Info().RawJSON("document", payload).Msg("Shadow update published")
		c.emit(models.EventShadowPublished, doc, name)
	}

	if ack.Wait(ctx, c.ackTimeout) {
		services.RecordPublish(name, "acked")
		return
	}
	logger.Error().Dur("timeout", c.ackTimeout).Msg("Failed to receive puback")
	services.RecordPublish(name, "timeout")
	c.emit(models.EventAckTimeout, doc, name)
}

func (c *Coordinator) emit(kind models.EventKind, doc models.Shadow, detail string) {
	if c.record == nil {
		return
	}
	ev := models.NewLockEvent(kind)
	ev.ClientToken = doc.ClientToken
	if doc.State.Reported != nil {
		ev.LockState = doc.State.Reported.LockState
	}
	ev.Detail = detail
	c.record(ev)
}
