package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"smartlock/models"
	"smartlock/services"
)

// Device is the lock output and the status indicator.
type Device interface {
	SetLock(state models.LockState) error
	SetIndicator(on bool) error
}

type ControllerState int32

const (
	StateIdle ControllerState = iota
	StateUnlocking
	StateHeldOpen
	StateRelocking
	StateFault
)

func (s ControllerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUnlocking:
		return "unlocking"
	case StateHeldOpen:
		return "held_open"
	case StateRelocking:
		return "relocking"
	case StateFault:
		return "fault"
	}
	return fmt.Sprintf("ControllerState(%d)", int32(s))
}

// ActuationFault is returned when a device write fails during a cycle.
type ActuationFault struct {
	Step string
	Err  error
}

func (f *ActuationFault) Error() string {
	return fmt.Sprintf("actuation fault during %s: %v", f.Step, f.Err)
}

func (f *ActuationFault) Unwrap() error { return f.Err }

// Cycle is the outcome of one request, handed to the publisher.
type Cycle struct {
	Request Request
	Fault   error
}

// Controller owns the device. It runs one request at a time; requests that
// arrive meanwhile wait in the mailbox, the newest replacing older ones.
type Controller struct {
	device   Device
	dwell    time.Duration
	requests <-chan Request
	cycles   chan<- Cycle
	record   Recorder

	state        atomic.Int32
	onTransition func(ControllerState)
}

func NewController(device Device, dwell time.Duration, requests <-chan Request, cycles chan<- Cycle, record Recorder) *Controller {
	return &Controller{
		device:   device,
		dwell:    dwell,
		requests: requests,
		cycles:   cycles,
		record:   record,
	}
}

func (c *Controller) State() ControllerState {
	return ControllerState(c.state.Load())
}

func (c *Controller) setState(s ControllerState) {
	c.state.Store(int32(s))
	if c.onTransition != nil {
		c.onTransition(s)
	}
}

func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-c.requests:
			if c.State() == StateFault {
				log.Error().Uint64("version", req.Version).Stringer("lock_state", req.State).
					Msg("Controller is faulted, dropping request")
				continue
			}

			cycle := c.actuate(ctx, req)
			c.report(cycle)

			select {
			case c.cycles <- cycle:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Controller) actuate(ctx context.Context, req Request) Cycle {
	if req.State == models.LockOpen {
		c.setState(StateUnlocking)
		if err := c.device.SetLock(models.LockOpen); err != nil {
			return c.fail(req, "unlock", err)
		}
		if err := c.device.SetIndicator(true); err != nil {
			return c.fail(req, "indicator on", err)
		}

		c.setState(StateHeldOpen)
		if !sleepCtx(ctx, c.dwell) {
			log.Warn().Msg("Shutdown while held open, relocking now")
		}
	}

	c.setState(StateRelocking)
	if err := c.device.SetLock(models.LockClosed); err != nil {
		return c.fail(req, "relock", err)
	}
	if err := c.device.SetIndicator(false); err != nil {
		return c.fail(req, "indicator off", err)
	}

	c.setState(StateIdle)
	return Cycle{Request: req}
}

// fail makes a best effort to leave the lock closed and dark, then latches
// the fault state.
func (c *Controller) fail(req Request, step string, err error) Cycle {
	fault := &ActuationFault{Step: step, Err: err}
	if err := c.device.SetLock(models.LockClosed); err != nil {
		log.Error().Err(err).Msg("Safe state: relock failed")
	}
	if err := c.device.SetIndicator(false); err != nil {
		log.Error().Err(err).Msg("Safe state: indicator off failed")
	}
	c.setState(StateFault)
	return Cycle{Request: req, Fault: fault}
}

func (c *Controller) report(cycle Cycle) {
	state := cycle.Request.State.String()
	kind := models.EventActuationCompleted
	if cycle.Fault != nil {
		kind = models.EventActuationFault
		services.RecordActuation(state, "fault")
		log.Error().Err(cycle.Fault).Uint64("version", cycle.Request.Version).Msg("Actuation failed")
	} else {
		services.RecordActuation(state, "completed")
		log.Info().Uint64("version", cycle.Request.Version).Stringer("lock_state", cycle.Request.State).
			Msg("Actuation cycle completed")
	}

	if c.record == nil {
		return
	}
	ev := models.NewLockEvent(kind)
	ev.Version = cycle.Request.Version
	ev.LockState = cycle.Request.State
	if cycle.Fault != nil {
		ev.Detail = cycle.Fault.Error()
	}
	c.record(ev)
}
