package services

import (
	"sync"

	"github.com/rs/zerolog/log"

	"smartlock/models"
)

// SimulatedLock stands in for the lock GPIO and the status LED. It logs every
// transition and can be told to fail the next n writes.
type SimulatedLock struct {
	mu        sync.Mutex
	state     models.LockState
	indicator bool
	failNext  int
	failErr   error
}

func NewSimulatedLock() *SimulatedLock {
	return &SimulatedLock{state: models.LockClosed}
}

func (d *SimulatedLock) SetLock(state models.LockState) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailure(); err != nil {
		return err
	}
	d.state = state
	log.Info().Stringer("lock_state", state).Msg("lock output set")
	return nil
}

func (d *SimulatedLock) SetIndicator(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailure(); err != nil {
		return err
	}
	d.indicator = on
	log.Debug().Bool("on", on).Msg("status indicator set")
	return nil
}

// FailNext makes the next n output writes return err.
func (d *SimulatedLock) FailNext(n int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = n
	d.failErr = err
}

func (d *SimulatedLock) takeFailure() error {
	if d.failNext == 0 {
		return nil
	}
	d.failNext--
	return d.failErr
}

func (d *SimulatedLock) State() (models.LockState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state, d.indicator
}
