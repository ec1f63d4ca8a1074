package app

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"smartlock/models"
	"smartlock/services"
	"smartlock/utils"
)

// Delta documents from the shadow service put the changed fields directly
// under "state"; the nested desired form is accepted as well.
var desiredLockPaths = []string{"state.desired.lockState", "state.lockState"}

// Request asks the controller to drive the lock to State. It is an immutable
// snapshot of an accepted delta.
type Request struct {
	Version uint64
	State   models.LockState
}

// Recorder receives journal events. Implementations must not block.
type Recorder func(models.LockEvent)

// Reconciler applies update/delta documents. OnDelta is called by the MQTT
// router one message at a time; it never blocks and never touches the
// transport, all follow-up work goes through the request mailbox.
type Reconciler struct {
	thing  string
	strict bool

	version atomic.Uint64
	fault   atomic.Bool

	mu    sync.Mutex // guards state and settled
	state models.LockState

	requests *mailbox[Request]
	settled  *mailbox[models.LockState]
	record   Recorder
}

func NewReconciler(thing string, strict bool, requests *mailbox[Request], settled *mailbox[models.LockState], record Recorder) *Reconciler {
	r := &Reconciler{
		thing:    thing,
		strict:   strict,
		requests: requests,
		settled:  settled,
		record:   record,
		state:    models.LockClosed,
	}
	return r
}

func (r *Reconciler) Version() uint64 {
	return r.version.Load()
}

// LockState includes a relock the publisher has reported since the last
// delta.
func (r *Reconciler) LockState() models.LockState {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.absorbSettled()
	return r.state
}

// ProtocolFault is set once an accepted delta failed to carry a usable lock
// state. It is never cleared.
func (r *Reconciler) ProtocolFault() bool {
	return r.fault.Load()
}

func (r *Reconciler) OnDelta(payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.absorbSettled()

	logger := log.With().Str("thing", r.thing).Logger()
	logger.Debug().Bytes("payload", payload).Msg("update/delta received")

	if !utils.ValidJSON(payload) {
		logger.Error().Msg("The json document is invalid")
		r.emit(models.EventDeltaMalformed, 0, "invalid json")
		return
	}

	version, err := utils.LookupUint(payload, "version")
	if err != nil {
		logger.Error().Err(err).Msg("No version in json document")
		r.emit(models.EventDeltaMalformed, 0, err.Error())
		return
	}

	last := r.version.Load()
	if !Accept(last, version) {
		logger.Warn().Uint64("version", version).Uint64("current", last).
			Msg("The received version is not newer than the current one")
		r.emit(models.EventDeltaStale, version, "")
		return
	}
	if !r.strict {
		r.advance(version)
	}

	desired, ok := r.desiredState(payload)
	if !ok {
		r.fault.Store(true)
		logger.Error().Uint64("version", version).Bool("version_advanced", !r.strict).
			Msg("No lockState in json document")
		r.emit(models.EventDeltaPartial, version, "missing or invalid lockState")
		return
	}
	if r.strict {
		r.advance(version)
	}

	current := r.state
	if desired == current {
		logger.Info().Uint64("version", version).Stringer("lock_state", desired).
			Msg("Desired lock state already applied")
		r.emit(models.EventDeltaUnchanged, version, "")
		return
	}

	r.state = desired
	logger.Info().Uint64("version", version).Stringer("from", current).Stringer("to", desired).
		Msg("Lock state changed")
	r.emit(models.EventDeltaAccepted, version, "")
	r.requests.Post(Request{Version: version, State: desired})
}

func (r *Reconciler) desiredState(payload []byte) (models.LockState, bool) {
	raw, _, err := utils.LookupFirstUint(payload, desiredLockPaths...)
	if err != nil {
		return models.LockClosed, false
	}
	return models.ParseLockState(raw)
}

func (r *Reconciler) advance(version uint64) {
	r.version.Store(version)
	services.SetShadowVersion(version)
}

// absorbSettled picks up the state the publisher reported after finishing a
// cycle, so a later Open delta is seen as a change again. r.mu must be held.
func (r *Reconciler) absorbSettled() {
	if s, ok := r.settled.TryTake(); ok {
		r.state = s
	}
}

func (r *Reconciler) emit(kind models.EventKind, version uint64, detail string) {
	services.RecordDelta(string(kind))
	if r.record == nil {
		return
	}
	ev := models.NewLockEvent(kind)
	ev.Version = version
	ev.LockState = r.state
	ev.Detail = detail
	r.record(ev)
}
