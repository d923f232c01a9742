package slot

import (
	"sync"
	"sync/atomic"

	"github.com/ardnew/softsd/pkg"
	"github.com/ardnew/softsd/pkg/board"
	"github.com/ardnew/softsd/slot/hal"
)

// Reconciled presence values held in Slot.presence.
const (
	presenceUnknown int32 = iota - 1 // Not reconciled since bring-up began
	presenceAbsent
	presencePresent
)

// Stats holds slot event counters.
type Stats struct {
	Reconciles        uint64 // Reconcile invocations, including no-ops
	Transitions       uint64 // Presence changes forwarded to the binder
	WriteProtectReads uint64 // Write-protect line samples
}

// Slot tracks the card presence state of one physical slot and forwards
// reconciled changes to its block device binder.
type Slot struct {
	cfg         board.SlotConfig
	gpio        hal.GPIO
	controllers hal.ControllerHAL
	binder      hal.Binder
	dispatcher  Dispatcher

	// Owned controller handle, set once during bring-up
	controller hal.Controller

	// Last presence state forwarded to the binder
	presence atomic.Int32

	state atomic.Uint32

	// Serializes BringUp, Arm and Disarm
	mutex sync.Mutex

	reconciles  atomic.Uint64
	transitions atomic.Uint64
	wpReads     atomic.Uint64
}

// Option configures a Slot.
type Option func(*Slot)

// WithDispatcher routes notifications through d instead of delivering
// them synchronously to the binder.
func WithDispatcher(d Dispatcher) Option {
	return func(s *Slot) {
		s.dispatcher = d
	}
}

// New creates a slot in the Uninitialized state. No collaborator is
// touched until BringUp.
func New(cfg board.SlotConfig, gpio hal.GPIO, controllers hal.ControllerHAL, binder hal.Binder, opts ...Option) *Slot {
	s := &Slot{
		cfg:         cfg,
		gpio:        gpio,
		controllers: controllers,
		binder:      binder,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dispatcher == nil {
		s.dispatcher = NewDirect(binder)
	}
	s.presence.Store(presenceUnknown)
	return s
}

// Reconcile samples the card-detect line and, only when the sampled state
// differs from the last forwarded state, records the new state and notifies
// the binder. A newly inserted card also has its write-protect line sampled
// and forwarded, unless it was removed again before the sample.
//
// Reconcile is the card-detect interrupt handler. It never blocks and never
// fails; overlapping invocations forward each transition once.
func (s *Slot) Reconcile() {
	s.reconciles.Add(1)

	var inserted bool
	for {
		// The card-detect contact is pulled up; a card pulls it low.
		inserted = s.gpio.Read(s.cfg.CardDetect) == hal.Low
		next := presenceAbsent
		if inserted {
			next = presencePresent
		}
		prev := s.presence.Load()
		if prev == next {
			return
		}
		if s.presence.CompareAndSwap(prev, next) {
			break
		}
	}
	s.transitions.Add(1)

	pkg.LogDebug(pkg.ComponentSlot, "media changed",
		"slot", s.cfg.Slot,
		"inserted", inserted)

	s.dispatcher.Dispatch(Notification{
		Kind:       NotifyMediaChanged,
		Controller: s.controller,
		Value:      inserted,
	})

	if !inserted {
		return
	}
	// A nested reconcile may have forwarded a removal meanwhile.
	if s.presence.Load() != presencePresent {
		return
	}

	s.wpReads.Add(1)
	protected := s.gpio.Read(s.cfg.WriteProtect) == hal.High

	pkg.LogDebug(pkg.ComponentSlot, "write protect sampled",
		"slot", s.cfg.Slot,
		"protected", protected)

	s.dispatcher.Dispatch(Notification{
		Kind:       NotifyWriteProtectChanged,
		Controller: s.controller,
		Value:      protected,
	})
}

// Inserted reports the last reconciled presence state.
func (s *Slot) Inserted() bool {
	return s.presence.Load() == presencePresent
}

// State returns the current bring-up state.
func (s *Slot) State() State {
	return State(s.state.Load())
}

// Controller returns the controller handle, or nil before ControllerReady.
// The handle stays owned by the slot.
func (s *Slot) Controller() hal.Controller {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.controller
}

// Config returns the slot wiring.
func (s *Slot) Config() board.SlotConfig {
	return s.cfg
}

// Stats returns a snapshot of the slot event counters.
func (s *Slot) Stats() Stats {
	return Stats{
		Reconciles:        s.reconciles.Load(),
		Transitions:       s.transitions.Load(),
		WriteProtectReads: s.wpReads.Load(),
	}
}

func (s *Slot) setState(st State) {
	s.state.Store(uint32(st))
}
