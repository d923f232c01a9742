package slot

import (
	"context"

	"github.com/ardnew/softsd/pkg"
	"github.com/ardnew/softsd/slot/hal"
)

// BringUp configures the slot's lines, initializes and binds its controller,
// reconciles the initial card state and finally enables card-detect
// interrupts. It runs once; any failure leaves the slot Failed and is
// returned exactly as the collaborator reported it.
//
// The initial reconcile happens strictly before interrupts are enabled, so
// a card inserted before or during bring-up is reported once and no handler
// can run against an unbound controller.
func (s *Slot) BringUp(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if st := s.State(); st != StateUninitialized {
		pkg.LogWarn(pkg.ComponentBringup, "bring-up already run",
			"slot", s.cfg.Slot,
			"state", st.String())
		return pkg.ErrInvalidState
	}

	// Card detect and write protect are both pulled up on board. Write
	// protect needs no interrupt.
	if err := s.gpio.ConfigureInput(s.cfg.CardDetect, hal.PullUp); err != nil {
		return s.fail("configure card-detect line", err)
	}
	if err := s.gpio.ConfigureInput(s.cfg.WriteProtect, hal.PullUp); err != nil {
		return s.fail("configure write-protect line", err)
	}
	s.setState(StateLinesConfigured)

	// Attach the card-detect interrupt, but don't enable it yet
	if err := s.gpio.AttachInterrupt(s.cfg.CardDetect, s.Reconcile); err != nil {
		return s.fail("attach card-detect interrupt", err)
	}
	s.setState(StateInterruptAttached)

	pkg.LogInfo(pkg.ComponentBringup, "initializing controller",
		"slot", s.cfg.Slot)

	ctrl, err := s.controllers.Initialize(ctx, s.cfg.Slot)
	if err == nil && ctrl == nil {
		err = pkg.ErrNoDevice
	}
	if err != nil {
		return s.fail("initialize controller", err)
	}
	s.controller = ctrl
	s.setState(StateControllerReady)

	pkg.LogInfo(pkg.ComponentBringup, "binding controller",
		"slot", s.cfg.Slot,
		"minor", s.cfg.Minor)

	if err := s.binder.Bind(s.cfg.Minor, ctrl); err != nil {
		// The controller stays initialized; it is not released here.
		pkg.LogWarn(pkg.ComponentBringup, "controller left initialized after bind failure",
			"slot", s.cfg.Slot)
		return s.fail("bind controller", err)
	}
	s.setState(StateBound)

	pkg.LogInfo(pkg.ComponentBringup, "controller bound",
		"slot", s.cfg.Slot,
		"minor", s.cfg.Minor)

	if err := s.arm(); err != nil {
		return s.fail("enable card-detect interrupt", err)
	}
	return nil
}

// Arm reconciles the current card state and re-enables card-detect
// interrupts on a slot previously disarmed with Disarm.
func (s *Slot) Arm() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.State() != StateBound {
		return pkg.ErrInvalidState
	}
	return s.arm()
}

// Disarm disables card-detect interrupts on an armed slot. The binding and
// the last reconciled state are kept.
func (s *Slot) Disarm() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.State() != StateArmed {
		return pkg.ErrInvalidState
	}
	if err := s.gpio.DisableInterrupt(s.cfg.CardDetect); err != nil {
		return err
	}
	s.setState(StateBound)

	pkg.LogDebug(pkg.ComponentBringup, "slot disarmed", "slot", s.cfg.Slot)
	return nil
}

// arm runs the priming reconcile and enables delivery. Called with the
// mutex held and the slot Bound.
func (s *Slot) arm() error {
	s.Reconcile()

	if err := s.gpio.EnableInterrupt(s.cfg.CardDetect); err != nil {
		return err
	}
	s.setState(StateArmed)

	pkg.LogDebug(pkg.ComponentBringup, "slot armed",
		"slot", s.cfg.Slot,
		"inserted", s.Inserted())
	return nil
}

// fail logs err, marks the slot Failed and returns err unchanged.
func (s *Slot) fail(step string, err error) error {
	s.setState(StateFailed)
	pkg.LogError(pkg.ComponentBringup, "bring-up failed",
		"slot", s.cfg.Slot,
		"minor", s.cfg.Minor,
		"step", step,
		"error", err)
	return err
}
