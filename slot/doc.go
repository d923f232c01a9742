// Package slot implements card detection and binding for a removable
// storage slot.
//
// A [Slot] owns the controller handle of one physical slot and the
// reconciled "card inserted" state. It interacts with hardware only through
// the collaborator interfaces in [github.com/ardnew/softsd/slot/hal].
//
// # Bring-up
//
// [Slot.BringUp] runs once and moves the slot through
//
//	Uninitialized → LinesConfigured → InterruptAttached → ControllerReady → Bound → Armed
//
// A failure at any step leaves the slot Failed and returns the
// collaborator's error unchanged. The initial card state is reconciled
// before card-detect interrupts are enabled, so a card already inserted at
// boot is reported exactly once.
//
// # Reconcile
//
// [Slot.Reconcile] is the card-detect interrupt handler. The card-detect
// line is active low. Only a change from the last forwarded state produces
// notifications: a media-changed notification, followed on insertion by a
// write-protect notification sampled fresh from the write-protect line.
// Repeated or spurious interrupts are no-ops.
//
// # Dispatch
//
// Notifications reach the binder through a [Dispatcher]. [Direct] calls the
// binder synchronously; [Queue] is a bounded non-blocking queue drained
// outside interrupt context by [Queue.Run] or [Queue.Flush]. In both cases a
// failed or dropped notification is counted and logged, never returned: the
// next physical transition reconciles again.
//
// # Example
//
//	s := slot.New(cfg, gpio, controllers, binder)
//	if err := s.BringUp(ctx); err != nil {
//	    // storage unavailable for this slot
//	}
package slot
