package hal

import (
	"context"
)

// Line identifies a board signal line, for example "PTE6".
// The identifier is resolved by the GPIO implementation.
type Line string

// Level is the electrical level of a line.
type Level bool

// Line levels.
const (
	Low  Level = false
	High Level = true
)

// String returns "high" or "low".
func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

// Pull selects the bias applied to an input line.
type Pull uint8

// Pull options.
const (
	PullNone Pull = iota // Floating
	PullUp               // Pulled to High
	PullDown             // Pulled to Low
)

// String returns a human-readable pull name.
func (p Pull) String() string {
	switch p {
	case PullUp:
		return "pull-up"
	case PullDown:
		return "pull-down"
	default:
		return "none"
	}
}

// Handler is invoked on a line transition. It carries no payload; the
// handler reads whatever line state it needs. Handlers run at interrupt
// priority and must return promptly.
type Handler func()

// GPIO defines the signal source used by a card slot.
//
// Implementations must allow Read to be called from within a Handler
// they are delivering.
type GPIO interface {
	// ConfigureInput configures a line as an input with the given bias.
	// Configuring the same line again is allowed.
	ConfigureInput(line Line, pull Pull) error

	// AttachInterrupt registers h for transitions on line.
	// Delivery starts disabled; call EnableInterrupt to arm it.
	// Attaching again replaces the previous handler and disables delivery.
	AttachInterrupt(line Line, h Handler) error

	// EnableInterrupt starts delivering transitions on line to its handler.
	EnableInterrupt(line Line) error

	// DisableInterrupt stops delivering transitions on line.
	DisableInterrupt(line Line) error

	// Read returns the current level of line.
	Read(line Line) Level
}

// Controller is an opaque handle for an initialized storage controller
// interface. It is owned by the slot that initialized it.
type Controller interface {
	// Slot returns the slot index the controller was initialized for.
	Slot() int
}

// ControllerHAL initializes storage controller interfaces.
type ControllerHAL interface {
	// Initialize brings up the controller interface for slot.
	// It returns an error wrapping pkg.ErrNoDevice when the interface
	// is absent or does not respond.
	Initialize(ctx context.Context, slot int) (Controller, error)
}

// Binder exposes initialized controllers as block devices.
//
// MediaChanged and WriteProtectChanged may be invoked while a previous
// call is still in progress and must tolerate overlapping calls.
type Binder interface {
	// Bind registers c as the block device with the given minor number.
	Bind(minor int, c Controller) error

	// MediaChanged reports card insertion (true) or removal (false).
	MediaChanged(c Controller, inserted bool) error

	// WriteProtectChanged reports the write-protect state of the inserted card.
	WriteProtectChanged(c Controller, protected bool) error
}
