package sim

import (
	"sync"

	"github.com/ardnew/softsd/pkg"
	"github.com/ardnew/softsd/slot/hal"
)

// line holds the simulated state of one GPIO line.
type line struct {
	pull     hal.Pull
	driven   bool      // Externally driven (otherwise reads the pull level)
	level    hal.Level // Driven level
	handler  hal.Handler
	enabled  bool
	reads    int
	enables  int
	disables int
	fired    int
}

// value returns the level seen on the line.
func (l *line) value() hal.Level {
	if l.driven {
		return l.level
	}
	return l.pull == hal.PullUp
}

// Bank implements hal.GPIO with in-memory lines.
// Lines are created when first configured. External stimulus is applied
// with Drive, Release and Glitch; an enabled handler observing a level
// change is invoked synchronously from the stimulating goroutine.
type Bank struct {
	label string
	mutex sync.Mutex
	lines map[hal.Line]*line
}

// NewBank creates an empty simulated bank. The label appears in log output.
func NewBank(label string) *Bank {
	return &Bank{
		label: label,
		lines: make(map[hal.Line]*line),
	}
}

// ConfigureInput creates or reconfigures line as an input.
// Handler and interrupt state are kept across reconfiguration.
func (b *Bank) ConfigureInput(id hal.Line, pull hal.Pull) error {
	if id == "" {
		return pkg.ErrInvalidLine
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()

	l, ok := b.lines[id]
	if !ok {
		l = &line{}
		b.lines[id] = l
	}
	l.pull = pull

	pkg.LogDebug(pkg.ComponentGPIO, "line configured",
		"bank", b.label,
		"line", string(id),
		"pull", pull.String())
	return nil
}

// AttachInterrupt registers h for line with delivery disabled.
func (b *Bank) AttachInterrupt(id hal.Line, h hal.Handler) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	l, ok := b.lines[id]
	if !ok {
		return pkg.ErrLineNotConfigured
	}
	l.handler = h
	l.enabled = false
	return nil
}

// EnableInterrupt arms delivery on line.
func (b *Bank) EnableInterrupt(id hal.Line) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	l, ok := b.lines[id]
	if !ok || l.handler == nil {
		return pkg.ErrLineNotConfigured
	}
	l.enabled = true
	l.enables++
	return nil
}

// DisableInterrupt disarms delivery on line.
func (b *Bank) DisableInterrupt(id hal.Line) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	l, ok := b.lines[id]
	if !ok {
		return pkg.ErrLineNotConfigured
	}
	l.enabled = false
	l.disables++
	return nil
}

// Read returns the level of line. Unconfigured lines float Low.
func (b *Bank) Read(id hal.Line) hal.Level {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	l, ok := b.lines[id]
	if !ok {
		return hal.Low
	}
	l.reads++
	return l.value()
}

// Drive forces line to level, creating the line if needed.
// The handler fires if the visible level changed and delivery is enabled.
func (b *Bank) Drive(id hal.Line, level hal.Level) {
	b.mutex.Lock()
	l := b.lineLocked(id)
	before := l.value()
	l.driven = true
	l.level = level
	h := b.pendingLocked(l, before)
	b.mutex.Unlock()

	if h != nil {
		h()
	}
}

// Release stops driving line so it returns to its pull level.
func (b *Bank) Release(id hal.Line) {
	b.mutex.Lock()
	l := b.lineLocked(id)
	before := l.value()
	l.driven = false
	h := b.pendingLocked(l, before)
	b.mutex.Unlock()

	if h != nil {
		h()
	}
}

// Glitch fires the handler of line without changing its level, as a
// bouncing contact or a noisy edge detector would. It reports whether
// the handler ran.
func (b *Bank) Glitch(id hal.Line) bool {
	b.mutex.Lock()
	var h hal.Handler
	if l, ok := b.lines[id]; ok && l.enabled && l.handler != nil {
		l.fired++
		h = l.handler
	}
	b.mutex.Unlock()

	if h == nil {
		return false
	}
	h()
	return true
}

// Reads returns how many times line was read.
func (b *Bank) Reads(id hal.Line) int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if l, ok := b.lines[id]; ok {
		return l.reads
	}
	return 0
}

// Enabled reports whether delivery is armed on line.
func (b *Bank) Enabled(id hal.Line) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if l, ok := b.lines[id]; ok {
		return l.enabled
	}
	return false
}

// Enables returns how many times EnableInterrupt succeeded on line.
func (b *Bank) Enables(id hal.Line) int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if l, ok := b.lines[id]; ok {
		return l.enables
	}
	return 0
}

// Fired returns how many times the handler of line was invoked.
func (b *Bank) Fired(id hal.Line) int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if l, ok := b.lines[id]; ok {
		return l.fired
	}
	return 0
}

// Configured reports whether line has been configured as an input.
func (b *Bank) Configured(id hal.Line) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	_, ok := b.lines[id]
	return ok
}

// lineLocked returns line, creating it with no pull if absent.
func (b *Bank) lineLocked(id hal.Line) *line {
	l, ok := b.lines[id]
	if !ok {
		l = &line{}
		b.lines[id] = l
	}
	return l
}

// pendingLocked returns the handler to invoke after a level change, or nil.
func (b *Bank) pendingLocked(l *line, before hal.Level) hal.Handler {
	if l.value() == before || !l.enabled || l.handler == nil {
		return nil
	}
	l.fired++
	return l.handler
}
