package mmcsd

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ardnew/softsd/pkg"
	"github.com/ardnew/softsd/slot/hal"
)

// MaxMinors is the number of block device minor numbers.
const MaxMinors = 256

// BlockController is the controller surface a bound device needs.
type BlockController interface {
	hal.Controller

	// BlockSize returns the card block size in bytes.
	BlockSize() uint32

	// BlockCount returns the number of blocks on the open card.
	BlockCount() uint64

	// Open prepares the inserted card for block access.
	Open() error

	// Close ends block access to the card.
	Close() error

	// ReadBlocks reads count blocks at lba into buf.
	ReadBlocks(lba uint64, count uint32, buf []byte) (uint32, error)

	// WriteBlocks writes count blocks from buf at lba.
	WriteBlocks(lba uint64, count uint32, buf []byte) (uint32, error)

	// Sync flushes written blocks.
	Sync() error
}

// EventKind identifies a device state change.
type EventKind uint8

// Event kinds.
const (
	EventBound        EventKind = iota // Controller bound to a minor
	EventMediaChanged                  // Value: inserted
	EventWriteProtect                  // Value: protected
)

// String returns a human-readable event kind.
func (k EventKind) String() string {
	switch k {
	case EventBound:
		return "bound"
	case EventMediaChanged:
		return "media-changed"
	case EventWriteProtect:
		return "write-protect"
	default:
		return "unknown"
	}
}

// Event reports a device state change to the registry observer.
type Event struct {
	Minor int
	Kind  EventKind
	Value bool
	Err   error // Set when the change could not be applied
}

// Registry implements hal.Binder. It owns every binding and is safe for
// concurrent and overlapping notification calls.
//
// A controller is identified by its slot index, so at most one controller
// per slot can be bound and controllers need not be comparable.
type Registry struct {
	mutex    sync.RWMutex
	devices  map[int]*Device // By minor
	bySlot   map[int]*Device // By controller slot
	observer func(Event)
}

// Option configures a Registry.
type Option func(*Registry)

// WithObserver registers fn to receive every applied or failed state change.
// fn is called without registry locks held.
func WithObserver(fn func(Event)) Option {
	return func(r *Registry) {
		r.observer = fn
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		devices: make(map[int]*Device),
		bySlot:  make(map[int]*Device),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Bind registers c as the device with the given minor number. The device
// starts with no media present.
func (r *Registry) Bind(minor int, c hal.Controller) error {
	if minor < 0 || minor >= MaxMinors {
		return fmt.Errorf("mmcsd minor %d: %w", minor, pkg.ErrInvalidMinor)
	}
	bc, ok := c.(BlockController)
	if !ok || c == nil {
		return fmt.Errorf("mmcsd minor %d: controller without block access: %w", minor, pkg.ErrNotSupported)
	}

	r.mutex.Lock()
	if _, ok := r.devices[minor]; ok {
		r.mutex.Unlock()
		return fmt.Errorf("mmcsd minor %d: %w", minor, pkg.ErrAlreadyBound)
	}
	if d, ok := r.bySlot[c.Slot()]; ok {
		r.mutex.Unlock()
		return fmt.Errorf("mmcsd controller for slot %d bound as %s: %w", c.Slot(), d.Name(), pkg.ErrAlreadyBound)
	}
	d := &Device{minor: minor, ctrl: bc}
	r.devices[minor] = d
	r.bySlot[c.Slot()] = d
	r.mutex.Unlock()

	pkg.LogInfo(pkg.ComponentMMCSD, "device bound",
		"device", d.Name(),
		"slot", c.Slot())
	r.notify(Event{Minor: minor, Kind: EventBound, Value: true})
	return nil
}

// MediaChanged opens the card on insertion and closes it on removal.
// If the card cannot be opened the device stays absent and the error is
// returned.
func (r *Registry) MediaChanged(c hal.Controller, inserted bool) error {
	d, err := r.lookup(c)
	if err != nil {
		return err
	}

	err = d.setPresent(inserted)
	pkg.LogDebug(pkg.ComponentMMCSD, "media changed",
		"device", d.Name(),
		"inserted", inserted,
		"error", err)
	r.notify(Event{Minor: d.minor, Kind: EventMediaChanged, Value: inserted, Err: err})
	return err
}

// WriteProtectChanged sets the read-only state of the device's card.
func (r *Registry) WriteProtectChanged(c hal.Controller, protected bool) error {
	d, err := r.lookup(c)
	if err != nil {
		return err
	}

	d.mutex.Lock()
	d.readOnly = protected
	d.mutex.Unlock()

	pkg.LogDebug(pkg.ComponentMMCSD, "write protect changed",
		"device", d.Name(),
		"protected", protected)
	r.notify(Event{Minor: d.minor, Kind: EventWriteProtect, Value: protected})
	return nil
}

// Device returns the device bound to minor.
func (r *Registry) Device(minor int) (*Device, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	d, ok := r.devices[minor]
	return d, ok
}

// Devices returns all bound devices ordered by minor number.
func (r *Registry) Devices() []*Device {
	r.mutex.RLock()
	devices := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, d)
	}
	r.mutex.RUnlock()

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].minor < devices[j].minor
	})
	return devices
}

func (r *Registry) lookup(c hal.Controller) (*Device, error) {
	if c == nil {
		return nil, pkg.ErrNotBound
	}
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	d, ok := r.bySlot[c.Slot()]
	if !ok {
		return nil, fmt.Errorf("mmcsd controller for slot %d: %w", c.Slot(), pkg.ErrNotBound)
	}
	return d, nil
}

func (r *Registry) notify(e Event) {
	if r.observer != nil {
		r.observer(e)
	}
}
