package slot

import (
	"context"
	"sync/atomic"

	"github.com/ardnew/softsd/pkg"
	"github.com/ardnew/softsd/slot/hal"
)

// NotificationKind identifies the binder entry point a notification targets.
type NotificationKind uint8

// Notification kinds.
const (
	NotifyMediaChanged        NotificationKind = iota // Binder.MediaChanged
	NotifyWriteProtectChanged                         // Binder.WriteProtectChanged
)

// String returns a human-readable kind name.
func (k NotificationKind) String() string {
	switch k {
	case NotifyMediaChanged:
		return "media-changed"
	case NotifyWriteProtectChanged:
		return "write-protect-changed"
	default:
		return "unknown"
	}
}

// Notification is a state change destined for the binder.
type Notification struct {
	Kind       NotificationKind
	Controller hal.Controller
	Value      bool // Inserted for media changes, protected for write-protect changes
}

// Dispatcher forwards notifications to a binder. Dispatch is called from
// interrupt context: it must not block and has no failure channel.
type Dispatcher interface {
	Dispatch(n Notification)
}

// deliver invokes the binder entry point for n.
func deliver(b hal.Binder, n Notification) error {
	switch n.Kind {
	case NotifyMediaChanged:
		return b.MediaChanged(n.Controller, n.Value)
	case NotifyWriteProtectChanged:
		return b.WriteProtectChanged(n.Controller, n.Value)
	default:
		return pkg.ErrInvalidParameter
	}
}

// Direct delivers notifications synchronously on the calling goroutine.
// Binder failures are logged and counted, never returned.
type Direct struct {
	binder   hal.Binder
	failures atomic.Uint64
}

// NewDirect creates a synchronous dispatcher for b.
func NewDirect(b hal.Binder) *Direct {
	return &Direct{binder: b}
}

// Dispatch delivers n to the binder.
func (d *Direct) Dispatch(n Notification) {
	if err := deliver(d.binder, n); err != nil {
		count := d.failures.Add(1)
		pkg.LogWarn(pkg.ComponentNotify, "notification not delivered",
			"kind", n.Kind.String(),
			"value", n.Value,
			"error", err,
			"failures", count)
	}
}

// Failures returns how many notifications the binder rejected.
func (d *Direct) Failures() uint64 {
	return d.failures.Load()
}

// Queue buffers notifications for delivery outside interrupt context.
// Dispatch never blocks: when the queue is full the notification is
// dropped and counted. Notifications are delivered in dispatch order.
type Queue struct {
	binder   hal.Binder
	pending  chan Notification
	running  atomic.Bool
	dropped  atomic.Uint64
	failures atomic.Uint64
}

// NewQueue creates a queue holding up to depth pending notifications.
// A depth below 1 is raised to 1.
func NewQueue(b hal.Binder, depth int) *Queue {
	if depth < 1 {
		depth = 1
	}
	return &Queue{
		binder:  b,
		pending: make(chan Notification, depth),
	}
}

// Dispatch enqueues n, dropping it if the queue is full.
func (q *Queue) Dispatch(n Notification) {
	select {
	case q.pending <- n:
	default:
		count := q.dropped.Add(1)
		pkg.LogWarn(pkg.ComponentNotify, "notification dropped",
			"kind", n.Kind.String(),
			"value", n.Value,
			"error", pkg.ErrQueueFull,
			"dropped", count)
	}
}

// Run delivers queued notifications until ctx is done, then delivers
// whatever is still pending. Only one Run may be active at a time.
func (q *Queue) Run(ctx context.Context) error {
	if !q.running.CompareAndSwap(false, true) {
		return pkg.ErrAlreadyRunning
	}
	defer q.running.Store(false)

	pkg.LogDebug(pkg.ComponentNotify, "queue started", "depth", cap(q.pending))

	for {
		select {
		case <-ctx.Done():
			n := q.Flush()
			pkg.LogDebug(pkg.ComponentNotify, "queue stopped", "flushed", n)
			return nil
		case n := <-q.pending:
			q.deliver(n)
		}
	}
}

// Flush synchronously delivers every pending notification and returns
// how many were delivered (successfully or not).
func (q *Queue) Flush() int {
	count := 0
	for {
		select {
		case n := <-q.pending:
			q.deliver(n)
			count++
		default:
			return count
		}
	}
}

// Pending returns the number of queued notifications.
func (q *Queue) Pending() int {
	return len(q.pending)
}

// Dropped returns how many notifications were discarded on a full queue.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Failures returns how many notifications the binder rejected.
func (q *Queue) Failures() uint64 {
	return q.failures.Load()
}

func (q *Queue) deliver(n Notification) {
	if err := deliver(q.binder, n); err != nil {
		count := q.failures.Add(1)
		pkg.LogWarn(pkg.ComponentNotify, "notification not delivered",
			"kind", n.Kind.String(),
			"value", n.Value,
			"error", err,
			"failures", count)
	}
}
