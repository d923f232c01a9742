package cmd

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/afero"

	"github.com/ardnew/softsd/mmcsd"
	"github.com/ardnew/softsd/pkg"
	"github.com/ardnew/softsd/pkg/board"
	"github.com/ardnew/softsd/sdhc"
	"github.com/ardnew/softsd/slot"
	"github.com/ardnew/softsd/slot/hal"
)

// rig wires the slots of one board to a GPIO source, a controller host
// and a block device registry.
type rig struct {
	ctx      context.Context
	cfg      board.Config
	gpio     hal.GPIO
	host     *sdhc.Host
	registry *mmcsd.Registry
	slots    []*slot.Slot
	queues   []*slot.Queue // Indexed like slots; nil for direct delivery

	outMutex sync.Mutex
	out      io.Writer
}

// newRig creates one slot per board slot. images maps each slot index to
// the card image path on fs; slots without an image have no controller
// interface.
func newRig(ctx context.Context, cfg board.Config, gpio hal.GPIO, fs afero.Fs, images map[int]string, out io.Writer) (*rig, error) {
	r := &rig{
		ctx:  ctx,
		cfg:  cfg,
		gpio: gpio,
		out:  out,
	}
	r.registry = mmcsd.NewRegistry(mmcsd.WithObserver(r.observe))

	r.host = sdhc.NewHost(fs)

	for _, sc := range cfg.Slots {
		if path, ok := images[sc.Slot]; ok && path != "" {
			if err := r.host.AddSlot(sc.Slot, path, sc.BlockSize); err != nil {
				return nil, err
			}
		}

		var (
			q    *slot.Queue
			opts []slot.Option
		)
		if sc.QueueDepth > 0 {
			q = slot.NewQueue(r.registry, sc.QueueDepth)
			opts = append(opts, slot.WithDispatcher(q))
		}
		r.slots = append(r.slots, slot.New(sc, gpio, r.host, r.registry, opts...))
		r.queues = append(r.queues, q)
	}
	return r, nil
}

// flush delivers pending queued notifications of every slot.
func (r *rig) flush() {
	for _, q := range r.queues {
		if q != nil {
			q.Flush()
		}
	}
}

// runQueues consumes every slot queue until ctx is done.
func (r *rig) runQueues(ctx context.Context, wg *sync.WaitGroup) {
	for _, q := range r.queues {
		if q == nil {
			continue
		}
		wg.Add(1)
		go func(q *slot.Queue) {
			defer wg.Done()
			if err := q.Run(ctx); err != nil {
				pkg.LogError(pkg.ComponentCLI, "notification queue", "error", err)
			}
		}(q)
	}
}

// disarm stops interrupt delivery on every armed slot.
func (r *rig) disarm() {
	for _, s := range r.slots {
		if s.State() == slot.StateArmed {
			if err := s.Disarm(); err != nil {
				pkg.LogWarn(pkg.ComponentCLI, "disarm", "slot", s.Config().Slot, "error", err)
			}
		}
	}
}

func (r *rig) observe(e mmcsd.Event) {
	msg := fmt.Sprintf("/dev/mmcsd%d %s %t", e.Minor, e.Kind, e.Value)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	r.printf("%s\n", msg)
}

func (r *rig) printf(format string, args ...any) {
	r.outMutex.Lock()
	defer r.outMutex.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

// status writes one line per slot.
func (r *rig) status() {
	for i, s := range r.slots {
		sc := s.Config()
		stats := s.Stats()
		line := fmt.Sprintf("slot %d: state=%s inserted=%t reconciles=%d transitions=%d",
			sc.Slot, s.State(), s.Inserted(), stats.Reconciles, stats.Transitions)

		if d, ok := r.registry.Device(sc.Minor); ok {
			line += fmt.Sprintf(" device=%s present=%t readonly=%t blocks=%d",
				d.Name(), d.IsPresent(), d.IsReadOnly(), d.BlockCount())
		}
		if q := r.queues[i]; q != nil {
			line += fmt.Sprintf(" pending=%d dropped=%d", q.Pending(), q.Dropped())
		}
		r.printf("%s\n", line)
	}
}
