package periph

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/ardnew/softsd/pkg"
	"github.com/ardnew/softsd/slot/hal"
)

// EdgeTimeout bounds each edge wait so watchers observe Close promptly.
const EdgeTimeout = 100 * time.Millisecond

// Lookup resolves a line name to a pin.
type Lookup func(name string) gpio.PinIO

// GPIO implements hal.GPIO on periph.io pins.
type GPIO struct {
	lookup Lookup

	mutex  sync.Mutex
	pins   map[hal.Line]*pin
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

type pin struct {
	io       gpio.PinIO
	pull     gpio.Pull
	handler  atomic.Pointer[hal.Handler]
	enabled  atomic.Bool
	watching bool
}

// New initializes the periph.io host drivers and returns a GPIO resolving
// lines through the global pin registry.
func New() (*GPIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return NewWithLookup(gpioreg.ByName), nil
}

// NewWithLookup returns a GPIO resolving lines with lookup.
func NewWithLookup(lookup Lookup) *GPIO {
	return &GPIO{
		lookup: lookup,
		pins:   make(map[hal.Line]*pin),
		done:   make(chan struct{}),
	}
}

// ConfigureInput configures line as an input with the given bias and no
// edge detection.
func (g *GPIO) ConfigureInput(line hal.Line, pull hal.Pull) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.closed {
		return pkg.ErrNotRunning
	}

	p, ok := g.pins[line]
	if !ok {
		io := g.lookup(string(line))
		if io == nil {
			return fmt.Errorf("gpio %q: %w", line, pkg.ErrInvalidLine)
		}
		p = &pin{io: io}
	}

	p.pull = toPull(pull)
	edge := gpio.NoEdge
	if p.watching {
		edge = gpio.BothEdges
	}
	if err := p.io.In(p.pull, edge); err != nil {
		return fmt.Errorf("gpio %q: %w", line, err)
	}
	g.pins[line] = p

	pkg.LogDebug(pkg.ComponentGPIO, "line configured",
		"line", string(line),
		"pin", p.io.Name(),
		"pull", pull.String())
	return nil
}

// AttachInterrupt enables edge detection on line and starts its watcher.
// Delivery stays disabled until EnableInterrupt.
func (g *GPIO) AttachInterrupt(line hal.Line, h hal.Handler) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.closed {
		return pkg.ErrNotRunning
	}
	p, ok := g.pins[line]
	if !ok {
		return fmt.Errorf("gpio %q: %w", line, pkg.ErrLineNotConfigured)
	}

	p.enabled.Store(false)
	p.handler.Store(&h)

	if p.watching {
		return nil
	}
	if err := p.io.In(p.pull, gpio.BothEdges); err != nil {
		return fmt.Errorf("gpio %q: %w", line, err)
	}
	p.watching = true
	g.wg.Add(1)
	go g.watch(line, p)
	return nil
}

// EnableInterrupt starts delivering edges on line to its handler.
func (g *GPIO) EnableInterrupt(line hal.Line) error {
	p, err := g.watched(line)
	if err != nil {
		return err
	}
	p.enabled.Store(true)
	return nil
}

// DisableInterrupt stops delivering edges on line.
func (g *GPIO) DisableInterrupt(line hal.Line) error {
	p, err := g.watched(line)
	if err != nil {
		return err
	}
	p.enabled.Store(false)
	return nil
}

// Read returns the current level of line. Unconfigured lines read Low.
func (g *GPIO) Read(line hal.Line) hal.Level {
	g.mutex.Lock()
	p, ok := g.pins[line]
	g.mutex.Unlock()

	if !ok {
		return hal.Low
	}
	return toLevel(p.io.Read())
}

// Close stops all watchers and halts every configured pin.
func (g *GPIO) Close() error {
	g.mutex.Lock()
	if g.closed {
		g.mutex.Unlock()
		return nil
	}
	g.closed = true
	close(g.done)
	g.mutex.Unlock()

	g.wg.Wait()

	g.mutex.Lock()
	defer g.mutex.Unlock()
	var first error
	for line, p := range g.pins {
		if err := p.io.Halt(); err != nil && first == nil {
			first = fmt.Errorf("gpio %q: %w", line, err)
		}
	}
	return first
}

func (g *GPIO) watched(line hal.Line) (*pin, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	p, ok := g.pins[line]
	if !ok {
		return nil, fmt.Errorf("gpio %q: %w", line, pkg.ErrLineNotConfigured)
	}
	if !p.watching {
		return nil, fmt.Errorf("gpio %q: no handler attached: %w", line, pkg.ErrInvalidState)
	}
	return p, nil
}

// watch waits for edges on p and calls its handler while enabled.
func (g *GPIO) watch(line hal.Line, p *pin) {
	defer g.wg.Done()

	for {
		select {
		case <-g.done:
			return
		default:
		}

		if !p.io.WaitForEdge(EdgeTimeout) {
			continue
		}
		if !p.enabled.Load() {
			continue
		}
		if h := p.handler.Load(); h != nil && *h != nil {
			pkg.LogDebug(pkg.ComponentGPIO, "edge", "line", string(line))
			(*h)()
		}
	}
}

func toPull(p hal.Pull) gpio.Pull {
	switch p {
	case hal.PullUp:
		return gpio.PullUp
	case hal.PullDown:
		return gpio.PullDown
	default:
		return gpio.Float
	}
}

func toLevel(l gpio.Level) hal.Level {
	if l == gpio.High {
		return hal.High
	}
	return hal.Low
}
