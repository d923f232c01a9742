package mmcsd

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/spf13/afero"

	"github.com/ardnew/softsd/pkg"
	"github.com/ardnew/softsd/sdhc"
	"github.com/ardnew/softsd/slot/hal"
)

// mockController is an in-memory BlockController.
type mockController struct {
	slot    int
	blocks  []byte
	open    bool
	openErr error
	opens   int
	closes  int
}

func newMockController(slot, blocks int) *mockController {
	return &mockController{slot: slot, blocks: make([]byte, blocks*512)}
}

func (m *mockController) Slot() int          { return m.slot }
func (m *mockController) BlockSize() uint32  { return 512 }
func (m *mockController) BlockCount() uint64 { return uint64(len(m.blocks) / 512) }
func (m *mockController) Sync() error        { return nil }

func (m *mockController) Open() error {
	m.opens++
	if m.openErr != nil {
		return m.openErr
	}
	m.open = true
	return nil
}

func (m *mockController) Close() error {
	m.closes++
	m.open = false
	return nil
}

func (m *mockController) ReadBlocks(lba uint64, count uint32, buf []byte) (uint32, error) {
	copy(buf, m.blocks[lba*512:(lba+uint64(count))*512])
	return count, nil
}

func (m *mockController) WriteBlocks(lba uint64, count uint32, buf []byte) (uint32, error) {
	copy(m.blocks[lba*512:], buf[:count*512])
	return count, nil
}

// plainController has no block access.
type plainController struct{}

func (plainController) Slot() int { return 0 }

func TestRegistry_Bind(t *testing.T) {
	r := NewRegistry()
	c := newMockController(0, 4)

	if err := r.Bind(0, c); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	d, ok := r.Device(0)
	if !ok {
		t.Fatal("Device(0) not found after Bind")
	}
	if d.Name() != "/dev/mmcsd0" {
		t.Errorf("Name() = %q, want /dev/mmcsd0", d.Name())
	}
	if d.IsPresent() {
		t.Error("IsPresent() = true before media notification")
	}
	if !d.IsRemovable() {
		t.Error("IsRemovable() = false")
	}
	if d.BlockCount() != 0 {
		t.Errorf("BlockCount() = %d, want 0 with no media", d.BlockCount())
	}
	var _ hal.Binder = r
}

func TestRegistry_BindErrors(t *testing.T) {
	r := NewRegistry()
	bound := newMockController(0, 4)
	if err := r.Bind(3, bound); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	tests := []struct {
		name    string
		minor   int
		ctrl    hal.Controller
		wantErr error
	}{
		{"negative minor", -1, newMockController(1, 4), pkg.ErrInvalidMinor},
		{"minor too large", MaxMinors, newMockController(1, 4), pkg.ErrInvalidMinor},
		{"minor taken", 3, newMockController(1, 4), pkg.ErrAlreadyBound},
		{"controller bound", 4, bound, pkg.ErrAlreadyBound},
		{"no block access", 5, plainController{}, pkg.ErrNotSupported},
		{"nil controller", 6, nil, pkg.ErrNotSupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Bind(tt.minor, tt.ctrl); !errors.Is(err, tt.wantErr) {
				t.Errorf("Bind() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if got := len(r.Devices()); got != 1 {
		t.Errorf("len(Devices()) = %d, want 1", got)
	}
}

// tagController is a value controller that cannot be used as a map key.
type tagController struct {
	*mockController
	tags []string
}

func TestRegistry_UncomparableController(t *testing.T) {
	r := NewRegistry()
	c := tagController{mockController: newMockController(0, 4), tags: []string{"sd0"}}

	if err := r.Bind(0, c); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if err := r.MediaChanged(c, true); err != nil {
		t.Fatalf("MediaChanged() error = %v", err)
	}
	d, _ := r.Device(0)
	if !d.IsPresent() {
		t.Error("IsPresent() = false after insertion")
	}

	other := tagController{mockController: newMockController(0, 4)}
	if err := r.Bind(1, other); !errors.Is(err, pkg.ErrAlreadyBound) {
		t.Errorf("Bind() second controller for slot 0 error = %v, want ErrAlreadyBound", err)
	}
}

func TestRegistry_NotBound(t *testing.T) {
	r := NewRegistry()
	c := newMockController(0, 4)

	if err := r.MediaChanged(c, true); !errors.Is(err, pkg.ErrNotBound) {
		t.Errorf("MediaChanged() error = %v, want ErrNotBound", err)
	}
	if err := r.WriteProtectChanged(c, true); !errors.Is(err, pkg.ErrNotBound) {
		t.Errorf("WriteProtectChanged() error = %v, want ErrNotBound", err)
	}
	if err := r.MediaChanged(nil, true); !errors.Is(err, pkg.ErrNotBound) {
		t.Errorf("MediaChanged(nil) error = %v, want ErrNotBound", err)
	}
}

func TestRegistry_MediaLifecycle(t *testing.T) {
	var events []Event
	r := NewRegistry(WithObserver(func(e Event) { events = append(events, e) }))
	c := newMockController(0, 4)
	if err := r.Bind(0, c); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	d, _ := r.Device(0)
	buf := make([]byte, 512)

	if _, err := d.Read(0, 1, buf); !errors.Is(err, pkg.ErrNoMedia) {
		t.Errorf("Read() with no media error = %v, want ErrNoMedia", err)
	}

	if err := r.MediaChanged(c, true); err != nil {
		t.Fatalf("MediaChanged(true) error = %v", err)
	}
	if !d.IsPresent() || !c.open {
		t.Fatal("card not opened on insertion")
	}
	if d.BlockCount() != 4 {
		t.Errorf("BlockCount() = %d, want 4", d.BlockCount())
	}

	copy(buf, "hello")
	if n, err := d.Write(1, 1, buf); err != nil || n != 1 {
		t.Fatalf("Write() = %d, %v, want 1, nil", n, err)
	}

	if err := r.WriteProtectChanged(c, true); err != nil {
		t.Fatalf("WriteProtectChanged() error = %v", err)
	}
	if !d.IsReadOnly() {
		t.Error("IsReadOnly() = false after protect")
	}
	if _, err := d.Write(1, 1, buf); !errors.Is(err, pkg.ErrWriteProtected) {
		t.Errorf("Write() protected error = %v, want ErrWriteProtected", err)
	}
	out := make([]byte, 512)
	if _, err := d.Read(1, 1, out); err != nil {
		t.Fatalf("Read() protected error = %v", err)
	}
	if !bytes.Equal(out, buf) {
		t.Error("Read() data mismatch")
	}

	if err := r.MediaChanged(c, false); err != nil {
		t.Fatalf("MediaChanged(false) error = %v", err)
	}
	if d.IsPresent() || d.IsReadOnly() || c.open {
		t.Error("removal did not clear device state")
	}
	if err := d.Sync(); !errors.Is(err, pkg.ErrNoMedia) {
		t.Errorf("Sync() after removal error = %v, want ErrNoMedia", err)
	}

	wantKinds := []EventKind{EventBound, EventMediaChanged, EventWriteProtect, EventMediaChanged}
	if len(events) != len(wantKinds) {
		t.Fatalf("observer got %d events, want %d", len(events), len(wantKinds))
	}
	for i, k := range wantKinds {
		if events[i].Kind != k {
			t.Errorf("event %d kind = %v, want %v", i, events[i].Kind, k)
		}
	}
}

func TestRegistry_OpenFailure(t *testing.T) {
	var last Event
	r := NewRegistry(WithObserver(func(e Event) { last = e }))
	c := newMockController(0, 4)
	c.openErr = pkg.ErrNoMedia
	if err := r.Bind(0, c); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	if err := r.MediaChanged(c, true); !errors.Is(err, pkg.ErrNoMedia) {
		t.Errorf("MediaChanged() error = %v, want ErrNoMedia", err)
	}
	d, _ := r.Device(0)
	if d.IsPresent() {
		t.Error("IsPresent() = true after failed open")
	}
	if !errors.Is(last.Err, pkg.ErrNoMedia) {
		t.Errorf("observer Err = %v, want ErrNoMedia", last.Err)
	}
}

func TestRegistry_Devices(t *testing.T) {
	r := NewRegistry()
	for _, minor := range []int{7, 2, 5} {
		if err := r.Bind(minor, newMockController(minor, 1)); err != nil {
			t.Fatalf("Bind(%d) error = %v", minor, err)
		}
	}

	devices := r.Devices()
	want := []int{2, 5, 7}
	for i, d := range devices {
		if d.Minor() != want[i] {
			t.Errorf("Devices()[%d].Minor() = %d, want %d", i, d.Minor(), want[i])
		}
	}
}

func TestRegistry_ConcurrentNotifications(t *testing.T) {
	r := NewRegistry()
	ctrls := make([]*mockController, 4)
	for i := range ctrls {
		ctrls[i] = newMockController(i, 1)
		if err := r.Bind(i, ctrls[i]); err != nil {
			t.Fatalf("Bind(%d) error = %v", i, err)
		}
	}

	var wg sync.WaitGroup
	for _, c := range ctrls {
		wg.Add(1)
		go func(c *mockController) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.MediaChanged(c, i%2 == 0)
				r.WriteProtectChanged(c, i%3 == 0)
			}
		}(c)
	}
	wg.Wait()

	for _, d := range r.Devices() {
		// Last iteration (99) is a removal.
		if d.IsPresent() {
			t.Errorf("%s present after final removal", d.Name())
		}
	}
}

func TestRegistry_WithHostController(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := sdhc.CreateImage(fs, "card.img", 16*512); err != nil {
		t.Fatalf("CreateImage() error = %v", err)
	}
	host := sdhc.NewHost(fs)
	if err := host.AddSlot(0, "card.img", 512); err != nil {
		t.Fatalf("AddSlot() error = %v", err)
	}
	c, err := host.Initialize(context.Background(), 0)
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	r := NewRegistry()
	if err := r.Bind(0, c); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if err := r.MediaChanged(c, true); err != nil {
		t.Fatalf("MediaChanged() error = %v", err)
	}
	d, _ := r.Device(0)
	if d.BlockCount() != 16 {
		t.Errorf("BlockCount() = %d, want 16", d.BlockCount())
	}

	buf := bytes.Repeat([]byte{0x5A}, 512)
	if _, err := d.Write(15, 1, buf); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	out := make([]byte, 512)
	if _, err := d.Read(15, 1, out); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(out, buf) {
		t.Error("Read() data mismatch")
	}
}

func TestEventKind_String(t *testing.T) {
	tests := []struct {
		kind EventKind
		want string
	}{
		{EventBound, "bound"},
		{EventMediaChanged, "media-changed"},
		{EventWriteProtect, "write-protect"},
		{EventKind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("EventKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
