package sdhc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/spf13/afero"

	"github.com/ardnew/softsd/pkg"
	"github.com/ardnew/softsd/slot/hal"
)

const testBlockSize = 512

func newTestHost(t *testing.T, blocks int64) (*Host, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := CreateImage(fs, "card0.img", blocks*testBlockSize); err != nil {
		t.Fatalf("CreateImage() error = %v", err)
	}
	h := NewHost(fs)
	if err := h.AddSlot(0, "card0.img", testBlockSize); err != nil {
		t.Fatalf("AddSlot() error = %v", err)
	}
	return h, fs
}

func initController(t *testing.T, h *Host, slot int) *Controller {
	t.Helper()
	c, err := h.Initialize(context.Background(), slot)
	if err != nil {
		t.Fatalf("Initialize(%d) error = %v", slot, err)
	}
	return c.(*Controller)
}

func TestHost_Initialize(t *testing.T) {
	h, _ := newTestHost(t, 8)

	c := initController(t, h, 0)
	if c.Slot() != 0 {
		t.Errorf("Slot() = %d, want 0", c.Slot())
	}
	if !h.Active(0) {
		t.Error("Active(0) = false after Initialize")
	}
	var _ hal.ControllerHAL = h
	var _ hal.Controller = c
}

func TestHost_InitializeErrors(t *testing.T) {
	h, _ := newTestHost(t, 8)
	initController(t, h, 0)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name    string
		ctx     context.Context
		slot    int
		wantErr error
	}{
		{"absent interface", context.Background(), 1, pkg.ErrNoDevice},
		{"negative slot", context.Background(), -1, pkg.ErrInvalidSlot},
		{"twice", context.Background(), 0, pkg.ErrAlreadyRunning},
		{"cancelled", cancelled, 0, context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := h.Initialize(tt.ctx, tt.slot)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Initialize() error = %v, want %v", err, tt.wantErr)
			}
			if c != nil {
				t.Errorf("Initialize() controller = %v, want nil", c)
			}
		})
	}
}

func TestHost_AddSlotErrors(t *testing.T) {
	h := NewHost(afero.NewMemMapFs())

	tests := []struct {
		name      string
		slot      int
		path      string
		blockSize uint32
		wantErr   error
	}{
		{"negative slot", -1, "x.img", testBlockSize, pkg.ErrInvalidSlot},
		{"empty path", 0, "", testBlockSize, pkg.ErrInvalidParameter},
		{"small block", 0, "x.img", 256, pkg.ErrInvalidParameter},
		{"odd block", 0, "x.img", 1000, pkg.ErrInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := h.AddSlot(tt.slot, tt.path, tt.blockSize); !errors.Is(err, tt.wantErr) {
				t.Errorf("AddSlot() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHost_PerSlotBlockSize(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, path := range []string{"small.img", "large.img", "default.img"} {
		if err := CreateImage(fs, path, 8*4096); err != nil {
			t.Fatalf("CreateImage(%s) error = %v", path, err)
		}
	}

	h := NewHost(fs)
	tests := []struct {
		slot       int
		path       string
		blockSize  uint32
		wantSize   uint32
		wantBlocks uint64
	}{
		{0, "small.img", 512, 512, 64},
		{1, "large.img", 4096, 4096, 8},
		{2, "default.img", 0, DefaultBlockSize, 64},
	}

	for _, tt := range tests {
		if err := h.AddSlot(tt.slot, tt.path, tt.blockSize); err != nil {
			t.Fatalf("AddSlot(%d) error = %v", tt.slot, err)
		}
	}
	for _, tt := range tests {
		c := initController(t, h, tt.slot)
		if err := c.Open(); err != nil {
			t.Fatalf("Open(%d) error = %v", tt.slot, err)
		}
		if c.BlockSize() != tt.wantSize {
			t.Errorf("slot %d BlockSize() = %d, want %d", tt.slot, c.BlockSize(), tt.wantSize)
		}
		if c.BlockCount() != tt.wantBlocks {
			t.Errorf("slot %d BlockCount() = %d, want %d", tt.slot, c.BlockCount(), tt.wantBlocks)
		}
	}
}

func TestController_ReadWrite(t *testing.T) {
	h, _ := newTestHost(t, 8)
	c := initController(t, h, 0)

	buf := make([]byte, testBlockSize)
	if _, err := c.ReadBlocks(0, 1, buf); !errors.Is(err, pkg.ErrNoMedia) {
		t.Errorf("ReadBlocks() before Open error = %v, want ErrNoMedia", err)
	}

	if err := c.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got := c.BlockCount(); got != 8 {
		t.Errorf("BlockCount() = %d, want 8", got)
	}

	data := bytes.Repeat([]byte{0xA5}, 2*testBlockSize)
	n, err := c.WriteBlocks(3, 2, data)
	if err != nil || n != 2 {
		t.Fatalf("WriteBlocks() = %d, %v, want 2, nil", n, err)
	}
	if err := c.Sync(); err != nil {
		t.Errorf("Sync() error = %v", err)
	}

	out := make([]byte, 2*testBlockSize)
	n, err = c.ReadBlocks(3, 2, out)
	if err != nil || n != 2 {
		t.Fatalf("ReadBlocks() = %d, %v, want 2, nil", n, err)
	}
	if !bytes.Equal(out, data) {
		t.Error("ReadBlocks() data mismatch")
	}
}

func TestController_RangeErrors(t *testing.T) {
	h, _ := newTestHost(t, 4)
	c := initController(t, h, 0)
	if err := c.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	buf := make([]byte, 2*testBlockSize)
	tests := []struct {
		name    string
		lba     uint64
		count   uint32
		buf     []byte
		wantErr error
	}{
		{"past end", 3, 2, buf, pkg.ErrOutOfRange},
		{"overflow", ^uint64(0), 2, buf, pkg.ErrOutOfRange},
		{"short buffer", 0, 2, buf[:testBlockSize], io.ErrShortBuffer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.ReadBlocks(tt.lba, tt.count, tt.buf); !errors.Is(err, tt.wantErr) {
				t.Errorf("ReadBlocks() error = %v, want %v", err, tt.wantErr)
			}
			if _, err := c.WriteBlocks(tt.lba, tt.count, tt.buf); !errors.Is(err, tt.wantErr) {
				t.Errorf("WriteBlocks() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestController_OpenMissingImage(t *testing.T) {
	h, fs := newTestHost(t, 4)
	if err := fs.Remove("card0.img"); err != nil {
		t.Fatal(err)
	}
	c := initController(t, h, 0)

	if err := c.Open(); !errors.Is(err, pkg.ErrNoMedia) {
		t.Errorf("Open() error = %v, want ErrNoMedia", err)
	}
	if got := c.BlockCount(); got != 0 {
		t.Errorf("BlockCount() = %d, want 0", got)
	}
}

func TestController_CloseAndReopen(t *testing.T) {
	h, _ := newTestHost(t, 4)
	c := initController(t, h, 0)

	if err := c.Close(); err != nil {
		t.Errorf("Close() with no card error = %v", err)
	}
	if err := c.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := c.Open(); err != nil {
		t.Errorf("second Open() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := c.BlockCount(); got != 0 {
		t.Errorf("BlockCount() after Close = %d, want 0", got)
	}
	if err := c.Sync(); !errors.Is(err, pkg.ErrNoMedia) {
		t.Errorf("Sync() after Close error = %v, want ErrNoMedia", err)
	}
	if err := c.Open(); err != nil {
		t.Errorf("reopen error = %v", err)
	}
}

func TestController_Release(t *testing.T) {
	h, _ := newTestHost(t, 4)
	c := initController(t, h, 0)
	c.Open()

	if err := c.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if h.Active(0) {
		t.Error("Active(0) = true after Release")
	}
	if err := c.Open(); !errors.Is(err, pkg.ErrNotRunning) {
		t.Errorf("Open() after Release error = %v, want ErrNotRunning", err)
	}
	if err := c.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}

	// The interface can be brought up again
	initController(t, h, 0)
}
