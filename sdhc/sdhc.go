package sdhc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/afero"

	"github.com/ardnew/softsd/pkg"
	"github.com/ardnew/softsd/slot/hal"
)

// DefaultBlockSize is the block size of a slot added without one.
const DefaultBlockSize = 512

// Host implements hal.ControllerHAL for a set of controller interfaces,
// each reading its card from an image file on an afero filesystem.
type Host struct {
	fs afero.Fs

	mutex  sync.Mutex
	slots  map[int]slotConfig  // Configured interfaces by slot
	active map[int]*Controller // Initialized controllers by slot
}

// slotConfig is the wiring of one controller interface.
type slotConfig struct {
	path      string
	blockSize uint32
}

// NewHost creates a host with no interfaces. Cards are read through fs.
func NewHost(fs afero.Fs) *Host {
	return &Host{
		fs:     fs,
		slots:  make(map[int]slotConfig),
		active: make(map[int]*Controller),
	}
}

// AddSlot configures an interface for slot whose card is the image at path,
// read in blocks of blockSize bytes. A blockSize of 0 selects
// DefaultBlockSize; otherwise it must be a power of two of at least 512.
func (h *Host) AddSlot(slot int, path string, blockSize uint32) error {
	if slot < 0 {
		return pkg.ErrInvalidSlot
	}
	if path == "" {
		return fmt.Errorf("sdhc slot %d: empty image path: %w", slot, pkg.ErrInvalidParameter)
	}
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	if blockSize < 512 || blockSize&(blockSize-1) != 0 {
		return fmt.Errorf("sdhc slot %d: block size %d: %w", slot, blockSize, pkg.ErrInvalidParameter)
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.slots[slot] = slotConfig{path: path, blockSize: blockSize}
	return nil
}

// Initialize brings up the interface for slot.
func (h *Host) Initialize(ctx context.Context, slot int) (hal.Controller, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if slot < 0 {
		return nil, pkg.ErrInvalidSlot
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	sc, ok := h.slots[slot]
	if !ok {
		return nil, fmt.Errorf("sdhc slot %d: %w", slot, pkg.ErrNoDevice)
	}
	if _, ok := h.active[slot]; ok {
		return nil, fmt.Errorf("sdhc slot %d: %w", slot, pkg.ErrAlreadyRunning)
	}

	c := &Controller{
		host:      h,
		slot:      slot,
		path:      sc.path,
		blockSize: sc.blockSize,
	}
	h.active[slot] = c

	pkg.LogDebug(pkg.ComponentSDHC, "interface initialized",
		"slot", slot,
		"image", sc.path,
		"blockSize", sc.blockSize)
	return c, nil
}

// Active reports whether slot has an initialized controller.
func (h *Host) Active(slot int) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	_, ok := h.active[slot]
	return ok
}

func (h *Host) release(slot int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	delete(h.active, slot)
}

// Controller is an initialized interface for one slot. The card image is
// opened on insertion and closed on removal.
type Controller struct {
	host      *Host
	slot      int
	path      string
	blockSize uint32

	mutex    sync.RWMutex
	file     afero.File
	blocks   uint64
	readOnly bool
	released bool
}

// Slot returns the slot index.
func (c *Controller) Slot() int {
	return c.slot
}

// BlockSize returns the card block size in bytes.
func (c *Controller) BlockSize() uint32 {
	return c.blockSize
}

// BlockCount returns the number of blocks on the open card, or 0.
func (c *Controller) BlockCount() uint64 {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.blocks
}

// Open opens the card image. A missing image means no card is behind the
// contacts. An image that cannot be opened for writing is opened read-only.
func (c *Controller) Open() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.released {
		return pkg.ErrNotRunning
	}
	if c.file != nil {
		return nil
	}

	readOnly := false
	f, err := c.host.fs.OpenFile(c.path, os.O_RDWR, 0)
	if errors.Is(err, os.ErrPermission) {
		readOnly = true
		f, err = c.host.fs.OpenFile(c.path, os.O_RDONLY, 0)
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("sdhc slot %d: %s: %w", c.slot, c.path, pkg.ErrNoMedia)
		}
		return fmt.Errorf("sdhc slot %d: %w", c.slot, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("sdhc slot %d: %w", c.slot, err)
	}

	c.file = f
	c.readOnly = readOnly
	c.blocks = uint64(st.Size()) / uint64(c.blockSize)

	pkg.LogDebug(pkg.ComponentSDHC, "card opened",
		"slot", c.slot,
		"blocks", c.blocks,
		"readOnly", readOnly)
	return nil
}

// Close closes the card image. Closing with no card open is a no-op.
func (c *Controller) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.closeLocked()
}

func (c *Controller) closeLocked() error {
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	c.blocks = 0
	c.readOnly = false
	return err
}

// Release closes the card and frees the interface so the slot can be
// initialized again.
func (c *Controller) Release() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.released {
		return nil
	}
	err := c.closeLocked()
	c.released = true
	c.host.release(c.slot)
	return err
}

// ReadBlocks reads count blocks starting at lba into buf.
// Returns the number of blocks read.
func (c *Controller) ReadBlocks(lba uint64, count uint32, buf []byte) (uint32, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	offset, length, err := c.extentLocked(lba, count, len(buf))
	if err != nil {
		return 0, err
	}

	n, err := c.file.ReadAt(buf[:length], offset)
	if err != nil && err != io.EOF {
		return 0, err
	}
	return uint32(n) / c.blockSize, nil
}

// WriteBlocks writes count blocks from buf starting at lba.
// Returns the number of blocks written.
func (c *Controller) WriteBlocks(lba uint64, count uint32, buf []byte) (uint32, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	offset, length, err := c.extentLocked(lba, count, len(buf))
	if err != nil {
		return 0, err
	}
	if c.readOnly {
		return 0, pkg.ErrWriteProtected
	}

	n, err := c.file.WriteAt(buf[:length], offset)
	if err != nil {
		return 0, err
	}
	return uint32(n) / c.blockSize, nil
}

// Sync flushes written blocks to the image.
func (c *Controller) Sync() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.file == nil {
		return pkg.ErrNoMedia
	}
	if c.readOnly {
		return nil
	}
	return c.file.Sync()
}

// extentLocked validates a block range and returns its byte offset and length.
func (c *Controller) extentLocked(lba uint64, count uint32, bufLen int) (int64, int, error) {
	if c.file == nil {
		return 0, 0, pkg.ErrNoMedia
	}
	if lba+uint64(count) > c.blocks || lba+uint64(count) < lba {
		return 0, 0, pkg.ErrOutOfRange
	}
	length := int(count) * int(c.blockSize)
	if bufLen < length {
		return 0, 0, io.ErrShortBuffer
	}
	return int64(lba) * int64(c.blockSize), length, nil
}

// CreateImage creates a zero-filled card image of size bytes at path,
// replacing any existing file.
func CreateImage(fs afero.Fs, path string, size int64) error {
	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
