package mmcsd

import (
	"fmt"
	"sync"

	"github.com/ardnew/softsd/pkg"
)

// Device is a removable block device backed by a bound controller.
// Block access is refused while no card is present, and writes are
// refused while the card is write protected.
type Device struct {
	minor int
	ctrl  BlockController

	mutex    sync.RWMutex
	present  bool
	readOnly bool
}

// Name returns the device node name, for example "/dev/mmcsd0".
func (d *Device) Name() string {
	return fmt.Sprintf("/dev/mmcsd%d", d.minor)
}

// Minor returns the device minor number.
func (d *Device) Minor() int {
	return d.minor
}

// BlockSize returns the size of a block in bytes.
func (d *Device) BlockSize() uint32 {
	return d.ctrl.BlockSize()
}

// BlockCount returns the number of blocks, or 0 with no card present.
func (d *Device) BlockCount() uint64 {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	if !d.present {
		return 0
	}
	return d.ctrl.BlockCount()
}

// Read reads blocks starting at lba into buf.
// Returns number of blocks read or error.
func (d *Device) Read(lba uint64, blocks uint32, buf []byte) (uint32, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	if !d.present {
		return 0, pkg.ErrNoMedia
	}
	return d.ctrl.ReadBlocks(lba, blocks, buf)
}

// Write writes blocks from buf starting at lba.
// Returns number of blocks written or error.
func (d *Device) Write(lba uint64, blocks uint32, buf []byte) (uint32, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	if !d.present {
		return 0, pkg.ErrNoMedia
	}
	if d.readOnly {
		return 0, pkg.ErrWriteProtected
	}
	return d.ctrl.WriteBlocks(lba, blocks, buf)
}

// Sync flushes cached writes to the card.
func (d *Device) Sync() error {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	if !d.present {
		return pkg.ErrNoMedia
	}
	return d.ctrl.Sync()
}

// IsReadOnly returns true if the inserted card is write protected.
func (d *Device) IsReadOnly() bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.readOnly
}

// IsRemovable returns true; card media is always removable.
func (d *Device) IsRemovable() bool {
	return true
}

// IsPresent returns true if a card is inserted.
func (d *Device) IsPresent() bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.present
}

// setPresent applies a media change.
func (d *Device) setPresent(inserted bool) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !inserted {
		d.present = false
		d.readOnly = false
		return d.ctrl.Close()
	}

	if err := d.ctrl.Open(); err != nil {
		d.present = false
		return err
	}
	d.present = true
	return nil
}
