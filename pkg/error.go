package pkg

import (
	"errors"
	"syscall"
)

// Card slot errors.
var (
	// ErrNoDevice indicates the storage controller for a slot is absent or
	// not responding.
	ErrNoDevice = errors.New("no such device")

	// ErrAlreadyBound indicates a minor number or controller is already bound.
	ErrAlreadyBound = errors.New("already bound")

	// ErrNotBound indicates a notification for a controller that was never bound.
	ErrNotBound = errors.New("controller not bound")

	// ErrInvalidMinor indicates a block device minor number out of range.
	ErrInvalidMinor = errors.New("invalid minor number")

	// ErrInvalidSlot indicates a slot index out of range.
	ErrInvalidSlot = errors.New("invalid slot")

	// ErrInvalidLine indicates an unknown GPIO line identifier.
	ErrInvalidLine = errors.New("invalid line")

	// ErrLineNotConfigured indicates a GPIO line used before being configured.
	ErrLineNotConfigured = errors.New("line not configured")

	// ErrNoMedia indicates no card is inserted in the slot.
	ErrNoMedia = errors.New("no medium found")

	// ErrWriteProtected indicates a write to write-protected media.
	ErrWriteProtected = errors.New("medium is write protected")

	// ErrQueueFull indicates a notification was dropped because the
	// dispatch queue was full.
	ErrQueueFull = errors.New("notification queue full")

	// ErrInvalidState indicates an operation not allowed in the current state.
	ErrInvalidState = errors.New("invalid state")

	// ErrAlreadyRunning indicates the resource is already running or initialized.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotRunning indicates the resource is not running.
	ErrNotRunning = errors.New("not running")

	// ErrNotSupported indicates an unsupported operation or feature.
	ErrNotSupported = errors.New("not supported")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrOutOfRange indicates a block address beyond the end of the medium.
	ErrOutOfRange = errors.New("block out of range")
)

// errnoTable maps sentinel errors to POSIX error numbers.
var errnoTable = []struct {
	err   error
	errno syscall.Errno
}{
	{ErrNoDevice, syscall.ENODEV},
	{ErrAlreadyBound, syscall.EBUSY},
	{ErrAlreadyRunning, syscall.EBUSY},
	{ErrNotBound, syscall.ENOENT},
	{ErrInvalidMinor, syscall.EINVAL},
	{ErrInvalidSlot, syscall.EINVAL},
	{ErrInvalidLine, syscall.EINVAL},
	{ErrLineNotConfigured, syscall.EINVAL},
	{ErrInvalidState, syscall.EINVAL},
	{ErrInvalidParameter, syscall.EINVAL},
	{ErrNotRunning, syscall.EINVAL},
	{ErrNoMedia, syscall.ENXIO},
	{ErrWriteProtected, syscall.EROFS},
	{ErrQueueFull, syscall.EAGAIN},
	{ErrNotSupported, syscall.ENOTSUP},
	{ErrOutOfRange, syscall.ERANGE},
}

// Errno returns the POSIX error number corresponding to err.
// It returns 0 for a nil error and EIO for errors with no mapping.
// An err that already carries a [syscall.Errno] is returned as-is.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	for _, e := range errnoTable {
		if errors.Is(err, e.err) {
			return e.errno
		}
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return syscall.EIO
}
