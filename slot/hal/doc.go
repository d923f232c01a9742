// Package hal defines the collaborator interfaces for a removable card slot.
//
// A slot depends on three external services:
//
//   - [GPIO]: synchronous line reads plus an interrupt attach facility for the
//     card-detect line
//   - [ControllerHAL]: initializes the storage controller interface (clock,
//     bus, DMA) for a slot and returns an opaque [Controller] handle
//   - [Binder]: exposes a controller as a block device under a minor number
//     and accepts media and write-protect notifications for it
//
// The slot core in [github.com/ardnew/softsd/slot] implements all reconcile
// and bring-up logic, leaving implementations of this package to handle only
// hardware (or simulated hardware) access.
//
// # Implementations
//
//   - [github.com/ardnew/softsd/slot/hal/sim] simulated GPIO bank for tests
//   - [github.com/ardnew/softsd/slot/hal/periph] GPIO on periph.io host drivers
//   - [github.com/ardnew/softsd/sdhc] card-image backed controller host
//   - [github.com/ardnew/softsd/mmcsd] block device binder
package hal
