// Package mmcsd binds storage controllers to removable block devices.
//
// [Registry] implements [hal.Binder]: a controller bound under a minor
// number becomes a [Device] named /dev/mmcsd<minor>. Media and
// write-protect notifications from the slot core update the device:
//
//   - insertion opens the card and makes blocks readable
//   - write protection refuses writes until the card is removed
//   - removal closes the card; reads and writes fail with [pkg.ErrNoMedia]
//
// Controllers must implement [BlockController]; the controllers of
// [github.com/ardnew/softsd/sdhc] do.
package mmcsd
