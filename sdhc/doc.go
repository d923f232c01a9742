// Package sdhc provides a storage controller host whose cards are image
// files.
//
// [Host] implements [hal.ControllerHAL]. Each configured slot is an
// interface that can be initialized once; the returned [Controller] opens
// its card image when media is inserted and exposes block reads and writes.
// Images live on an [afero.Fs], so the same host serves real image files or
// device nodes ([afero.NewOsFs]) and in-memory cards ([afero.NewMemMapFs]):
//
//	fs := afero.NewMemMapFs()
//	sdhc.CreateImage(fs, "card0.img", 1<<20)
//	host := sdhc.NewHost(fs)
//	host.AddSlot(0, "card0.img", 512)
//
// A slot with no configured interface fails initialization with
// [pkg.ErrNoDevice].
package sdhc
