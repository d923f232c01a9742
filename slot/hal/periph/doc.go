// Package periph implements [hal.GPIO] on periph.io host drivers.
//
// Lines are periph pin names as registered in gpioreg, for example "GPIO17"
// on a Raspberry Pi. Transitions are detected by a watcher goroutine per
// attached line, polling [gpio.PinIn.WaitForEdge] with [EdgeTimeout]:
//
//	g, err := periph.New()
//	if err != nil {
//		return err
//	}
//	defer g.Close()
//
// Handlers run on the watcher goroutine.
package periph
