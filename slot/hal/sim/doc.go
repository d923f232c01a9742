// Package sim provides a simulated GPIO bank implementing [hal.GPIO].
//
// The bank models input lines with pull bias, external drive and edge
// interrupts. Tests and the simulate command use it to insert and remove
// cards and to toggle write protection without hardware:
//
//	bank := sim.NewBank("porte")
//	bank.ConfigureInput("PTE6", hal.PullUp) // reads High: no card
//	bank.Drive("PTE6", hal.Low)             // card inserted
//	bank.Release("PTE6")                    // card removed
//
// Handlers run synchronously on the goroutine applying the stimulus and
// outside the bank lock, so a handler may read lines of the same bank.
package sim
