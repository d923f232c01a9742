package slot

// State represents the bring-up state of a slot.
type State uint8

// Slot states, in bring-up order.
const (
	StateUninitialized     State = iota // Nothing configured
	StateLinesConfigured                // Card-detect and write-protect lines are inputs
	StateInterruptAttached              // Card-detect handler attached, delivery disabled
	StateControllerReady                // Controller interface initialized
	StateBound                          // Controller bound to its block device minor
	StateArmed                          // Initial state reconciled, delivery enabled
	StateFailed                         // Bring-up aborted
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateLinesConfigured:
		return "LinesConfigured"
	case StateInterruptAttached:
		return "InterruptAttached"
	case StateControllerReady:
		return "ControllerReady"
	case StateBound:
		return "Bound"
	case StateArmed:
		return "Armed"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}
