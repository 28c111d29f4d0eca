package controllino

// Command is the low-level escape hatch for custom commands: anything
// that can serialize itself into an attribute map can be submitted
// directly via (*Driver).Submit, without needing a typed helper method.
type Command interface {
	// Serialize returns the command's name and its argument attributes.
	// id is assigned by the driver and must not be included here.
	Serialize() (name string, args map[string]any, err error)
}

// Command name constants for the typed helpers in driver.go.
const (
	cmdOpen          = "open"
	cmdSetSignal     = "set_signal"
	cmdGetSignal     = "get_signal"
	cmdSetPinMode    = "set_pin_mode"
	cmdGetPinMode    = "get_pin_mode"
	cmdSavePinModes  = "save_pin_modes"
	cmdLoadPinModes  = "load_pin_modes"
	cmdResetPinModes = "reset_pin_modes"
	cmdTriggerPulse  = "trigger_pulse"
	cmdLogSignal     = "log_signal"
	cmdEndLogSignal  = "end_log_signal"
)
