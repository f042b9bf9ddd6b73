// Package sym defines the symbols pulsed attaches to log lines and CLI output.
// They are stable across log sinks so lines can be filtered by symbol.
package sym

// System infrastructure symbols.
const (
	Pulse      = "꩜" // scheduler ticks, admission, task lifecycle
	PulseOpen  = "✿" // startup and recovery of orphaned tasks
	PulseClose = "❀" // graceful shutdown
	DB         = "⊔" // database/storage layer
	AM         = "≡" // configuration
)

// Descriptions maps each symbol to a short human description.
var Descriptions = map[string]string{
	Pulse:      "Scheduler ticks, admission and task lifecycle",
	PulseOpen:  "Startup with orphaned task recovery",
	PulseClose: "Graceful shutdown",
	DB:         "Database/storage layer",
	AM:         "Configuration",
}

// All returns every symbol in display order.
func All() []string {
	return []string{Pulse, PulseOpen, PulseClose, DB, AM}
}
