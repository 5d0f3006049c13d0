// Package sym defines the symbols avscheduler attaches to log lines and CLI output.
// These symbols are stable across the daemon, the status server, and the CLI.
package sym

// Component markers
const (
	AM         = "≡" // am: configuration
	Pulse      = "꩜" // scheduler dispatch and job execution
	PulseOpen  = "✿" // graceful startup
	PulseClose = "❀" // graceful shutdown
	DB         = "⊔" // execution log store
	Server     = "⋈" // read-only status surface
)

// CommandSymbols maps top-level CLI commands to the symbol shown in their help.
var CommandSymbols = map[string]string{
	"start":  Pulse,
	"stop":   PulseClose,
	"config": AM,
	"db":     DB,
	"serve":  Server,
}

// ForCommand returns the symbol for a command, or Pulse when none is registered.
func ForCommand(cmd string) string {
	if s, ok := CommandSymbols[cmd]; ok {
		return s
	}
	return Pulse
}
