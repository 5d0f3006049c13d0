package sym

import (
	"testing"
	"unicode/utf8"
)

func TestSymbolsAreSingleRunes(t *testing.T) {
	for _, s := range []string{AM, Pulse, PulseOpen, PulseClose, DB, Server} {
		if n := utf8.RuneCountInString(s); n != 1 {
			t.Errorf("symbol %q has %d runes, want 1", s, n)
		}
	}
}

func TestForCommand(t *testing.T) {
	if got := ForCommand("db"); got != DB {
		t.Errorf("ForCommand(db) = %q, want %q", got, DB)
	}
	if got := ForCommand("list-jobs"); got != Pulse {
		t.Errorf("ForCommand(list-jobs) = %q, want fallback %q", got, Pulse)
	}
}
