package sym

import (
	"testing"
	"unicode/utf8"
)

func TestEverySymbolIsSingleRuneAndDescribed(t *testing.T) {
	seen := map[string]bool{}
	for _, s := range All() {
		if utf8.RuneCountInString(s) != 1 {
			t.Errorf("symbol %q should be a single rune", s)
		}
		if seen[s] {
			t.Errorf("symbol %q listed twice", s)
		}
		seen[s] = true
		if Descriptions[s] == "" {
			t.Errorf("symbol %q has no description", s)
		}
	}
	if len(Descriptions) != len(All()) {
		t.Errorf("Descriptions has %d entries, All() has %d", len(Descriptions), len(All()))
	}
}
