package collect

import (
	"strings"
	"testing"
	"testing/quick"
)

func TestEscapeFTSBasics(t *testing.T) {
	cases := map[string]string{
		"hello world":        `"hello" "world"`,
		"  padded  ":         `"padded"`,
		"":                   `""`,
		"   ":                `""`,
		`drop "quotes"`:      `"drop" "quotes"`,
		"star* caret^":       `"star" "caret"`,
		"a AND b":            `"a" "b"`,
		"NOT nearby OR anD":  `"nearby"`, // operator filter is case-insensitive
		"cache OR":           `"cache"`,
	}
	// NEAR in any case is dropped; all-operator input collapses to empty.
	cases["x NEAR y"] = `"x" "y"`
	cases["AND OR NOT NEAR"] = `""`
	for in, want := range cases {
		if got := EscapeFTS(in); got != want {
			t.Errorf("EscapeFTS(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEscapeFTSLengthCap(t *testing.T) {
	long := strings.Repeat("a", 500)
	got := EscapeFTS(long)
	if len(got) > maxQueryLength+2 {
		t.Errorf("capped input produced %d chars", len(got))
	}
}

func TestEscapeFTSIdempotent(t *testing.T) {
	f := func(s string) bool {
		once := EscapeFTS(s)
		return EscapeFTS(once) == once
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 500}); err != nil {
		t.Error(err)
	}
}

func TestEscapeFTSSafety(t *testing.T) {
	f := func(s string) bool {
		out := EscapeFTS(s)
		if out == `""` {
			return true
		}
		// Tokens are exactly the quoted segments; no stray metacharacters.
		for _, tok := range strings.Fields(out) {
			if !strings.HasPrefix(tok, `"`) || !strings.HasSuffix(tok, `"`) {
				return false
			}
			inner := tok[1 : len(tok)-1]
			if strings.ContainsAny(inner, `"*^`) {
				return false
			}
			if ftsOperators[strings.ToLower(inner)] {
				return false
			}
		}
		return true
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 500}); err != nil {
		t.Error(err)
	}
}
