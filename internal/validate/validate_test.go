package validate

import (
	"strings"
	"testing"
)

func TestShellDangerousRejected(t *testing.T) {
	bad := []string{
		"echo `whoami`",
		"a$b",
		"f(x)",
		"{block}",
		"a|b",
		"a;b",
		"a&b",
		"a<b",
		"a>b",
		`back\slash`,
	}
	for _, input := range bad {
		if err := Struct(&QueryRequest{Text: input}); err == nil {
			t.Errorf("expected rejection for %q", input)
		}
	}
	if err := Struct(&QueryRequest{Text: "plain query about retries"}); err != nil {
		t.Errorf("plain text rejected: %v", err)
	}
}

func TestEncodedTraversalRejected(t *testing.T) {
	bad := []string{
		"../etc/passwd",
		"src/../../secrets",
		"%2e%2e/config",
		"src/%2E%2E/up",
	}
	for _, path := range bad {
		if err := Struct(&FileAddRequest{Path: path}); err == nil {
			t.Errorf("expected rejection for %q", path)
		}
	}
	if err := Struct(&FileAddRequest{Path: "internal/store/local.go"}); err != nil {
		t.Errorf("normal path rejected: %v", err)
	}
}

func TestLengthCaps(t *testing.T) {
	if err := Struct(&FileAddRequest{Path: strings.Repeat("a", 501)}); err == nil {
		t.Error("over-long path accepted")
	}
	if err := Struct(&QueryRequest{Text: strings.Repeat("a", 1001)}); err == nil {
		t.Error("over-long text accepted")
	}
	if err := Struct(&DecisionAddRequest{Title: "t", Decision: strings.Repeat("a", 10001)}); err == nil {
		t.Error("over-long content accepted")
	}
}

func TestEnumFields(t *testing.T) {
	if err := Struct(&LearnAddRequest{Title: "t", Content: "c", Category: "vibes"}); err == nil {
		t.Error("unknown learning category accepted")
	}
	if err := Struct(&LearnAddRequest{Title: "t", Content: "c", Category: "gotcha"}); err != nil {
		t.Errorf("valid category rejected: %v", err)
	}
	if err := Struct(&ContextRequest{Intent: "meditate"}); err == nil {
		t.Error("unknown intent accepted")
	}
}

func TestIssueDiscriminatedUnion(t *testing.T) {
	add := &IssueRequest{Action: "add", Title: "broken build", Severity: 5}
	if err := add.Validate(); err != nil {
		t.Errorf("valid add rejected: %v", err)
	}
	if err := (&IssueRequest{Action: "add"}).Validate(); err == nil {
		t.Error("add without title accepted")
	}
	if err := (&IssueRequest{Action: "resolve"}).Validate(); err == nil {
		t.Error("resolve without id accepted")
	}
	if err := (&IssueRequest{Action: "escalate", Title: "x"}).Validate(); err == nil {
		t.Error("unknown action accepted")
	}
}

func TestSessionDiscriminatedUnion(t *testing.T) {
	if err := (&SessionRequest{Action: "start", Goal: "refactor config"}).Validate(); err != nil {
		t.Errorf("valid start rejected: %v", err)
	}
	if err := (&SessionRequest{Action: "end"}).Validate(); err == nil {
		t.Error("end without id accepted")
	}
	overRange := 5
	if err := (&SessionRequest{Action: "end", ID: 3, Success: &overRange}).Validate(); err == nil {
		t.Error("out-of-range success accepted")
	}
}

func TestValidationErrorCarriesFieldPath(t *testing.T) {
	err := Struct(&FileAddRequest{Path: "../up"})
	if err == nil {
		t.Fatal("expected error")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if !strings.Contains(ve.Field, "Path") {
		t.Errorf("field path missing: %+v", ve)
	}
	if ve.Message == "" {
		t.Error("human message missing")
	}
}

func TestTokenEqual(t *testing.T) {
	token := "a-long-shared-token-value-0123456789"
	if !TokenEqual(token, token) {
		t.Error("matching tokens rejected")
	}
	if TokenEqual(token, "a-long-shared-token-value-012345678X") {
		t.Error("mismatched token accepted")
	}
	if TokenEqual("", "") || TokenEqual(token, "") {
		t.Error("empty tokens must never authenticate")
	}
}

func TestIsLocalhostRequest(t *testing.T) {
	cases := []struct {
		host, xff string
		trusted   bool
		want      bool
	}{
		{"localhost:8787", "", false, true},
		{"127.0.0.1:8787", "", false, true},
		{"[::1]:8787", "", false, true},
		{"example.com", "", false, false},
		// A forwarded chain without a trusted proxy defeats the bypass.
		{"localhost:8787", "203.0.113.9", false, false},
		{"localhost:8787", "203.0.113.9", true, true},
	}
	for _, c := range cases {
		if got := IsLocalhostRequest(c.host, c.xff, c.trusted); got != c.want {
			t.Errorf("IsLocalhostRequest(%q, %q, %v) = %v, want %v", c.host, c.xff, c.trusted, got, c.want)
		}
	}
}
