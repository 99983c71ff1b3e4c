package redact_test

import (
	"testing"

	"github.com/ansato/Miharu/common/redact"
)

func TestStringRedactsValues(t *testing.T) {
	password := "hunter2secret"
	token := "syt_live_xxx"
	line := "auth failed: user=miharu pw=hunter2secret token=syt_live_xxx"
	got := redact.String(line, password, token)
	if got != "auth failed: user=miharu pw=[REDACTED] token=[REDACTED]" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestStringSkipsShortValues(t *testing.T) {
	line := "abc token"
	// Three characters is below the redaction threshold.
	if got := redact.String(line, "abc"); got != line {
		t.Fatalf("short value should not be redacted; got %q", got)
	}
}

func TestMapRedactsSensitiveKeys(t *testing.T) {
	m := map[string]any{
		"username":     "miharu",
		"password":     "s3cr3t",
		"access_token": "syt_123",
		"rooms":        2,
	}
	out := redact.Map(m)

	if out["username"] != "miharu" {
		t.Errorf("username should not be redacted, got %v", out["username"])
	}
	if out["password"] != "[REDACTED]" {
		t.Errorf("password should be redacted, got %v", out["password"])
	}
	if out["access_token"] != "[REDACTED]" {
		t.Errorf("access_token should be redacted, got %v", out["access_token"])
	}
	if out["rooms"] != 2 {
		t.Errorf("non-string value should be unchanged, got %v", out["rooms"])
	}
}

func TestMapDoesNotMutateOriginal(t *testing.T) {
	m := map[string]any{"password": "secret"}
	redact.Map(m)
	if m["password"] != "secret" {
		t.Error("Map mutated the original; expected shallow copy")
	}
}
