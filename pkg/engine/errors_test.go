package engine

import (
	"errors"
	"strings"
	"testing"
)

func TestStepErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := stepErr(KindTransportFailed, "Fetch", cause, "")

	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find the wrapped cause")
	}

	var asStepErr *StepError
	if !errors.As(err, &asStepErr) {
		t.Fatalf("expected errors.As to match *StepError")
	}
	if asStepErr.Kind != KindTransportFailed {
		t.Fatalf("expected kind %q, got %q", KindTransportFailed, asStepErr.Kind)
	}
}

func TestStepErrorMessageIncludesStepKindAndCause(t *testing.T) {
	err := stepErr(KindCommandFailed, "ComposeUp", errors.New("exited 1"), "")
	msg := err.Error()
	for _, want := range []string{"ComposeUp", string(KindCommandFailed), "exited 1"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected message %q to contain %q", msg, want)
		}
	}
}

func TestStepErrorTruncatesLongStderr(t *testing.T) {
	long := strings.Repeat("x", 1000)
	err := stepErr(KindCommandFailed, "Migrate", errors.New("exit 1"), long)
	if strings.Contains(err.Error(), long) {
		t.Fatalf("expected stderr to be truncated in message")
	}
	if !strings.Contains(err.Error(), "truncated") {
		t.Fatalf("expected truncation marker in message, got %q", err.Error())
	}
}
