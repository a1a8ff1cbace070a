package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestMultiError(t *testing.T) {
	m := &MultiError{}
	if err := m.ErrorOrNil(); err != nil {
		t.Errorf("Empty MultiError should be nil, got: %v", err)
	}

	m.Append(nil)
	if err := m.ErrorOrNil(); err != nil {
		t.Errorf("Nil appends must be ignored, got: %v", err)
	}

	first := errors.New("first")
	m.Append(first)
	if err := m.ErrorOrNil(); err != first {
		t.Errorf("Single error should be returned directly, got: %v", err)
	}

	m.Append(errors.New("second"))
	err := m.ErrorOrNil()
	if err == nil {
		t.Fatal("Expected combined error")
	}
	if !strings.Contains(err.Error(), "2 errors occurred") {
		t.Errorf("Unexpected message: %v", err)
	}
	if !errors.Is(err, first) {
		t.Error("errors.Is should traverse collected errors")
	}
}

func TestRecover(t *testing.T) {
	err := Recover(func() error {
		panic("boom")
	})
	if err == nil {
		t.Fatal("Expected error from panic")
	}

	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("Expected *PanicError, got %T", err)
	}
	if panicErr.Value != "boom" {
		t.Errorf("Panic value = %v", panicErr.Value)
	}
	if panicErr.StackTrace == "" {
		t.Error("Expected captured stack trace")
	}
}

func TestRecoverPassesThrough(t *testing.T) {
	want := errors.New("plain failure")
	if err := Recover(func() error { return want }); err != want {
		t.Errorf("Recover altered the error: %v", err)
	}
	if err := Recover(func() error { return nil }); err != nil {
		t.Errorf("Recover invented an error: %v", err)
	}
}

func TestTransientError(t *testing.T) {
	cause := errors.New("timed out")
	err := NewTransientError("store shutdown", cause)

	if !errors.Is(err, cause) {
		t.Error("TransientError should unwrap to its cause")
	}
	if got := err.Error(); got != fmt.Sprintf("store shutdown: %v", cause) {
		t.Errorf("Unexpected message: %s", got)
	}
}
