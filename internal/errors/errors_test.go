package errors

import (
	"context"
	"fmt"
	"testing"
)

func TestCategories(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		validation  bool
		unavailable bool
		retriable   bool
	}{
		{"missing field", NewMissingField("timestamp"), true, false, false},
		{"invalid value", NewInvalidValue("timestamp", "abc", "not a number"), true, false, false},
		{"invalid config", NewInvalidConfig("role", "unknown"), true, false, false},
		{"unavailable", Unavailable("put", New("connection refused")), false, true, true},
		{"timeout", Wrap(ErrTimeout, "range read"), false, true, true},
		{"closed", Wrap(ErrClosed, "publish"), false, false, false},
		{"plain", New("boom"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidation(tt.err); got != tt.validation {
				t.Errorf("IsValidation = %v, want %v", got, tt.validation)
			}
			if got := IsUnavailable(tt.err); got != tt.unavailable {
				t.Errorf("IsUnavailable = %v, want %v", got, tt.unavailable)
			}
			if got := IsRetriable(tt.err); got != tt.retriable {
				t.Errorf("IsRetriable = %v, want %v", got, tt.retriable)
			}
		})
	}
}

func TestRecordErrorsWrapInvalidRecord(t *testing.T) {
	if err := NewMissingField("timestamp"); !Is(err, ErrInvalidRecord) || !Is(err, ErrMissingField) {
		t.Errorf("missing field chain broken: %v", err)
	}
	if err := NewInvalidValue("gps", "map", "nested"); !Is(err, ErrInvalidRecord) || !Is(err, ErrInvalidValue) {
		t.Errorf("invalid value chain broken: %v", err)
	}
}

func TestUnavailableKeepsCause(t *testing.T) {
	err := Unavailable("put", context.DeadlineExceeded)
	if !Is(err, context.DeadlineExceeded) {
		t.Error("cause lost")
	}
	if Unavailable("put", nil) != nil {
		t.Error("nil cause should stay nil")
	}
}

func TestValidationErrors(t *testing.T) {
	errs := NewValidationErrors()
	if errs.ErrOrNil() != nil {
		t.Fatal("empty collector should be nil")
	}

	errs.AddField("window.width_sec", "must be positive")
	errs.Add(nil)
	errs.Add(fmt.Errorf("store: %w", ErrInvalidConfig))

	err := errs.ErrOrNil()
	if err == nil {
		t.Fatal("expected error")
	}
	if len(errs.Errors) != 2 {
		t.Errorf("expected 2 errors, got %d", len(errs.Errors))
	}
	if !Is(err, ErrInvalidConfig) {
		t.Error("collector does not unwrap to ErrInvalidConfig")
	}
	if want := "2 validation errors: "; err.Error()[:len(want)] != want {
		t.Errorf("unexpected message %q", err.Error())
	}
}
