package errs

import (
	"errors"
	"testing"
)

func TestOpenErrorUnwrap(t *testing.T) {
	cause := errors.New("no such file")
	err := NewOpenError("in.mkv", cause)

	var oe *OpenError
	if !errors.As(err, &oe) {
		t.Fatalf("errors.As failed on %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is should see through to the wrapped cause")
	}
	if got := oe.Error(); got == "" {
		t.Fatal("Error() returned an empty string")
	}
}

func TestNewErrorConstructorsReturnNilForNilCause(t *testing.T) {
	if NewOpenError("p", nil) != nil {
		t.Error("NewOpenError(nil) should return nil")
	}
	if NewIndexError(0, nil) != nil {
		t.Error("NewIndexError(nil) should return nil")
	}
	if NewCacheError("p", nil) != nil {
		t.Error("NewCacheError(nil) should return nil")
	}
	if NewDecodeError(0, 0, nil) != nil {
		t.Error("NewDecodeError(nil) should return nil")
	}
	if NewSeekError(0, 0, nil) != nil {
		t.Error("NewSeekError(nil) should return nil")
	}
}

func TestRangeErrorHasNoUnwrap(t *testing.T) {
	err := NewRangeError(2, 10, 5)
	if errors.Unwrap(err) != nil {
		t.Fatal("RangeError has no inner cause, Unwrap should yield nil")
	}
	if err.Error() == "" {
		t.Fatal("Error() returned an empty string")
	}
}

func TestDecodeErrorRecordsFrame(t *testing.T) {
	err := NewDecodeError(0, 42, errors.New("bad bitstream"))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected a *DecodeError, got %T", err)
	}
	if de.Frame != 42 {
		t.Fatalf("Frame = %d, want 42", de.Frame)
	}
}
