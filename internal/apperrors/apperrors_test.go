package apperrors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCodeOfThroughWrapping(t *testing.T) {
	base := New(CodeInvalidDate, "unparseable date").WithField("from").WithValue("2024-13-01")
	wrapped := fmt.Errorf("building calendar: %w", base)

	if got := CodeOf(wrapped); got != CodeInvalidDate {
		t.Fatalf("CodeOf = %q, want %q", got, CodeInvalidDate)
	}
	if !Is(wrapped, CodeInvalidDate) {
		t.Fatal("Is should match wrapped code")
	}

	var appErr *Error
	if !errors.As(wrapped, &appErr) {
		t.Fatal("errors.As should find *Error")
	}
	if appErr.Field != "from" {
		t.Errorf("Field = %q, want from", appErr.Field)
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if got := CodeOf(errors.New("boom")); got != "" {
		t.Errorf("CodeOf(plain) = %q, want empty", got)
	}
	if Is(nil, CodeInvalidDate) {
		t.Error("Is(nil) should be false")
	}
}

func TestErrorMessage(t *testing.T) {
	err := Wrap(CodeInvalidEntity, "image 2 is invalid", errors.New("url")).WithField("URL")
	msg := err.Error()
	for _, want := range []string{"[invalid_entity]", "image 2 is invalid", "field=URL", ": url"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}
