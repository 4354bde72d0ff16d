package apierr

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
)

func TestIsMatchesKind(t *testing.T) {
	err := New(KindInvalidRange, "end %d < start %d", 3, 5)
	if !errors.Is(err, ErrInvalidRange) {
		t.Error("errors.Is(invalid range) = false")
	}
	if errors.Is(err, ErrIllegalSymbol) {
		t.Error("kinds should not cross-match")
	}

	wrapped := fmt.Errorf("handler: %w", err)
	if !errors.Is(wrapped, ErrInvalidRange) {
		t.Error("errors.Is through fmt wrapping = false")
	}
	if KindOf(wrapped) != KindInvalidRange {
		t.Errorf("KindOf() = %s", KindOf(wrapped))
	}
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(KindMalformedTrace, io.ErrUnexpectedEOF, "buyram data")
	if !errors.Is(err, io.ErrUnexpectedEOF) || !errors.Is(err, ErrMalformedTrace) {
		t.Errorf("Wrap() lost cause or kind: %v", err)
	}
	if err.Error() != "malformed_trace: buyram data: unexpected EOF" {
		t.Errorf("Error() = %q", err.Error())
	}
	if Message(err) != "buyram data" {
		t.Errorf("Message() = %q", Message(err))
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{New(KindInvalidRange, "x"), http.StatusBadRequest},
		{New(KindIllegalSymbol, "x"), http.StatusBadRequest},
		{New(KindInvalidConversion, "x"), http.StatusInternalServerError},
		{New(KindBadRequest, "x"), http.StatusBadRequest},
		{New(KindUnavailable, "x"), http.StatusServiceUnavailable},
		{New(KindMalformedTrace, "x"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Error("plain error should be internal")
	}
	if Message(errors.New("plain")) != "plain" {
		t.Error("Message() of plain error")
	}
}
