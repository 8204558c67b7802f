package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := New(Conflict, "pending escalation already exists for patient %s", "P100")
	if KindOf(err) != Conflict {
		t.Errorf("expected Conflict, got %v", KindOf(err))
	}
	if !IsKind(err, Conflict) {
		t.Error("expected IsKind to match")
	}
}

func TestKindOf_Wrapped(t *testing.T) {
	inner := New(InvalidState, "escalation already processed")
	outer := fmt.Errorf("decide: %w", inner)
	if KindOf(outer) != InvalidState {
		t.Errorf("expected InvalidState through wrapping, got %v", KindOf(outer))
	}
}

func TestKindOf_Plain(t *testing.T) {
	if KindOf(errors.New("boom")) != Internal {
		t.Error("plain errors should classify as Internal")
	}
}

func TestWrap_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(Dependency, cause, "risk store update failed")
	if !errors.Is(err, cause) {
		t.Error("expected wrapped cause to be reachable via errors.Is")
	}
	if err.Error() != "risk store update failed: connection refused" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{Validation, http.StatusBadRequest},
		{Forbidden, http.StatusForbidden},
		{NotFound, http.StatusNotFound},
		{Conflict, http.StatusConflict},
		{InvalidState, http.StatusConflict},
		{Dependency, http.StatusServiceUnavailable},
		{Internal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(New(tc.kind, "x")); got != tc.want {
			t.Errorf("kind %v: expected %d, got %d", tc.kind, tc.want, got)
		}
	}
	if HTTPStatus(errors.New("plain")) != http.StatusInternalServerError {
		t.Error("plain error should map to 500")
	}
}
