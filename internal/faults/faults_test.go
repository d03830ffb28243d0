package faults

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesByKind(t *testing.T) {
	err := WithDetail(IdentityFailed, "face not recognized", ReasonMultipleFaces)
	if !errors.Is(err, &Error{Kind: IdentityFailed}) {
		t.Error("expected kind match")
	}
	if errors.Is(err, &Error{Kind: SessionExpired}) {
		t.Error("unexpected match against different kind")
	}
}

func TestKindOfWrappedChain(t *testing.T) {
	inner := Wrap(SessionExpired, "token past expiry", errors.New("row expired"))
	outer := fmt.Errorf("authenticate: %w", inner)
	if got := KindOf(outer); got != SessionExpired {
		t.Errorf("KindOf = %s, want %s", got, SessionExpired)
	}
	if got := KindOf(errors.New("plain")); got != StoreError {
		t.Errorf("KindOf(plain) = %s, want %s", got, StoreError)
	}
}

func TestStoreClassifiesTimeout(t *testing.T) {
	err := Store(context.DeadlineExceeded)
	if err.Kind != UpstreamTimeout {
		t.Errorf("kind = %s, want %s", err.Kind, UpstreamTimeout)
	}
	if !Retryable(err) {
		t.Error("timeouts must be retryable")
	}
	if Retryable(New(Forbidden, "no")) {
		t.Error("forbidden must not be retryable")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{SessionExpired, http.StatusUnauthorized},
		{Forbidden, http.StatusForbidden},
		{AlreadyCheckedOut, http.StatusConflict},
		{NotEnrolled, http.StatusBadRequest},
		{OutsideWindow, http.StatusUnprocessableEntity},
		{UpstreamTimeout, http.StatusGatewayTimeout},
		{StoreError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.kind); got != tc.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tc.kind, got, tc.want)
		}
	}
}
