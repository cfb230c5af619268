package errorsx

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonCRMRequest)
	if Reason(err) != ReasonCRMRequest {
		t.Fatalf("expected reason %s, got %s", ReasonCRMRequest, Reason(err))
	}
	if !HasReason(err, ReasonCRMRequest) {
		t.Fatalf("expected HasReason true")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonCRMStatus)
	second := Wrap(first, ReasonEscalationDial)
	if Reason(second) != ReasonCRMStatus {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
}

func TestReasonSurvivesFmtWrap(t *testing.T) {
	err := fmt.Errorf("dial human agent: %w", Wrap(assertErr{}, ReasonEscalationDial))
	if !HasReason(err, ReasonEscalationDial) {
		t.Fatalf("expected reason through fmt wrap, got %s", Reason(err))
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, ReasonCRMRequest) != nil {
		t.Fatalf("expected nil")
	}
	if Reason(nil) != ReasonUnknown {
		t.Fatalf("expected unknown reason for nil")
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestWrapfPrefixesAndKeepsCause(t *testing.T) {
	err := Wrapf(assertErr{}, ReasonRoomConnect, "join room %s", "room-1")
	if err.Error() != "join room room-1: boom" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !HasReason(err, ReasonRoomConnect) {
		t.Fatalf("expected room_connect, got %s", Reason(err))
	}
	if !errors.As(err, new(assertErr)) {
		t.Fatalf("expected cause in chain")
	}
	inner := Wrapf(New(ReasonCRMStatus, "status 500"), ReasonCRMRequest, "lookup")
	if Reason(inner) != ReasonCRMStatus {
		t.Fatalf("expected inner reason to win, got %s", Reason(inner))
	}
	if Wrapf(nil, ReasonCRMRequest, "x") != nil {
		t.Fatalf("expected nil")
	}
}
