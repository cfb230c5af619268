package twilio

import (
	"errors"
	"testing"

	verify "github.com/twilio/twilio-go/rest/verify/v2"
)

type stubSafelist struct {
	phone string
	err   error
}

func (s *stubSafelist) CreateSafelist(params *verify.CreateSafelistParams) (*verify.VerifyV2Safelist, error) {
	if params.PhoneNumber != nil {
		s.phone = *params.PhoneNumber
	}
	if s.err != nil {
		return nil, s.err
	}
	sid := "GN123"
	return &verify.VerifyV2Safelist{Sid: &sid}, nil
}

func TestSafelistAdd(t *testing.T) {
	stub := &stubSafelist{}
	s := NewSafelister(Config{})
	s.client = stub
	sid, err := s.Add(" +447700900123 ")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if sid != "GN123" || stub.phone != "+447700900123" {
		t.Fatalf("unexpected sid %q phone %q", sid, stub.phone)
	}
}

func TestSafelistRejectsBadInput(t *testing.T) {
	s := NewSafelister(Config{})
	s.client = &stubSafelist{}
	if _, err := s.Add("07700900123"); err == nil {
		t.Fatalf("expected E.164 validation error")
	}
	if _, err := NewSafelister(Config{}).Add("+447700900123"); err == nil {
		t.Fatalf("expected missing credentials error")
	}
	s.client = &stubSafelist{err: errors.New("20404")}
	if _, err := s.Add("+447700900123"); err == nil {
		t.Fatalf("expected api error")
	}
}
