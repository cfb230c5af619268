package twilio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	verify "github.com/twilio/twilio-go/rest/verify/v2"
)

type safelistCreator interface {
	CreateSafelist(params *verify.CreateSafelistParams) (*verify.VerifyV2Safelist, error)
}

// Safelister adds numbers to the Verify safe list so fraud guard never
// blocks calls to them.
type Safelister struct {
	cfg    Config
	client safelistCreator
}

func NewSafelister(cfg Config) *Safelister {
	return &Safelister{cfg: cfg}
}

// Add safelists phone and returns the resource SID.
func (s *Safelister) Add(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if !strings.HasPrefix(phone, "+") || len(phone) < 8 {
		return "", fmt.Errorf("phone number must be in E.164 form, got %q", phone)
	}
	client := s.client
	if client == nil {
		if s.cfg.AccountSID == "" || s.cfg.AuthToken == "" {
			return "", errors.New("missing twilio credentials")
		}
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: s.cfg.AccountSID,
			Password: s.cfg.AuthToken,
		})
		client = rest.VerifyV2
	}
	params := &verify.CreateSafelistParams{}
	params.SetPhoneNumber(phone)
	resp, err := client.CreateSafelist(params)
	if err != nil {
		return "", fmt.Errorf("twilio create safelist: %w", err)
	}
	if resp == nil || resp.Sid == nil {
		return "", errors.New("missing safelist sid")
	}
	return *resp.Sid, nil
}
