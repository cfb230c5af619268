// Package twilio escalates to a human agent over the PSTN: it calls the
// agent's phone through Twilio and bridges the answered call into the
// room's LiveKit SIP endpoint.
package twilio

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/knolabs/daela/pkg/errorsx"
	"github.com/knolabs/daela/pkg/logging"
	"github.com/knolabs/daela/pkg/redact"
	"github.com/knolabs/daela/pkg/room"
)

type Config struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	// CallerID is the Twilio number the agent sees.
	CallerID string `mapstructure:"caller_id"`
	// SIPDomain is the LiveKit SIP host rooms are reachable on.
	SIPDomain string `mapstructure:"sip_domain"`
	Transport string `mapstructure:"sip_transport"`
}

func (c Config) withDefaults() Config {
	if c.Transport == "" {
		c.Transport = "tcp"
	}
	c.SIPDomain = strings.TrimPrefix(strings.TrimSpace(c.SIPDomain), "sip:")
	return c
}

type callCreator interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
}

// Dialer places the human agent's call leg via the Twilio REST API.
type Dialer struct {
	cfg    Config
	client callCreator
	log    *slog.Logger
}

func NewDialer(cfg Config, logger *slog.Logger) *Dialer {
	return &Dialer{cfg: cfg.withDefaults(), log: logging.NewComponentLogger(logger, "twilio_handoff")}
}

// Dial calls req.PhoneNumber and, once answered, dials the room over SIP.
// The Twilio client takes no context, so ctx is only checked before the
// call is placed.
func (d *Dialer) Dial(ctx context.Context, req room.DialRequest) (string, error) {
	if req.PhoneNumber == "" || req.RoomName == "" {
		return "", errors.New("phone number and room required")
	}
	if d.cfg.AccountSID == "" || d.cfg.AuthToken == "" {
		return "", errors.New("missing twilio credentials")
	}
	if d.cfg.CallerID == "" || d.cfg.SIPDomain == "" {
		return "", errors.New("caller id and sip domain required")
	}
	twiml, err := d.bridgeTwiML(req)
	if err != nil {
		return "", err
	}
	client := d.client
	if client == nil {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: d.cfg.AccountSID,
			Password: d.cfg.AuthToken,
		})
		client = rest.Api
	}
	if err := ctx.Err(); err != nil {
		return "", errorsx.Wrapf(err, errorsx.ReasonEscalationDial, "twilio create call")
	}
	params := &api.CreateCallParams{}
	params.SetTo(req.PhoneNumber)
	params.SetFrom(d.cfg.CallerID)
	params.SetTwiml(twiml)
	resp, err := client.CreateCall(params)
	if err != nil {
		return "", errorsx.Wrapf(err, errorsx.ReasonEscalationDial, "twilio create call")
	}
	if resp == nil || resp.Sid == nil {
		return "", fmt.Errorf("missing call sid")
	}
	d.log.Info("handoff_call_created", "room", req.RoomName, "phone", redact.Phone(req.PhoneNumber), "call_sid", *resp.Sid)
	return *resp.Sid, nil
}

// sipURI addresses the room on the LiveKit SIP service. The participant
// identity travels as a custom header so the room sees the agent under
// the identity the session expects.
func (d *Dialer) sipURI(req room.DialRequest) string {
	uri := fmt.Sprintf("sip:%s@%s;transport=%s", req.RoomName, d.cfg.SIPDomain, d.cfg.Transport)
	if req.ParticipantIdentity != "" {
		uri += "?X-LK-Identity=" + req.ParticipantIdentity
	}
	return uri
}

func (d *Dialer) bridgeTwiML(req room.DialRequest) (string, error) {
	var buf bytes.Buffer
	buf.WriteString("<Response><Dial><Sip>")
	if err := xml.EscapeText(&buf, []byte(d.sipURI(req))); err != nil {
		return "", err
	}
	buf.WriteString("</Sip></Dial></Response>")
	return buf.String(), nil
}

var _ room.Dialer = (*Dialer)(nil)
