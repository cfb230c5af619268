package lkroom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"

	"github.com/knolabs/daela/pkg/errorsx"
	"github.com/knolabs/daela/pkg/logging"
	"github.com/knolabs/daela/pkg/redact"
	"github.com/knolabs/daela/pkg/room"
)

type sipParticipantCreator interface {
	CreateSIPParticipant(ctx context.Context, req *livekit.CreateSIPParticipantRequest) (*livekit.SIPParticipantInfo, error)
}

// SIPDialer brings a phone number into a room through a LiveKit outbound
// SIP trunk.
type SIPDialer struct {
	trunkID string
	client  sipParticipantCreator
	log     *slog.Logger
}

func NewSIPDialer(cfg Config, logger *slog.Logger) *SIPDialer {
	return &SIPDialer{
		trunkID: cfg.SIPTrunkID,
		client:  lksdk.NewSIPClient(cfg.URL, cfg.APIKey, cfg.APISecret),
		log:     logging.NewComponentLogger(logger, "livekit_sip"),
	}
}

func (d *SIPDialer) Dial(ctx context.Context, req room.DialRequest) (string, error) {
	if d.trunkID == "" {
		return "", errors.New("livekit sip: trunk id required")
	}
	if req.PhoneNumber == "" || req.RoomName == "" {
		return "", errors.New("livekit sip: phone number and room required")
	}
	info, err := d.client.CreateSIPParticipant(ctx, &livekit.CreateSIPParticipantRequest{
		SipTrunkId:          d.trunkID,
		SipCallTo:           req.PhoneNumber,
		RoomName:            req.RoomName,
		ParticipantIdentity: req.ParticipantIdentity,
		ParticipantName:     req.ParticipantName,
	})
	if err != nil {
		return "", errorsx.Wrap(fmt.Errorf("create sip participant: %w", err), errorsx.ReasonEscalationDial)
	}
	d.log.Info("sip_participant_created",
		"room", req.RoomName,
		"phone", redact.Phone(req.PhoneNumber),
		"participant_id", info.GetParticipantId(),
	)
	return info.GetParticipantId(), nil
}

var _ room.Dialer = (*SIPDialer)(nil)
