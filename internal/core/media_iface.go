package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// MediaConnection is the offering side of a WHIP/WHEP exchange.
type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close should stop all underlying media resources.
	Close()
	// AddLocalTrack attaches a local track for publishing.
	AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	// AddReceiver adds a recvonly transceiver of the given kind.
	AddReceiver(kind webrtc.RTPCodecType) error
	// CreateAndSetOffer returns the local offer once ICE gathering is complete.
	CreateAndSetOffer() (*webrtc.SessionDescription, error)
	ApplyAnswer(webrtc.SessionDescription) error
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	// OnClosed sets a callback run once when the connection goes away,
	// whether closed locally or dropped by the remote side.
	OnClosed(func())
}
