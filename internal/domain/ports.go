package domain

import (
	"context"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	pion "github.com/pion/webrtc/v4"

	"rtcstreamer/native/internal/constraint"
)

// Subscription is a registered listener. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// RemoteTrack is the read side of a received track. *webrtc.TrackRemote satisfies it.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() pion.RTPCodecType
	Codec() pion.RTPCodecParameters
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// LocalTrack is a captured track that can be attached to a peer connection.
type LocalTrack interface {
	pion.TrackLocal
	// DeviceID is the concrete device the track was opened on.
	DeviceID() string
	Close() error
}

// LocalStream is the result of one capture request.
type LocalStream interface {
	Tracks() []LocalTrack
}

// MediaDevices acquires capture streams. GetUserMedia may block until the
// user or the platform grants access; ctx bounds that wait.
type MediaDevices interface {
	GetUserMedia(ctx context.Context, c constraint.MediaStreamConstraints) (LocalStream, error)
}

// PeerConnection is the native connection owned by a single attempt.
type PeerConnection interface {
	// AddTrack attaches a local track on a new transceiver with the given direction.
	AddTrack(track LocalTrack, direction pion.RTPTransceiverDirection) error
	// AddRecvTransceiver adds a receive-only transceiver of the given kind.
	AddRecvTransceiver(kind pion.RTPCodecType) error

	CreateOffer() (pion.SessionDescription, error)
	SetLocalDescription(desc pion.SessionDescription) error
	LocalDescription() *pion.SessionDescription
	SetRemoteDescription(desc pion.SessionDescription) error
	RemoteDescription() *pion.SessionDescription

	OnTrack(fn func(track RemoteTrack)) Subscription
	OnConnectionStateChange(fn func(state pion.PeerConnectionState)) Subscription
	// OnICECandidate is called once per gathered candidate. The end-of-gathering
	// signal is not forwarded.
	OnICECandidate(fn func(candidate pion.ICECandidateInit)) Subscription

	StopTransceivers() error
	// StopSenderTracks closes every local track attached through AddTrack.
	StopSenderTracks() error
	Close() error
}

// PeerFactory builds a fresh connection for every attempt.
type PeerFactory interface {
	NewPeerConnection(iceServers []ICEServer) (PeerConnection, error)
}

// Publisher receives the outbound component value. Publishing is fire-and-forget.
type Publisher interface {
	Publish(value ComponentValue)
}

// DevicesOpenedFunc reports the concrete devices granted by a capture request.
type DevicesOpenedFunc func(opened DeviceIDs)

// Handler receives messages pushed by the host.
type Handler interface {
	OnRender(args RenderArgs)
}
