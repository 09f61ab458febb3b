// Package state holds the signaling state machine: a pure transition
// function over State and a Store that serializes dispatch.
package state

import (
	pion "github.com/pion/webrtc/v4"

	"rtcstreamer/native/internal/domain"
)

// Phase is the lifecycle position of the connection.
type Phase string

const (
	PhaseStopped    Phase = "STOPPED"
	PhaseSignalling Phase = "SIGNALLING"
	PhasePlaying    Phase = "PLAYING"
	PhaseStopping   Phase = "STOPPING"
)

// State is treated as immutable: Reduce always returns a new value and
// never writes through the maps or pointers of its input.
type State struct {
	Phase Phase
	// LocalOffer is compared by identity to detect a new offer.
	LocalOffer *pion.SessionDescription
	// ICECandidates maps generated ids to locally gathered candidates.
	ICECandidates map[string]pion.ICECandidateInit
	Stream        *domain.RemoteStream
	Err           error
	// SignallingTimedOut is a display hint only; it never changes Phase.
	SignallingTimedOut bool
}

// Initial is the state before any attempt.
func Initial() State {
	return State{Phase: PhaseStopped}
}

// Playing reports whether the connection is established.
func (s State) Playing() bool {
	return s.Phase == PhasePlaying
}
