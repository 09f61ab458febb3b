package state

import (
	pion "github.com/pion/webrtc/v4"

	"rtcstreamer/native/internal/domain"
)

// Action is one of the concrete action types below.
type Action interface {
	Type() string
	action()
}

type (
	SignallingStart   struct{}
	SignallingTimeout struct{}
	SetStream         struct{ Stream *domain.RemoteStream }
	SetOffer          struct{ Offer *pion.SessionDescription }
	AddICECandidate   struct {
		ID        string
		Candidate pion.ICECandidateInit
	}
	Stopping     struct{}
	StartPlaying struct{}
	// Stopped ends a teardown. A non-nil Err is recorded; a nil Err keeps
	// whatever error was recorded before the teardown started.
	Stopped            struct{ Err error }
	SetOfferError      struct{ Err error }
	ProcessAnswerError struct{ Err error }
	Error              struct{ Err error }
)

func (SignallingStart) Type() string    { return "SIGNALLING_START" }
func (SignallingTimeout) Type() string  { return "SIGNALLING_TIMEOUT" }
func (SetStream) Type() string          { return "SET_STREAM" }
func (SetOffer) Type() string           { return "SET_OFFER" }
func (AddICECandidate) Type() string    { return "ADD_ICE_CANDIDATE" }
func (Stopping) Type() string           { return "STOPPING" }
func (StartPlaying) Type() string       { return "START_PLAYING" }
func (Stopped) Type() string            { return "STOPPED" }
func (SetOfferError) Type() string      { return "SET_OFFER_ERROR" }
func (ProcessAnswerError) Type() string { return "PROCESS_ANSWER_ERROR" }
func (Error) Type() string              { return "ERROR" }

func (SignallingStart) action()    {}
func (SignallingTimeout) action()  {}
func (SetStream) action()          {}
func (SetOffer) action()           {}
func (AddICECandidate) action()    {}
func (Stopping) action()           {}
func (StartPlaying) action()       {}
func (Stopped) action()            {}
func (SetOfferError) action()      {}
func (ProcessAnswerError) action() {}
func (Error) action()              {}
