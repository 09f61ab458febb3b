package state

import pion "github.com/pion/webrtc/v4"

// Reduce returns the state after applying a. It is total: actions that make
// no sense in the current phase are applied structurally anyway, and keeping
// them from happening is the caller's job.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case SignallingStart:
		s.Phase = PhaseSignalling
		s.Stream = nil
		s.Err = nil
		s.SignallingTimedOut = false
	case SignallingTimeout:
		s.SignallingTimedOut = true
	case SetStream:
		s.Stream = a.Stream
	case SetOffer:
		s.LocalOffer = a.Offer
	case AddICECandidate:
		next := make(map[string]pion.ICECandidateInit, len(s.ICECandidates)+1)
		for id, c := range s.ICECandidates {
			next[id] = c
		}
		next[a.ID] = a.Candidate
		s.ICECandidates = next
	case Stopping:
		s.Phase = PhaseStopping
		s = clearSignalling(s)
	case Stopped:
		s.Phase = PhaseStopped
		s = clearSignalling(s)
		s.Stream = nil
		if a.Err != nil {
			s.Err = a.Err
		}
	case StartPlaying:
		s.Phase = PhasePlaying
		s = clearSignalling(s)
	case SetOfferError:
		s = fail(s, a.Err)
	case ProcessAnswerError:
		s = fail(s, a.Err)
	case Error:
		s = fail(s, a.Err)
	}
	return s
}

func clearSignalling(s State) State {
	s.LocalOffer = nil
	s.ICECandidates = nil
	return s
}

// fail resets to STOPPED without retrying.
func fail(s State, err error) State {
	s.Phase = PhaseStopped
	s = clearSignalling(s)
	s.Err = err
	return s
}
