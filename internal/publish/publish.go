// Package publish forwards the parts of the connection state the host cares
// about, and only when they change.
package publish

import (
	pion "github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"rtcstreamer/native/internal/domain"
	"rtcstreamer/native/internal/state"
)

// Publisher diffs consecutive states on the playing flag, offer identity
// and candidate count.
type Publisher struct {
	sink domain.Publisher
	log  logrus.FieldLogger
}

func New(sink domain.Publisher, log logrus.FieldLogger) *Publisher {
	return &Publisher{sink: sink, log: log}
}

// Observe is a state.Observer.
func (p *Publisher) Observe(prev, next state.State, _ state.Action) {
	if !Changed(prev, next) {
		return
	}
	v := Value(next)
	p.log.WithFields(logrus.Fields{
		"playing":    v.Playing,
		"offer":      v.SDPOffer.Desc != nil,
		"candidates": len(v.ICECandidates),
	}).Debug("publish component value")
	p.sink.Publish(v)
}

// Changed reports whether prev and next differ on any published axis.
func Changed(prev, next state.State) bool {
	return prev.Playing() != next.Playing() ||
		prev.LocalOffer != next.LocalOffer ||
		len(prev.ICECandidates) != len(next.ICECandidates)
}

// Value renders s as the host payload.
func Value(s state.State) domain.ComponentValue {
	candidates := make(map[string]pion.ICECandidateInit, len(s.ICECandidates))
	for id, c := range s.ICECandidates {
		candidates[id] = c
	}
	return domain.ComponentValue{
		Playing:       s.Playing(),
		SDPOffer:      domain.Offer{Desc: s.LocalOffer},
		ICECandidates: candidates,
	}
}

// Initial is what the host sees before the first transition.
func Initial() domain.ComponentValue {
	return Value(state.Initial())
}
