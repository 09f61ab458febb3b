package domain

import (
	"encoding/json"

	pion "github.com/pion/webrtc/v4"
)

// ICEServer holds STUN/TURN server configuration.
type ICEServer struct {
	URLs       []string `json:"urls" mapstructure:"urls"`
	Username   string   `json:"username,omitempty" mapstructure:"username"`
	Credential string   `json:"credential,omitempty" mapstructure:"credential"`
}

// DeviceIDs names a video and an audio capture device. Empty means unspecified.
type DeviceIDs struct {
	Video string `json:"video,omitempty"`
	Audio string `json:"audio,omitempty"`
}

func (d DeviceIDs) Empty() bool {
	return d.Video == "" && d.Audio == ""
}

// Offer is a local session description as published to the host.
// The host channel cannot unset a field, so a nil offer encodes as "".
type Offer struct {
	Desc *pion.SessionDescription
}

func (o Offer) MarshalJSON() ([]byte, error) {
	if o.Desc == nil {
		return []byte(`""`), nil
	}
	return json.Marshal(o.Desc)
}

func (o *Offer) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		o.Desc = nil
		return nil
	}
	var desc pion.SessionDescription
	if err := json.Unmarshal(data, &desc); err != nil {
		return err
	}
	o.Desc = &desc
	return nil
}

// ComponentValue is the payload published to the host on every meaningful state change.
type ComponentValue struct {
	Playing       bool                              `json:"playing"`
	SDPOffer      Offer                             `json:"sdpOffer"`
	ICECandidates map[string]pion.ICECandidateInit `json:"iceCandidates"`
}

// RenderArgs is the inbound configuration pushed by the host.
type RenderArgs struct {
	// DesiredPlayingState is nil when the host expresses no preference.
	DesiredPlayingState *bool  `json:"desiredPlayingState,omitempty"`
	SDPAnswerJSON       string `json:"sdpAnswerJson,omitempty"`
}
