package webrtc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pion/sdp/v3"
	pion "github.com/pion/webrtc/v4"

	"rtcstreamer/native/internal/domain"
)

var directions = []string{"sendrecv", "sendonly", "recvonly", "inactive"}

// MediaSection is one m= line of a parsed answer.
type MediaSection struct {
	Kind      string
	Direction string
}

// ParseAnswer decodes a JSON session description ({"type":"answer","sdp":...})
// and checks that the SDP parses. Errors wrap domain.ErrNegotiation.
func ParseAnswer(raw string) (pion.SessionDescription, []MediaSection, error) {
	var desc pion.SessionDescription
	if err := json.Unmarshal([]byte(raw), &desc); err != nil {
		return desc, nil, fmt.Errorf("%w: decode answer: %w", domain.ErrNegotiation, err)
	}
	if desc.Type != pion.SDPTypeAnswer {
		return desc, nil, fmt.Errorf("%w: expected an answer, got %q", domain.ErrNegotiation, desc.Type)
	}

	parsed := sdp.SessionDescription{}
	if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
		return desc, nil, fmt.Errorf("%w: parse answer sdp: %w", domain.ErrNegotiation, err)
	}

	sections := make([]MediaSection, 0, len(parsed.MediaDescriptions))
	for _, md := range parsed.MediaDescriptions {
		sections = append(sections, MediaSection{
			Kind:      md.MediaName.Media,
			Direction: direction(md),
		})
	}
	return desc, sections, nil
}

func direction(md *sdp.MediaDescription) string {
	for _, d := range directions {
		if _, ok := md.Attribute(d); ok {
			return d
		}
	}
	return "sendrecv"
}

// Summary renders sections for logs, e.g. "video:recvonly audio:recvonly".
func Summary(sections []MediaSection) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		parts = append(parts, s.Kind+":"+s.Direction)
	}
	return strings.Join(parts, " ")
}
