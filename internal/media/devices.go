// Package media acquires local capture streams through pion/mediadevices.
package media

import (
	"context"
	"fmt"

	"github.com/pion/mediadevices"
	pion "github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"rtcstreamer/native/internal/constraint"
	"rtcstreamer/native/internal/domain"
)

// Devices implements domain.MediaDevices.
type Devices struct {
	selector *mediadevices.CodecSelector
	log      logrus.FieldLogger

	enumerate    func() []mediadevices.MediaDeviceInfo
	getUserMedia func(mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error)
}

// New returns a capture adapter. A nil selector means no encoder is
// available and every capture request fails with domain.ErrMediaUnavailable.
func New(selector *mediadevices.CodecSelector, log logrus.FieldLogger) *Devices {
	return &Devices{
		selector:     selector,
		log:          log,
		enumerate:    mediadevices.EnumerateDevices,
		getUserMedia: mediadevices.GetUserMedia,
	}
}

// CodecRegistrar returns a function adding the selector's encoders to a pion
// media engine, or nil when there is no selector.
func (d *Devices) CodecRegistrar() func(m *pion.MediaEngine) error {
	if d.selector == nil {
		return nil
	}
	return func(m *pion.MediaEngine) error {
		d.selector.Populate(m)
		return nil
	}
}

type localTrack struct {
	mediadevices.Track
	deviceID string
}

func (t localTrack) DeviceID() string { return t.deviceID }

type localStream struct {
	tracks []domain.LocalTrack
}

func (s localStream) Tracks() []domain.LocalTrack { return s.tracks }

type result struct {
	stream mediadevices.MediaStream
	err    error
}

// GetUserMedia opens the requested devices. Unpinned kinds resolve to the
// first enumerated device of that kind so the reported id is always concrete.
func (d *Devices) GetUserMedia(ctx context.Context, c constraint.MediaStreamConstraints) (domain.LocalStream, error) {
	if d.selector == nil {
		return nil, fmt.Errorf("%w: no encoders registered in this build", domain.ErrMediaUnavailable)
	}

	devices := d.enumerate()
	req := mediadevices.MediaStreamConstraints{Codec: d.selector}

	var videoID, audioID string
	if c.Video.Requested() {
		id, err := resolve(devices, mediadevices.VideoInput, c.Video.DeviceID())
		if err != nil {
			return nil, err
		}
		videoID = id
		req.Video = trackOption(c.Video.Object, id, d.log)
	}
	if c.Audio.Requested() {
		id, err := resolve(devices, mediadevices.AudioInput, c.Audio.DeviceID())
		if err != nil {
			return nil, err
		}
		audioID = id
		req.Audio = trackOption(c.Audio.Object, id, d.log)
	}
	d.log.Debugf("opening devices video=%q audio=%q", videoID, audioID)

	done := make(chan result, 1)
	go func() {
		s, err := d.getUserMedia(req)
		done <- result{stream: s, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		go func() {
			if late := <-done; late.err == nil {
				closeAll(late.stream)
			}
		}()
		return nil, fmt.Errorf("%w: %w", domain.ErrCapture, ctx.Err())
	}
	if res.err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCapture, res.err)
	}

	var out localStream
	for _, t := range res.stream.GetVideoTracks() {
		out.tracks = append(out.tracks, localTrack{Track: t, deviceID: videoID})
	}
	for _, t := range res.stream.GetAudioTracks() {
		out.tracks = append(out.tracks, localTrack{Track: t, deviceID: audioID})
	}
	return out, nil
}

func resolve(devices []mediadevices.MediaDeviceInfo, kind mediadevices.MediaDeviceType, want string) (string, error) {
	for _, dev := range devices {
		if dev.Kind != kind {
			continue
		}
		if want == "" || dev.DeviceID == want {
			return dev.DeviceID, nil
		}
	}
	if want != "" {
		return "", fmt.Errorf("%w: device %q not found", domain.ErrCapture, want)
	}
	return "", fmt.Errorf("%w: no %s device", domain.ErrCapture, kindName(kind))
}

func kindName(kind mediadevices.MediaDeviceType) string {
	switch kind {
	case mediadevices.VideoInput:
		return "video input"
	case mediadevices.AudioInput:
		return "audio input"
	default:
		return "media"
	}
}

func closeAll(s mediadevices.MediaStream) {
	for _, t := range s.GetTracks() {
		_ = t.Close()
	}
}
