package webrtc

import (
	"errors"
	"fmt"
	"sync"

	pion "github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"rtcstreamer/native/internal/domain"
)

// Factory creates pion peer connections from a shared API.
type Factory struct {
	api *pion.API
	log logrus.FieldLogger
}

func NewFactory(api *pion.API, log logrus.FieldLogger) *Factory {
	return &Factory{api: api, log: log}
}

// NewPeerConnection creates a connection with the given ICE servers. An
// empty list is passed through unchanged.
func (f *Factory) NewPeerConnection(iceServers []domain.ICEServer) (domain.PeerConnection, error) {
	var servers []pion.ICEServer
	for _, s := range iceServers {
		servers = append(servers, pion.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	pc, err := f.api.NewPeerConnection(pion.Configuration{
		ICEServers:   servers,
		BundlePolicy: pion.BundlePolicyMaxBundle,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	return newPeer(pc, f.log), nil
}

// Peer wraps a pion PeerConnection.
type Peer struct {
	pc  *pion.PeerConnection
	log logrus.FieldLogger

	mu          sync.Mutex
	localTracks []domain.LocalTrack

	tracks     hub[domain.RemoteTrack]
	connStates hub[pion.PeerConnectionState]
	candidates hub[pion.ICECandidateInit]
}

func newPeer(pc *pion.PeerConnection, log logrus.FieldLogger) *Peer {
	p := &Peer{pc: pc, log: log}

	pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		codec := track.Codec()
		p.log.Debugf("got track: kind=%s codec=%s pt=%d stream=%s", track.Kind(), codec.MimeType, codec.PayloadType, track.StreamID())
		p.tracks.emit(track)
	})
	pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		p.log.Debugf("ICE connection state: %s", state)
	})
	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		p.log.Debugf("peer connection state: %s", state)
		p.connStates.emit(state)
	})
	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			p.log.Debug("ICE gathering complete")
			return
		}
		p.candidates.emit(c.ToJSON())
	})
	return p
}

func (p *Peer) AddTrack(track domain.LocalTrack, direction pion.RTPTransceiverDirection) error {
	tr, err := p.pc.AddTransceiverFromTrack(track, pion.RTPTransceiverInit{Direction: direction})
	if err != nil {
		return fmt.Errorf("add %s track: %w", track.Kind(), err)
	}

	p.mu.Lock()
	p.localTracks = append(p.localTracks, track)
	p.mu.Unlock()

	// Interceptors only see RTCP that is read.
	sender := tr.Sender()
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (p *Peer) AddRecvTransceiver(kind pion.RTPCodecType) error {
	_, err := p.pc.AddTransceiverFromKind(kind, pion.RTPTransceiverInit{
		Direction: pion.RTPTransceiverDirectionRecvonly,
	})
	if err != nil {
		return fmt.Errorf("add %s transceiver: %w", kind, err)
	}
	return nil
}

func (p *Peer) CreateOffer() (pion.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

func (p *Peer) SetLocalDescription(desc pion.SessionDescription) error {
	return p.pc.SetLocalDescription(desc)
}

func (p *Peer) LocalDescription() *pion.SessionDescription {
	return p.pc.LocalDescription()
}

func (p *Peer) SetRemoteDescription(desc pion.SessionDescription) error {
	return p.pc.SetRemoteDescription(desc)
}

func (p *Peer) RemoteDescription() *pion.SessionDescription {
	return p.pc.RemoteDescription()
}

func (p *Peer) OnTrack(fn func(track domain.RemoteTrack)) domain.Subscription {
	return p.tracks.subscribe(fn)
}

func (p *Peer) OnConnectionStateChange(fn func(state pion.PeerConnectionState)) domain.Subscription {
	return p.connStates.subscribe(fn)
}

func (p *Peer) OnICECandidate(fn func(candidate pion.ICECandidateInit)) domain.Subscription {
	return p.candidates.subscribe(fn)
}

func (p *Peer) StopTransceivers() error {
	var errs []error
	for _, t := range p.pc.GetTransceivers() {
		if err := t.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s transceiver: %w", t.Kind(), err))
		}
	}
	return errors.Join(errs...)
}

func (p *Peer) StopSenderTracks() error {
	p.mu.Lock()
	tracks := p.localTracks
	p.localTracks = nil
	p.mu.Unlock()

	var errs []error
	for _, t := range tracks {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s track: %w", t.Kind(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes the connection and drops every remaining listener.
func (p *Peer) Close() error {
	err := p.pc.Close()
	p.tracks.clear()
	p.connStates.clear()
	p.candidates.clear()
	return err
}
