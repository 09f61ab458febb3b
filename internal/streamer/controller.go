// Package streamer owns the live peer connection and drives it through the
// signaling state machine.
package streamer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"rtcstreamer/native/internal/constraint"
	"rtcstreamer/native/internal/domain"
	"rtcstreamer/native/internal/state"
	"rtcstreamer/native/internal/uniqueid"
	"rtcstreamer/native/internal/webrtc"
)

// ErrAborted is returned by Start when Stop detached the attempt before it
// finished.
var ErrAborted = errors.New("start aborted by stop")

const (
	DefaultTeardownDelay     = 500 * time.Millisecond
	DefaultSignallingTimeout = 3 * time.Second
)

// Config is the inbound configuration of a Controller.
type Config struct {
	Mode        domain.Mode
	ICEServers  []domain.ICEServer
	Constraints *constraint.MediaStreamConstraints
	// VideoDeviceID and AudioDeviceID are the initially requested devices.
	// Devices reported by a successful capture take their place afterwards.
	VideoDeviceID string
	AudioDeviceID string

	TeardownDelay time.Duration
	// SignallingTimeout arms the slow-signalling hint. Zero disables it.
	SignallingTimeout time.Duration

	OnDevicesOpened domain.DevicesOpenedFunc
	// OnRemoteTrack receives every remote track of the current attempt.
	OnRemoteTrack func(track domain.RemoteTrack)
}

// attempt is everything owned by one STOPPED→SIGNALLING→...→STOPPED cycle.
type attempt struct {
	pc     domain.PeerConnection
	subs   []domain.Subscription
	stream *domain.RemoteStream
	timer  *time.Timer
}

func (a *attempt) release() {
	if a.timer != nil {
		a.timer.Stop()
	}
	for _, s := range a.subs {
		s.Unsubscribe()
	}
	a.subs = nil
}

// Controller is the connection orchestrator. Start, Stop and ProcessAnswer
// may be called from any goroutine.
type Controller struct {
	cfg     Config
	store   *state.Store
	peers   domain.PeerFactory
	devices domain.MediaDevices
	ids     *uniqueid.Generator
	log     logrus.FieldLogger

	mu       sync.Mutex
	current  *attempt
	opened   domain.DeviceIDs
	answered string
}

func NewController(cfg Config, store *state.Store, peers domain.PeerFactory, devices domain.MediaDevices, ids *uniqueid.Generator, log logrus.FieldLogger) *Controller {
	if !cfg.Mode.Valid() {
		cfg.Mode = domain.ModeSendRecv
	}
	return &Controller{
		cfg:     cfg,
		store:   store,
		peers:   peers,
		devices: devices,
		ids:     ids,
		log:     log,
		opened: domain.DeviceIDs{
			Video: cfg.VideoDeviceID,
			Audio: cfg.AudioDeviceID,
		},
	}
}

// State returns the current connection state.
func (c *Controller) State() state.State {
	return c.store.State()
}

// OpenedDevices returns the device ids requested by the next capture.
func (c *Controller) OpenedDevices() domain.DeviceIDs {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened
}

func (c *Controller) isCurrent(a *attempt) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current == a
}

// own registers sub with a, or drops it when a is no longer current.
func (c *Controller) own(a *attempt, sub domain.Subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != a {
		sub.Unsubscribe()
		return false
	}
	a.subs = append(a.subs, sub)
	return true
}

func isPhase(p state.Phase) func(state.State) bool {
	return func(s state.State) bool { return s.Phase == p }
}

// dispatchFor applies act when a is the current attempt and cond holds.
func (c *Controller) dispatchFor(a *attempt, cond func(state.State) bool, act state.Action) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != a {
		return false
	}
	_, ok := c.store.DispatchIf(cond, act)
	return ok
}

// Start begins a new attempt. It is a no-op unless the phase is STOPPED. It
// returns once the local offer is set or the attempt failed; ctx only bounds
// capture.
func (c *Controller) Start(ctx context.Context) error {
	a := &attempt{}
	c.mu.Lock()
	if _, ok := c.store.DispatchIf(isPhase(state.PhaseStopped), state.SignallingStart{}); !ok {
		c.mu.Unlock()
		c.log.Debug("start ignored: not stopped")
		return nil
	}
	c.current = a
	c.ids.Reset()
	if c.cfg.SignallingTimeout > 0 {
		a.timer = time.AfterFunc(c.cfg.SignallingTimeout, func() {
			c.dispatchFor(a, isPhase(state.PhaseSignalling), state.SignallingTimeout{})
		})
	}
	c.mu.Unlock()

	err := c.negotiate(ctx, a)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAborted):
		c.log.Debug("start superseded by stop")
		return err
	}

	c.log.WithError(err).Warn("start failed")
	act := state.Action(state.Error{Err: err})
	if errors.Is(err, domain.ErrNegotiation) {
		act = state.SetOfferError{Err: err}
	}

	c.mu.Lock()
	failed := c.current == a
	if failed {
		c.store.Dispatch(act)
		c.current = nil
		a.release()
	}
	c.mu.Unlock()
	if failed {
		c.closeAsync(a)
	}
	return err
}

func (c *Controller) negotiate(ctx context.Context, a *attempt) error {
	pc, err := c.peers.NewPeerConnection(c.cfg.ICEServers)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrMediaUnavailable, err)
	}
	c.mu.Lock()
	if c.current != a {
		c.mu.Unlock()
		_ = pc.Close()
		return ErrAborted
	}
	a.pc = pc
	c.mu.Unlock()

	mode := c.cfg.Mode
	if mode.Receivable() {
		c.own(a, pc.OnTrack(func(track domain.RemoteTrack) {
			c.onTrack(a, track)
		}))
	}

	if mode.Transmittable() {
		if err := c.capture(ctx, a, pc); err != nil {
			return err
		}
	} else {
		for _, kind := range []pion.RTPCodecType{pion.RTPCodecTypeVideo, pion.RTPCodecTypeAudio} {
			if err := pc.AddRecvTransceiver(kind); err != nil {
				return fmt.Errorf("%w: %w", domain.ErrNegotiation, err)
			}
		}
	}

	c.own(a, pc.OnConnectionStateChange(func(s pion.PeerConnectionState) {
		c.onConnectionState(a, s)
	}))
	c.own(a, pc.OnICECandidate(func(candidate pion.ICECandidateInit) {
		c.onICECandidate(a, candidate)
	}))

	offer, err := pc.CreateOffer()
	if err != nil {
		return fmt.Errorf("%w: create offer: %w", domain.ErrNegotiation, err)
	}
	if !c.isCurrent(a) {
		return ErrAborted
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("%w: set local description: %w", domain.ErrNegotiation, err)
	}
	local := pc.LocalDescription()
	if local == nil {
		return fmt.Errorf("%w: failed to create an offer SDP", domain.ErrNegotiation)
	}
	if !c.dispatchFor(a, isPhase(state.PhaseSignalling), state.SetOffer{Offer: local}) {
		return ErrAborted
	}
	return nil
}

func (c *Controller) capture(ctx context.Context, a *attempt, pc domain.PeerConnection) error {
	requested := c.OpenedDevices()
	compiled := constraint.Compile(c.cfg.Constraints, requested.Video, requested.Audio)
	if !compiled.Video.Requested() && !compiled.Audio.Requested() {
		c.log.Debug("no media requested, skipping capture")
		return nil
	}
	stream, err := c.devices.GetUserMedia(ctx, compiled)
	if err != nil {
		return err
	}
	tracks := stream.Tracks()
	if !c.isCurrent(a) {
		closeTracks(tracks)
		return ErrAborted
	}

	direction := pion.RTPTransceiverDirectionSendrecv
	if c.cfg.Mode == domain.ModeSendOnly {
		direction = pion.RTPTransceiverDirectionSendonly
	}

	var opened domain.DeviceIDs
	for i, t := range tracks {
		if err := pc.AddTrack(t, direction); err != nil {
			closeTracks(tracks[i:])
			return fmt.Errorf("%w: %w", domain.ErrCapture, err)
		}
		switch t.Kind() {
		case pion.RTPCodecTypeVideo:
			opened.Video = t.DeviceID()
		case pion.RTPCodecTypeAudio:
			opened.Audio = t.DeviceID()
		}
	}
	if opened.Empty() {
		return nil
	}

	c.mu.Lock()
	if opened.Video != "" {
		c.opened.Video = opened.Video
	}
	if opened.Audio != "" {
		c.opened.Audio = opened.Audio
	}
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"video": opened.Video, "audio": opened.Audio}).Info("devices opened")
	if c.cfg.OnDevicesOpened != nil {
		c.cfg.OnDevicesOpened(opened)
	}
	return nil
}

func closeTracks(tracks []domain.LocalTrack) {
	for _, t := range tracks {
		_ = t.Close()
	}
}

func (c *Controller) onTrack(a *attempt, track domain.RemoteTrack) {
	c.mu.Lock()
	if c.current != a {
		c.mu.Unlock()
		return
	}
	if a.stream == nil {
		a.stream = domain.NewRemoteStream(track.StreamID())
		c.store.Dispatch(state.SetStream{Stream: a.stream})
	}
	a.stream.AddTrack(track)
	c.mu.Unlock()

	if c.cfg.OnRemoteTrack != nil {
		c.cfg.OnRemoteTrack(track)
	}
}

func (c *Controller) onConnectionState(a *attempt, s pion.PeerConnectionState) {
	if !c.isCurrent(a) {
		return
	}
	switch s {
	case pion.PeerConnectionStateConnected:
		c.stopTimer(a)
		c.dispatchFor(a, isPhase(state.PhaseSignalling), state.StartPlaying{})
	case pion.PeerConnectionStateDisconnected,
		pion.PeerConnectionStateFailed,
		pion.PeerConnectionStateClosed:
		c.log.WithField("state", s).Warn("connection lost, stopping")
		go c.stopAttempt(a, fmt.Errorf("%w: connection %s", domain.ErrConnectivity, s))
	}
}

func (c *Controller) onICECandidate(a *attempt, candidate pion.ICECandidateInit) {
	if !c.isCurrent(a) {
		return
	}
	id, err := c.ids.Next()
	if err != nil {
		c.log.WithError(err).Error("allocate candidate id")
		return
	}
	c.dispatchFor(a, isPhase(state.PhaseSignalling), state.AddICECandidate{ID: id, Candidate: candidate})
}

func (c *Controller) stopTimer(a *attempt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
	}
}

// ProcessAnswer applies a JSON-encoded remote answer to the current attempt.
// It does nothing unless the phase is SIGNALLING, the offer has been set and
// no remote description has been applied. Each distinct answer is tried once.
func (c *Controller) ProcessAnswer(raw string) error {
	if raw == "" {
		return nil
	}
	st := c.store.State()
	if st.Phase != state.PhaseSignalling || st.LocalOffer == nil {
		return nil
	}

	c.mu.Lock()
	a := c.current
	if a == nil || a.pc == nil || a.pc.RemoteDescription() != nil || raw == c.answered {
		c.mu.Unlock()
		return nil
	}
	c.answered = raw
	pc := a.pc
	c.mu.Unlock()

	err := c.applyAnswer(pc, raw)
	if err == nil {
		c.stopTimer(a)
		return nil
	}
	c.log.WithError(err).Warn("process answer failed")

	c.mu.Lock()
	if c.current != a {
		c.mu.Unlock()
		return err
	}
	c.store.DispatchIf(isPhase(state.PhaseSignalling), state.ProcessAnswerError{Err: err})
	detached, ok := c.beginStop()
	c.mu.Unlock()
	if ok {
		c.finishStop(detached, nil)
	}
	return err
}

func (c *Controller) applyAnswer(pc domain.PeerConnection, raw string) error {
	answer, sections, err := webrtc.ParseAnswer(raw)
	if err != nil {
		return err
	}
	c.log.WithField("media", webrtc.Summary(sections)).Debug("received answer")
	if err := pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("%w: set remote description: %w", domain.ErrNegotiation, err)
	}
	c.log.Debug("remote description set")
	return nil
}

// Stop tears the current attempt down and always ends in STOPPED. A call
// made while another Stop is in progress does nothing.
func (c *Controller) Stop() {
	c.stop(nil)
}

func (c *Controller) stop(cause error) {
	c.mu.Lock()
	a, ok := c.beginStop()
	c.mu.Unlock()
	if ok {
		c.finishStop(a, cause)
	}
}

// stopAttempt stops only while a is still the current attempt.
func (c *Controller) stopAttempt(a *attempt, cause error) {
	c.mu.Lock()
	if c.current != a {
		c.mu.Unlock()
		return
	}
	detached, ok := c.beginStop()
	c.mu.Unlock()
	if ok {
		c.finishStop(detached, cause)
	}
}

// beginStop dispatches STOPPING and detaches the current attempt, which may
// be nil. Callers hold c.mu.
func (c *Controller) beginStop() (*attempt, bool) {
	if _, ok := c.store.DispatchIf(func(s state.State) bool {
		return s.Phase != state.PhaseStopping
	}, state.Stopping{}); !ok {
		return nil, false
	}
	a := c.current
	c.current = nil
	if a != nil {
		a.release()
	}
	return a, true
}

func (c *Controller) finishStop(a *attempt, cause error) {
	err := cause
	if a != nil && a.pc != nil {
		if terr := c.teardown(a.pc); terr != nil {
			c.log.WithError(terr).Warn("teardown")
			err = errors.Join(cause, terr)
		}
	}
	c.store.Dispatch(state.Stopped{Err: err})
}

func (c *Controller) teardown(pc domain.PeerConnection) error {
	var errs []error
	if err := pc.StopTransceivers(); err != nil {
		errs = append(errs, err)
	}
	if err := pc.StopSenderTracks(); err != nil {
		errs = append(errs, err)
	}
	if c.cfg.TeardownDelay > 0 {
		time.Sleep(c.cfg.TeardownDelay)
	}
	if err := pc.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close peer connection: %w", err))
	}
	return errors.Join(errs...)
}

// closeAsync releases the native resources of a failed attempt.
func (c *Controller) closeAsync(a *attempt) {
	if a.pc == nil {
		return
	}
	go func() {
		if err := c.teardown(a.pc); err != nil {
			c.log.WithError(err).Debug("release failed attempt")
		}
	}()
}
