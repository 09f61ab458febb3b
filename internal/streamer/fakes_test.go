package streamer

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	pion "github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"rtcstreamer/native/internal/constraint"
	"rtcstreamer/native/internal/domain"
	"rtcstreamer/native/internal/publish"
	"rtcstreamer/native/internal/state"
	"rtcstreamer/native/internal/uniqueid"
)

const testSDP = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n" +
	"a=sendonly\r\n" +
	"a=rtpmap:96 VP8/90000\r\n"

func answerJSON(t *testing.T) string {
	t.Helper()
	raw, err := json.Marshal(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: testSDP})
	require.NoError(t, err)
	return string(raw)
}

type fakeSub struct {
	once sync.Once
	fn   func()
}

func (s *fakeSub) Unsubscribe() { s.once.Do(s.fn) }

type addedTrack struct {
	track     domain.LocalTrack
	direction pion.RTPTransceiverDirection
}

type fakePeer struct {
	mu sync.Mutex

	recv  []pion.RTPCodecType
	added []addedTrack

	offerErr     error
	setRemoteErr error
	local        *pion.SessionDescription
	remote       *pion.SessionDescription
	setRemote    int

	nextID     int
	trackFns   map[int]func(domain.RemoteTrack)
	stateFns   map[int]func(pion.PeerConnectionState)
	candFns    map[int]func(pion.ICECandidateInit)
	stopped    int
	senderStop int
	closed     int

	// block, when set, holds StopTransceivers until it is closed.
	block chan struct{}
}

func newFakePeer() *fakePeer {
	return &fakePeer{
		trackFns: make(map[int]func(domain.RemoteTrack)),
		stateFns: make(map[int]func(pion.PeerConnectionState)),
		candFns:  make(map[int]func(pion.ICECandidateInit)),
	}
}

func (p *fakePeer) AddTrack(track domain.LocalTrack, direction pion.RTPTransceiverDirection) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.added = append(p.added, addedTrack{track: track, direction: direction})
	return nil
}

func (p *fakePeer) AddRecvTransceiver(kind pion.RTPCodecType) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recv = append(p.recv, kind)
	return nil
}

func (p *fakePeer) CreateOffer() (pion.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.offerErr != nil {
		return pion.SessionDescription{}, p.offerErr
	}
	return pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: testSDP}, nil
}

func (p *fakePeer) SetLocalDescription(desc pion.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local = &desc
	return nil
}

func (p *fakePeer) LocalDescription() *pion.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local
}

func (p *fakePeer) SetRemoteDescription(desc pion.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setRemote++
	if p.setRemoteErr != nil {
		return p.setRemoteErr
	}
	p.remote = &desc
	return nil
}

func (p *fakePeer) RemoteDescription() *pion.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

func subscribe[T any](p *fakePeer, m map[int]func(T), fn func(T)) domain.Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	m[id] = fn
	return &fakeSub{fn: func() {
		p.mu.Lock()
		delete(m, id)
		p.mu.Unlock()
	}}
}

func (p *fakePeer) OnTrack(fn func(domain.RemoteTrack)) domain.Subscription {
	return subscribe(p, p.trackFns, fn)
}

func (p *fakePeer) OnConnectionStateChange(fn func(pion.PeerConnectionState)) domain.Subscription {
	return subscribe(p, p.stateFns, fn)
}

func (p *fakePeer) OnICECandidate(fn func(pion.ICECandidateInit)) domain.Subscription {
	return subscribe(p, p.candFns, fn)
}

func snapshot[T any](p *fakePeer, m map[int]func(T)) []func(T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fns := make([]func(T), 0, len(m))
	for _, fn := range m {
		fns = append(fns, fn)
	}
	return fns
}

func (p *fakePeer) emitTrack(t domain.RemoteTrack) {
	for _, fn := range snapshot(p, p.trackFns) {
		fn(t)
	}
}

func (p *fakePeer) emitState(s pion.PeerConnectionState) {
	for _, fn := range snapshot(p, p.stateFns) {
		fn(s)
	}
}

func (p *fakePeer) emitCandidate(c pion.ICECandidateInit) {
	for _, fn := range snapshot(p, p.candFns) {
		fn(c)
	}
}

func (p *fakePeer) listeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.trackFns) + len(p.stateFns) + len(p.candFns)
}

func (p *fakePeer) StopTransceivers() error {
	p.mu.Lock()
	block := p.block
	p.stopped++
	p.mu.Unlock()
	if block != nil {
		<-block
	}
	return nil
}

func (p *fakePeer) StopSenderTracks() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.senderStop++
	for _, a := range p.added {
		_ = a.track.Close()
	}
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePeer) counts() (stopped, senderStop, closed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped, p.senderStop, p.closed
}

type fakeFactory struct {
	mu    sync.Mutex
	peers []*fakePeer
	// prepare configures each new peer before it is returned.
	prepare func(*fakePeer)
}

func (f *fakeFactory) NewPeerConnection([]domain.ICEServer) (domain.PeerConnection, error) {
	p := newFakePeer()
	if f.prepare != nil {
		f.prepare(p)
	}
	f.mu.Lock()
	f.peers = append(f.peers, p)
	f.mu.Unlock()
	return p, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers)
}

func (f *fakeFactory) last() *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peers[len(f.peers)-1]
}

type fakeLocalTrack struct {
	pion.TrackLocal
	kind   pion.RTPCodecType
	device string

	mu     sync.Mutex
	closed bool
}

func (t *fakeLocalTrack) Kind() pion.RTPCodecType { return t.kind }
func (t *fakeLocalTrack) DeviceID() string        { return t.device }
func (t *fakeLocalTrack) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeLocalTrack) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type fakeStream []domain.LocalTrack

func (s fakeStream) Tracks() []domain.LocalTrack { return s }

type fakeDevices struct {
	mu     sync.Mutex
	calls  []constraint.MediaStreamConstraints
	tracks func() []domain.LocalTrack
	err    error
	// wait, when set, holds GetUserMedia until it is closed.
	wait chan struct{}
}

func (d *fakeDevices) GetUserMedia(_ context.Context, c constraint.MediaStreamConstraints) (domain.LocalStream, error) {
	d.mu.Lock()
	d.calls = append(d.calls, c)
	wait, err, tracks := d.wait, d.err, d.tracks
	d.mu.Unlock()
	if wait != nil {
		<-wait
	}
	if err != nil {
		return nil, err
	}
	return fakeStream(tracks()), nil
}

func (d *fakeDevices) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type fakeRemoteTrack struct {
	id, stream string
	kind       pion.RTPCodecType
}

func (t fakeRemoteTrack) ID() string                     { return t.id }
func (t fakeRemoteTrack) StreamID() string               { return t.stream }
func (t fakeRemoteTrack) Kind() pion.RTPCodecType        { return t.kind }
func (t fakeRemoteTrack) Codec() pion.RTPCodecParameters { return pion.RTPCodecParameters{} }
func (t fakeRemoteTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	return nil, nil, io.EOF
}

type recorder struct {
	mu      sync.Mutex
	values  []domain.ComponentValue
	actions []string
}

func (r *recorder) Publish(v domain.ComponentValue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func (r *recorder) observe(_, _ state.State, a state.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, a.Type())
}

func (r *recorder) last() domain.ComponentValue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.values[len(r.values)-1]
}

func (r *recorder) count(action string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.actions {
		if a == action {
			n++
		}
	}
	return n
}

type harness struct {
	store   *state.Store
	peers   *fakeFactory
	devices *fakeDevices
	rec     *recorder
	ctl     *Controller
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newHarness(cfg Config) *harness {
	if cfg.Constraints == nil {
		cfg.Constraints = &constraint.MediaStreamConstraints{
			Video: constraint.Bool(true),
			Audio: constraint.Bool(true),
		}
	}
	log := quietLogger()
	rec := &recorder{}
	store := state.NewStore(log, publish.New(rec, log).Observe, rec.observe)
	h := &harness{
		store: store,
		peers: &fakeFactory{},
		devices: &fakeDevices{tracks: func() []domain.LocalTrack {
			return []domain.LocalTrack{
				&fakeLocalTrack{kind: pion.RTPCodecTypeVideo, device: "cam0"},
				&fakeLocalTrack{kind: pion.RTPCodecTypeAudio, device: "mic0"},
			}
		}},
		rec: rec,
	}
	h.ctl = NewController(cfg, store, h.peers, h.devices, uniqueid.New(), log)
	return h
}

func (h *harness) phase() state.Phase {
	return h.store.State().Phase
}
