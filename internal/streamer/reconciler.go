package streamer

import (
	"context"
	"errors"
	"sync"

	pion "github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"rtcstreamer/native/internal/domain"
	"rtcstreamer/native/internal/state"
)

// Target is what the reconciler drives. *Controller implements it.
type Target interface {
	Start(ctx context.Context) error
	Stop()
	ProcessAnswer(raw string) error
}

// Reconciler converges the connection toward the host's desired playing
// state and feeds it the host's answer.
//
// While the host wants playing, every return to STOPPED starts a new attempt,
// except after a start that failed: that one is retried only once the host
// delivers new arguments. An answer is handed to the target once per offer.
type Reconciler struct {
	target Target
	store  *state.Store
	log    logrus.FieldLogger
	kick   chan struct{}

	mu        sync.Mutex
	desired   *bool
	answer    string
	failed    bool
	starting  bool
	stopping  bool
	answering bool
	// handed is the answer last given to the target and the offer it was
	// given for.
	handed      string
	handedOffer *pion.SessionDescription
}

func NewReconciler(target Target, store *state.Store, log logrus.FieldLogger) *Reconciler {
	return &Reconciler{
		target: target,
		store:  store,
		log:    log,
		kick:   make(chan struct{}, 1),
	}
}

// OnRender delivers new host arguments. It implements domain.Handler.
func (r *Reconciler) OnRender(args domain.RenderArgs) {
	r.mu.Lock()
	r.desired = args.DesiredPlayingState
	r.answer = args.SDPAnswerJSON
	r.failed = false
	r.mu.Unlock()
	r.wake()
}

func (r *Reconciler) wake() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Run evaluates after every state change or delivery until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	changes, cancel := r.store.Watch()
	defer cancel()

	for {
		r.evaluate(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changes:
		case <-r.kick:
		}
	}
}

func (r *Reconciler) evaluate(ctx context.Context) {
	st := r.store.State()
	phase := st.Phase

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.answer != "" && phase == state.PhaseSignalling && st.LocalOffer != nil && !r.answering &&
		(r.answer != r.handed || st.LocalOffer != r.handedOffer) {
		answer := r.answer
		r.handed, r.handedOffer = answer, st.LocalOffer
		r.answering = true
		go func() {
			if err := r.target.ProcessAnswer(answer); err != nil {
				r.log.WithError(err).Debug("answer rejected")
			}
			r.mu.Lock()
			r.answering = false
			pending := r.answer != r.handed
			r.mu.Unlock()
			if pending {
				r.wake()
			}
		}()
	}

	if r.desired == nil {
		return
	}
	switch {
	case *r.desired && phase == state.PhaseStopped && !r.starting && !r.failed:
		r.starting = true
		go r.run(func() {
			err := r.target.Start(ctx)
			if err == nil || errors.Is(err, ErrAborted) {
				return
			}
			r.log.WithError(err).Warn("start")
			r.mu.Lock()
			r.failed = true
			r.mu.Unlock()
		}, &r.starting)
	case !*r.desired && (phase == state.PhaseSignalling || phase == state.PhasePlaying) && !r.stopping:
		r.stopping = true
		go r.run(r.target.Stop, &r.stopping)
	}
}

// run calls fn, clears flag afterwards and re-evaluates.
func (r *Reconciler) run(fn func(), flag *bool) {
	fn()
	r.mu.Lock()
	*flag = false
	r.mu.Unlock()
	r.wake()
}
