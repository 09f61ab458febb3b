// Package sink consumes remote tracks. Tracks are always read so the
// interceptors keep seeing traffic; with a path configured they are also
// written to disk.
package sink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/h264writer"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/sirupsen/logrus"

	"rtcstreamer/native/internal/domain"
)

// ErrUnsupportedCodec is returned for tracks no writer can store.
var ErrUnsupportedCodec = errors.New("no writer for codec")

// Config names the recording targets. An empty path disables recording for
// that kind. H264 is written as Annex B, VP8 and AV1 as IVF, Opus as Ogg.
type Config struct {
	VideoPath string
	AudioPath string
}

// Sink implements the remote-track hook of the streamer.
type Sink struct {
	cfg    Config
	log    logrus.FieldLogger
	create func(name string) (io.WriteCloser, error)

	mu     sync.Mutex
	counts map[pion.RTPCodecType]int
	wg     sync.WaitGroup
}

func New(cfg Config, log logrus.FieldLogger) *Sink {
	return &Sink{
		cfg: cfg,
		log: log,
		create: func(name string) (io.WriteCloser, error) {
			return os.Create(name)
		},
		counts: make(map[pion.RTPCodecType]int),
	}
}

// HandleTrack consumes track on its own goroutine until the track ends.
func (s *Sink) HandleTrack(track domain.RemoteTrack) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.consume(track); err != nil {
			s.log.WithError(err).WithField("track", track.ID()).Warn("track ended")
		}
	}()
}

// Wait blocks until every handled track has ended.
func (s *Sink) Wait() {
	s.wg.Wait()
}

func (s *Sink) consume(track domain.RemoteTrack) error {
	codec := track.Codec()
	log := s.log.WithFields(logrus.Fields{
		"track": track.ID(),
		"codec": codec.MimeType,
		"pt":    codec.PayloadType,
	})

	w, path, err := s.writerFor(track.Kind(), codec)
	switch {
	case err != nil:
		log.WithError(err).Warn("not recording track")
	case w != nil:
		defer func() {
			if err := w.Close(); err != nil {
				log.WithError(err).Warn("close recording")
			}
		}()
		log.Infof("recording to %s", path)
	default:
		log.Debug("draining track")
	}

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read rtp: %w", err)
		}
		if w == nil {
			continue
		}
		if err := w.WriteRTP(pkt); err != nil {
			if len(pkt.Payload) <= 2 {
				continue
			}
			log.WithError(err).Debugf("ignore write of %dB", len(pkt.Payload))
		}
	}
}

func (s *Sink) writerFor(kind pion.RTPCodecType, codec pion.RTPCodecParameters) (media.Writer, string, error) {
	base := s.cfg.VideoPath
	if kind == pion.RTPCodecTypeAudio {
		base = s.cfg.AudioPath
	}
	if base == "" {
		return nil, "", nil
	}

	var open func(out io.Writer) (media.Writer, error)
	switch mime := codec.MimeType; {
	case strings.EqualFold(mime, pion.MimeTypeH264):
		open = func(out io.Writer) (media.Writer, error) {
			return h264writer.NewWith(out), nil
		}
	case strings.EqualFold(mime, pion.MimeTypeVP8), strings.EqualFold(mime, pion.MimeTypeAV1):
		canonical := pion.MimeTypeVP8
		if strings.EqualFold(mime, pion.MimeTypeAV1) {
			canonical = pion.MimeTypeAV1
		}
		open = func(out io.Writer) (media.Writer, error) {
			return ivfwriter.NewWith(out, ivfwriter.WithCodec(canonical))
		}
	case strings.EqualFold(mime, pion.MimeTypeOpus):
		open = func(out io.Writer) (media.Writer, error) {
			return oggwriter.NewWith(out, codec.ClockRate, codec.Channels)
		}
	default:
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedCodec, mime)
	}

	path := s.nextPath(kind, base)
	f, err := s.create(path)
	if err != nil {
		return nil, "", fmt.Errorf("create %s: %w", path, err)
	}
	w, err := open(f)
	if err != nil {
		f.Close()
		return nil, "", fmt.Errorf("open %s writer: %w", codec.MimeType, err)
	}
	return w, path, nil
}

// nextPath numbers every recording after the first: out.ivf, out-2.ivf, ...
func (s *Sink) nextPath(kind pion.RTPCodecType, base string) string {
	s.mu.Lock()
	s.counts[kind]++
	n := s.counts[kind]
	s.mu.Unlock()

	if n == 1 {
		return base
	}
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(base, ext), n, ext)
}
