package webrtc

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	pion "github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// CodecRegistrar registers the codecs local capture can encode. When nil the
// pion default codec set is used.
type CodecRegistrar func(m *pion.MediaEngine) error

// NewAPI builds a pion API with NACK handling, RTCP reports and pion's own
// logging routed to log.
func NewAPI(registerCodecs CodecRegistrar, log logrus.FieldLogger) (*pion.API, error) {
	m := &pion.MediaEngine{}
	if registerCodecs != nil {
		if err := registerCodecs(m); err != nil {
			return nil, fmt.Errorf("register codecs: %w", err)
		}
		m.RegisterFeedback(pion.RTCPFeedback{Type: "nack"}, pion.RTPCodecTypeVideo)
		m.RegisterFeedback(pion.RTCPFeedback{Type: "nack", Parameter: "pli"}, pion.RTPCodecTypeVideo)
	} else if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register default codecs: %w", err)
	}

	i := &interceptor.Registry{}
	responderFactory, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack responder: %w", err)
	}
	i.Add(responderFactory)
	generatorFactory, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack generator: %w", err)
	}
	i.Add(generatorFactory)
	if err := pion.ConfigureRTCPReports(i); err != nil {
		return nil, fmt.Errorf("configure rtcp reports: %w", err)
	}

	s := pion.SettingEngine{}
	s.LoggerFactory = NewLoggerFactory(log)

	return pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(i),
		pion.WithSettingEngine(s),
	), nil
}
