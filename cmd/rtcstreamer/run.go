package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"rtcstreamer/native/internal/api"
	"rtcstreamer/native/internal/config"
	"rtcstreamer/native/internal/constraint"
	"rtcstreamer/native/internal/domain"
	"rtcstreamer/native/internal/host"
	"rtcstreamer/native/internal/media"
	"rtcstreamer/native/internal/media/codecs"
	"rtcstreamer/native/internal/publish"
	"rtcstreamer/native/internal/sink"
	"rtcstreamer/native/internal/state"
	"rtcstreamer/native/internal/streamer"
	"rtcstreamer/native/internal/uniqueid"
	"rtcstreamer/native/internal/webrtc"
)

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	if cfg.Verbose {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.StandardLogger()
	mainLog := logger.WithField("component", "main")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pterm.Info.Printfln("rtcstreamer %s, mode %s", Version, cfg.Mode)

	// Step 1: Capture devices and the pion API sharing their codecs
	selector, err := codecs.DefaultCodecSelector()
	if err != nil {
		return fmt.Errorf("codec selector: %w", err)
	}
	devices := media.New(selector, logger.WithField("component", "media"))
	engine, err := webrtc.NewAPI(devices.CodecRegistrar(), logger.WithField("component", "webrtc"))
	if err != nil {
		return err
	}
	peers := webrtc.NewFactory(engine, logger.WithField("component", "webrtc"))

	// Step 2: ICE servers, fetched only when none are configured
	iceServers := cfg.ICEServers
	if len(iceServers) == 0 && cfg.TURNCredentialsURL != "" {
		fetched, err := api.NewClient(logger.WithField("component", "api")).
			FetchICEServers(ctx, cfg.TURNCredentialsURL, cfg.TURNToken)
		if err != nil {
			mainLog.WithError(err).Warn("turn credentials unavailable, continuing without ice servers")
		} else {
			iceServers = fetched
		}
	}

	// Step 3: Remote track sink, recording only the kinds the constraints enable
	usage := constraint.UsageOf(cfg.Constraints)
	sinkCfg := sink.Config{VideoPath: cfg.RecordVideo, AudioPath: cfg.RecordAudio}
	if !usage.VideoEnabled {
		sinkCfg.VideoPath = ""
	}
	if !usage.AudioEnabled {
		sinkCfg.AudioPath = ""
	}
	tracks := sink.New(sinkCfg, logger.WithField("component", "sink"))

	// Step 4: Host channel, state store and publisher
	hc := host.NewClient(cfg.HostURL, nil, logger.WithField("component", "host"))
	pub := publish.New(hc, logger.WithField("component", "publish"))
	store := state.NewStore(logger.WithField("component", "state"), pub.Observe, statusLine)

	// Step 5: Controller and reconciler
	ctl := streamer.NewController(streamer.Config{
		Mode:              cfg.Mode,
		ICEServers:        iceServers,
		Constraints:       cfg.Constraints,
		VideoDeviceID:     cfg.Devices.Video,
		AudioDeviceID:     cfg.Devices.Audio,
		TeardownDelay:     cfg.TeardownDelay,
		SignallingTimeout: cfg.SignallingTimeout,
		OnDevicesOpened: func(opened domain.DeviceIDs) {
			pterm.Info.Printfln("devices opened: video=%q audio=%q", opened.Video, opened.Audio)
			hc.DevicesOpened(opened)
		},
		OnRemoteTrack: tracks.HandleTrack,
	}, store, peers, devices, uniqueid.New(), logger.WithField("component", "streamer"))
	rec := streamer.NewReconciler(ctl, store, logger.WithField("component", "reconciler"))

	// Step 6: Complete the circular dependency
	hc.SetHandler(rec)

	// Step 7: Connect and announce the initial value
	if err := hc.Connect(ctx); err != nil {
		return err
	}
	defer hc.Close()
	hc.Publish(publish.Initial())

	if cfg.DesiredPlayingState != nil {
		rec.OnRender(domain.RenderArgs{DesiredPlayingState: cfg.DesiredPlayingState})
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- rec.Run(runCtx) }()

	waitForShutdown(ctx, hc.Done(), mainLog)
	cancel()
	<-done

	ctl.Stop()
	tracks.Wait()

	pterm.Success.Println("stopped")
	return nil
}

// waitForShutdown blocks until ctx ends or the host hangs up.
func waitForShutdown(ctx context.Context, hostDone <-chan struct{}, l log.FieldLogger) {
	select {
	case <-ctx.Done():
		l.Info("shutting down")
	case <-hostDone:
		l.Info("host went away, shutting down")
	}
}

// statusLine prints phase changes for whoever watches the terminal.
func statusLine(prev, next state.State, _ state.Action) {
	if next.SignallingTimedOut && !prev.SignallingTimedOut {
		pterm.Warning.Println("signalling is taking a while")
	}
	if prev.Phase == next.Phase {
		return
	}
	switch {
	case next.Err != nil && next.Phase == state.PhaseStopped:
		pterm.Error.Printfln("%s: %v", next.Phase, next.Err)
	case next.Phase == state.PhasePlaying:
		pterm.Success.Println(next.Phase)
	default:
		pterm.Info.Println(next.Phase)
	}
}
