package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtcstreamer/native/internal/domain"
)

func fromYAML(t *testing.T, doc string) (*Config, error) {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(doc)))
	return FromViper(v)
}

func TestDefaults(t *testing.T) {
	cfg, err := fromYAML(t, "host_url: ws://localhost:8501/ws\n")
	require.NoError(t, err)

	assert.Equal(t, domain.ModeSendRecv, cfg.Mode)
	assert.Equal(t, 500*time.Millisecond, cfg.TeardownDelay)
	assert.Equal(t, 3*time.Second, cfg.SignallingTimeout)
	assert.Empty(t, cfg.ICEServers)
	assert.Nil(t, cfg.DesiredPlayingState)
	assert.True(t, cfg.Constraints.Video.Requested())
	assert.True(t, cfg.Constraints.Audio.Requested())
	assert.True(t, cfg.Devices.Empty())
}

func TestFullFile(t *testing.T) {
	cfg, err := fromYAML(t, `
host_url: wss://example.com/widget
mode: recvonly
ice_servers:
  - urls: stun:stun.l.google.com:19302
  - urls: ["turn:turn.example.com:3478"]
    username: u
    credential: p
media_stream_constraints:
  video:
    frameRate: {max: 15}
  audio: false
video_device_id: cam1
desired_playing_state: true
teardown_delay: 0s
signalling_timeout: 10s
record_video: out.ivf
`)
	require.NoError(t, err)

	assert.Equal(t, domain.ModeRecvOnly, cfg.Mode)
	assert.Equal(t, []domain.ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
		{URLs: []string{"turn:turn.example.com:3478"}, Username: "u", Credential: "p"},
	}, cfg.ICEServers)
	require.NotNil(t, cfg.Constraints.Video)
	assert.Contains(t, cfg.Constraints.Video.Object, "frameRate")
	assert.False(t, cfg.Constraints.Audio.Requested())
	assert.Equal(t, domain.DeviceIDs{Video: "cam1"}, cfg.Devices)
	require.NotNil(t, cfg.DesiredPlayingState)
	assert.True(t, *cfg.DesiredPlayingState)
	assert.Zero(t, cfg.TeardownDelay)
	assert.Equal(t, 10*time.Second, cfg.SignallingTimeout)
	assert.Equal(t, "out.ivf", cfg.RecordVideo)
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		key  string
	}{
		{"missing host", "mode: sendonly\n", KeyHostURL},
		{"http host", "host_url: http://example.com\n", KeyHostURL},
		{"bad mode", "host_url: ws://h\nmode: both\n", KeyMode},
		{"server without urls", "host_url: ws://h\nice_servers:\n  - username: u\n", KeyICEServers},
		{"bad constraints", "host_url: ws://h\nmedia_stream_constraints:\n  video: yes please\n", KeyConstraints},
		{"negative delay", "host_url: ws://h\nteardown_delay: -1s\n", KeyTeardownDelay},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fromYAML(t, tc.doc)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.key)
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtcstreamer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host_url: ws://file/ws\nmode: sendonly\n"), 0o600))

	t.Setenv("RTCSTREAMER_MODE", "recvonly")
	t.Setenv("RTCSTREAMER_ICE_SERVERS", `[{"urls":["stun:env:3478"]}]`)
	t.Setenv("RTCSTREAMER_MEDIA_STREAM_CONSTRAINTS", `{"video":true}`)
	t.Setenv("RTCSTREAMER_DESIRED_PLAYING_STATE", "false")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "ws://file/ws", cfg.HostURL)
	assert.Equal(t, domain.ModeRecvOnly, cfg.Mode)
	assert.Equal(t, []domain.ICEServer{{URLs: []string{"stun:env:3478"}}}, cfg.ICEServers)
	assert.True(t, cfg.Constraints.Video.Requested())
	assert.Nil(t, cfg.Constraints.Audio)
	require.NotNil(t, cfg.DesiredPlayingState)
	assert.False(t, *cfg.DesiredPlayingState)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "read config")
}
