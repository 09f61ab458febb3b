package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"rtcstreamer/native/internal/constraint"
	"rtcstreamer/native/internal/domain"
)

// EnvPrefix namespaces every environment override, e.g. RTCSTREAMER_HOST_URL.
const EnvPrefix = "RTCSTREAMER"

// Config keys.
const (
	KeyHostURL             = "host_url"
	KeyMode                = "mode"
	KeyICEServers          = "ice_servers"
	KeyConstraints         = "media_stream_constraints"
	KeyVideoDeviceID       = "video_device_id"
	KeyAudioDeviceID       = "audio_device_id"
	KeyDesiredPlayingState = "desired_playing_state"
	KeyTeardownDelay       = "teardown_delay"
	KeySignallingTimeout   = "signalling_timeout"
	KeyTURNCredentialsURL  = "turn_credentials_url"
	KeyTURNToken           = "turn_token"
	KeyRecordVideo         = "record_video"
	KeyRecordAudio         = "record_audio"
	KeyVerbose             = "verbose"
)

// Config holds the application configuration.
type Config struct {
	HostURL     string
	Mode        domain.Mode
	ICEServers  []domain.ICEServer
	Constraints *constraint.MediaStreamConstraints
	Devices     domain.DeviceIDs
	// DesiredPlayingState is applied before the host sends its first RENDER.
	DesiredPlayingState *bool

	TeardownDelay     time.Duration
	SignallingTimeout time.Duration

	TURNCredentialsURL string
	TURNToken          string

	RecordVideo string
	RecordAudio string
	Verbose     bool
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyMode, string(domain.ModeSendRecv))
	v.SetDefault(KeyTeardownDelay, 500*time.Millisecond)
	v.SetDefault(KeySignallingTimeout, 3*time.Second)
}

// Load reads configuration from a .env file (if present), the config file and
// environment variables. Environment variables take precedence over .env
// values. When cfgFile is empty $HOME/.rtcstreamer.{yaml,json,...} is used if
// it exists.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}
		v.AddConfigPath(home)
		v.SetConfigName(".rtcstreamer")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HostURL:            strings.TrimSpace(v.GetString(KeyHostURL)),
		Devices:            domain.DeviceIDs{Video: v.GetString(KeyVideoDeviceID), Audio: v.GetString(KeyAudioDeviceID)},
		TeardownDelay:      v.GetDuration(KeyTeardownDelay),
		SignallingTimeout:  v.GetDuration(KeySignallingTimeout),
		TURNCredentialsURL: v.GetString(KeyTURNCredentialsURL),
		TURNToken:          v.GetString(KeyTURNToken),
		RecordVideo:        v.GetString(KeyRecordVideo),
		RecordAudio:        v.GetString(KeyRecordAudio),
		Verbose:            v.GetBool(KeyVerbose),
	}

	if cfg.HostURL == "" {
		return nil, fmt.Errorf("%s is required (env %s_HOST_URL)", KeyHostURL, EnvPrefix)
	}
	u, err := url.Parse(cfg.HostURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyHostURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("%s: scheme must be ws or wss, got %q", KeyHostURL, u.Scheme)
	}

	mode, err := domain.ParseMode(v.GetString(KeyMode))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyMode, err)
	}
	cfg.Mode = mode

	if cfg.ICEServers, err = iceServers(v); err != nil {
		return nil, fmt.Errorf("%s: %w", KeyICEServers, err)
	}

	if cfg.Constraints, err = constraints(v.Get(KeyConstraints)); err != nil {
		return nil, fmt.Errorf("%s: %w", KeyConstraints, err)
	}

	if v.IsSet(KeyDesiredPlayingState) && v.Get(KeyDesiredPlayingState) != nil {
		desired := v.GetBool(KeyDesiredPlayingState)
		cfg.DesiredPlayingState = &desired
	}

	if cfg.TeardownDelay < 0 {
		return nil, fmt.Errorf("%s: must not be negative", KeyTeardownDelay)
	}
	if cfg.SignallingTimeout < 0 {
		return nil, fmt.Errorf("%s: must not be negative", KeySignallingTimeout)
	}

	return cfg, nil
}

// iceServers accepts a YAML/JSON list from the config file or a JSON string
// from the environment. An empty list stays empty.
func iceServers(v *viper.Viper) ([]domain.ICEServer, error) {
	var servers []domain.ICEServer
	switch raw := v.Get(KeyICEServers).(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(raw) == "" {
			return nil, nil
		}
		if err := json.Unmarshal([]byte(raw), &servers); err != nil {
			return nil, err
		}
	default:
		if err := v.UnmarshalKey(KeyICEServers, &servers); err != nil {
			return nil, err
		}
	}
	for i, s := range servers {
		if len(s.URLs) == 0 {
			return nil, fmt.Errorf("entry %d has no urls", i)
		}
	}
	return servers, nil
}

// constraints defaults to capturing both kinds, as a host that never sends
// constraints expects.
func constraints(raw any) (*constraint.MediaStreamConstraints, error) {
	switch x := raw.(type) {
	case nil:
		return &constraint.MediaStreamConstraints{Video: constraint.Bool(true), Audio: constraint.Bool(true)}, nil
	case string:
		var c constraint.MediaStreamConstraints
		if err := json.Unmarshal([]byte(x), &c); err != nil {
			return nil, err
		}
		return &c, nil
	case map[string]any:
		return constraint.FromMap(x)
	default:
		return nil, fmt.Errorf("unexpected %T", raw)
	}
}
