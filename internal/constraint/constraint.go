// Package constraint models capture constraints in the shape hosts send them
// ({"video": true, "audio": {"echoCancellation": true}}) and merges them with
// requested device ids.
package constraint

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DeviceIDKey is the member that pins a track constraint to one device.
const DeviceIDKey = "deviceId"

// TrackConstraint is either a boolean or a constraint object.
// A nil *TrackConstraint means the member was absent.
type TrackConstraint struct {
	Bool   *bool
	Object map[string]any
}

// Bool returns a boolean track constraint.
func Bool(v bool) *TrackConstraint {
	return &TrackConstraint{Bool: &v}
}

// Object returns a track constraint holding a deep copy of props.
func Object(props map[string]any) *TrackConstraint {
	return &TrackConstraint{Object: copyMap(props)}
}

// Requested reports whether the track should be captured at all.
func (t *TrackConstraint) Requested() bool {
	if t == nil {
		return false
	}
	if t.Object != nil {
		return true
	}
	return t.Bool != nil && *t.Bool
}

// DeviceID returns the pinned device id, if any.
func (t *TrackConstraint) DeviceID() string {
	if t == nil || t.Object == nil {
		return ""
	}
	switch v := t.Object[DeviceIDKey].(type) {
	case string:
		return v
	case map[string]any:
		for _, k := range []string{"exact", "ideal"} {
			if s, ok := v[k].(string); ok {
				return s
			}
		}
	}
	return ""
}

func (t *TrackConstraint) clone() *TrackConstraint {
	if t == nil {
		return nil
	}
	out := &TrackConstraint{}
	if t.Bool != nil {
		b := *t.Bool
		out.Bool = &b
	}
	if t.Object != nil {
		out.Object = copyMap(t.Object)
	}
	return out
}

func (t TrackConstraint) MarshalJSON() ([]byte, error) {
	if t.Object != nil {
		return json.Marshal(t.Object)
	}
	if t.Bool != nil {
		return json.Marshal(*t.Bool)
	}
	return []byte("false"), nil
}

func (t *TrackConstraint) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		t.Bool, t.Object = &b, nil
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("track constraint must be a boolean or an object: %w", err)
	}
	t.Bool, t.Object = nil, obj
	return nil
}

// MediaStreamConstraints is the capture request for one attempt.
type MediaStreamConstraints struct {
	Video *TrackConstraint `json:"video,omitempty"`
	Audio *TrackConstraint `json:"audio,omitempty"`
}

// FromMap builds constraints from a decoded config value such as the map
// viper returns for a nested YAML section. Viper lowercases keys, so known
// members get their camelCase spelling back.
func FromMap(m map[string]any) (*MediaStreamConstraints, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(normalize(m))
	if err != nil {
		return nil, fmt.Errorf("encode constraints: %w", err)
	}
	var c MediaStreamConstraints
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode constraints: %w", err)
	}
	return &c, nil
}

// Compile merges src with the requested device ids. src is never modified.
// An explicit false stays false; true becomes {deviceId}; an object or an
// absent member keeps its members and gains deviceId.
func Compile(src *MediaStreamConstraints, videoDeviceID, audioDeviceID string) MediaStreamConstraints {
	var out MediaStreamConstraints
	if src != nil {
		out.Video = src.Video.clone()
		out.Audio = src.Audio.clone()
	}
	out.Video = withDevice(out.Video, videoDeviceID)
	out.Audio = withDevice(out.Audio, audioDeviceID)
	return out
}

func withDevice(t *TrackConstraint, deviceID string) *TrackConstraint {
	if deviceID == "" {
		return t
	}
	switch {
	case t == nil:
		return &TrackConstraint{Object: map[string]any{DeviceIDKey: deviceID}}
	case t.Object != nil:
		t.Object[DeviceIDKey] = deviceID
		return t
	case t.Bool != nil && *t.Bool:
		return &TrackConstraint{Object: map[string]any{DeviceIDKey: deviceID}}
	default:
		return t
	}
}

// Usage tells which kinds a host's constraints enable.
type Usage struct {
	VideoEnabled bool
	AudioEnabled bool
}

// UsageOf treats absent constraints as enabling both kinds.
func UsageOf(src *MediaStreamConstraints) Usage {
	if src == nil {
		return Usage{VideoEnabled: true, AudioEnabled: true}
	}
	return Usage{
		VideoEnabled: src.Video.Requested(),
		AudioEnabled: src.Audio.Requested(),
	}
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return copyMap(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = copyValue(x[i])
		}
		return out
	default:
		return v
	}
}

// normalize converts map[any]any values left by some YAML decoders.
func normalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[canonicalKey(k)] = normalize(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[canonicalKey(fmt.Sprint(k))] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = normalize(x[i])
		}
		return out
	default:
		return v
	}
}

var knownMembers = func() map[string]string {
	names := []string{
		DeviceIDKey, "groupId", "width", "height", "aspectRatio", "frameRate", "facingMode", "resizeMode",
		"sampleRate", "sampleSize", "channelCount", "latency",
		"echoCancellation", "noiseSuppression", "autoGainControl",
	}
	m := make(map[string]string, len(names))
	for _, n := range names {
		m[strings.ToLower(n)] = n
	}
	return m
}()

func canonicalKey(k string) string {
	if n, ok := knownMembers[strings.ToLower(k)]; ok {
		return n
	}
	return k
}
