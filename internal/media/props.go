package media

import (
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/sirupsen/logrus"

	"rtcstreamer/native/internal/constraint"
)

// trackOption translates a host constraint object into mediadevices
// constraints. Bare numbers are ideal values, objects may carry
// exact/ideal/min/max. Members mediadevices cannot express are skipped.
func trackOption(props map[string]any, deviceID string, log logrus.FieldLogger) mediadevices.MediaOption {
	return func(c *mediadevices.MediaTrackConstraints) {
		for key, v := range props {
			switch key {
			case constraint.DeviceIDKey:
			case "width":
				if ic, ok := intConstraint(v); ok {
					c.Width = ic
				}
			case "height":
				if ic, ok := intConstraint(v); ok {
					c.Height = ic
				}
			case "frameRate":
				if fc, ok := floatConstraint(v); ok {
					c.FrameRate = fc
				}
			case "sampleRate":
				if ic, ok := intConstraint(v); ok {
					c.SampleRate = ic
				}
			case "sampleSize":
				if ic, ok := intConstraint(v); ok {
					c.SampleSize = ic
				}
			case "channelCount":
				if ic, ok := intConstraint(v); ok {
					c.ChannelCount = ic
				}
			case "latency":
				if dc, ok := durationConstraint(v); ok {
					c.Latency = dc
				}
			default:
				log.Debugf("ignoring unsupported constraint %q", key)
			}
		}
		if deviceID != "" {
			c.DeviceID = prop.String(deviceID)
		}
	}
}

type rangeSpec struct {
	exact, ideal, min, max float64
	hasExact               bool
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// parseRange accepts a bare number or an {exact, ideal, min, max} object.
func parseRange(v any) (rangeSpec, bool) {
	if n, ok := toFloat(v); ok {
		return rangeSpec{ideal: n}, true
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return rangeSpec{}, false
	}
	var r rangeSpec
	if n, ok := toFloat(obj["exact"]); ok {
		r.exact, r.hasExact = n, true
	}
	r.ideal, _ = toFloat(obj["ideal"])
	r.min, _ = toFloat(obj["min"])
	r.max, _ = toFloat(obj["max"])
	return r, true
}

func (r rangeSpec) bounded() bool {
	return r.min != 0 || r.max != 0
}

func intConstraint(v any) (prop.IntConstraint, bool) {
	r, ok := parseRange(v)
	if !ok {
		return nil, false
	}
	switch {
	case r.hasExact:
		return prop.IntExact(int(r.exact)), true
	case r.bounded():
		return prop.IntRanged{Min: int(r.min), Max: int(r.max), Ideal: int(r.ideal)}, true
	default:
		return prop.Int(int(r.ideal)), true
	}
}

func floatConstraint(v any) (prop.FloatConstraint, bool) {
	r, ok := parseRange(v)
	if !ok {
		return nil, false
	}
	switch {
	case r.hasExact:
		return prop.FloatExact(float32(r.exact)), true
	case r.bounded():
		return prop.FloatRanged{Min: float32(r.min), Max: float32(r.max), Ideal: float32(r.ideal)}, true
	default:
		return prop.Float(float32(r.ideal)), true
	}
}

// durationConstraint reads seconds, as hosts express latency.
func durationConstraint(v any) (prop.DurationConstraint, bool) {
	r, ok := parseRange(v)
	if !ok {
		return nil, false
	}
	sec := func(f float64) time.Duration { return time.Duration(f * float64(time.Second)) }
	switch {
	case r.hasExact:
		return prop.DurationExact(sec(r.exact)), true
	case r.bounded():
		return prop.DurationRanged{Min: sec(r.min), Max: sec(r.max), Ideal: sec(r.ideal)}, true
	default:
		return prop.Duration(sec(r.ideal)), true
	}
}
