//go:build !cgo

package codecs

import "github.com/pion/mediadevices"

// DefaultCodecSelector has no encoders without cgo; capture is unavailable.
func DefaultCodecSelector() (*mediadevices.CodecSelector, error) {
	return nil, nil
}
