package domain

import (
	"fmt"
	"strings"
)

// Mode selects which media directions a connection attempt negotiates.
type Mode string

const (
	ModeRecvOnly Mode = "RECVONLY"
	ModeSendOnly Mode = "SENDONLY"
	ModeSendRecv Mode = "SENDRECV"
)

// ParseMode accepts any casing of the three mode names.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("invalid mode %q: want RECVONLY, SENDONLY or SENDRECV", s)
	}
	return m, nil
}

func (m Mode) Valid() bool {
	return m == ModeRecvOnly || m == ModeSendOnly || m == ModeSendRecv
}

// Receivable reports whether remote media is expected in this mode.
func (m Mode) Receivable() bool {
	return m == ModeSendRecv || m == ModeRecvOnly
}

// Transmittable reports whether local capture is sent in this mode.
func (m Mode) Transmittable() bool {
	return m == ModeSendRecv || m == ModeSendOnly
}
