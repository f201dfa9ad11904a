package probes

import (
	"errors"
	"fmt"
)

// Probe error taxonomy. Causes are wrapped so both the class and the
// underlying error match with errors.Is.
var (
	ErrSend               = errors.New("send error")
	ErrInvalidAddress     = errors.New("invalid address")
	ErrTimeout            = errors.New("request timeout")
	ErrPacketConstruction = errors.New("packet construction error")
	ErrPermissionDenied   = errors.New("permission denied: raw sockets require root or CAP_NET_RAW")
	ErrResolution         = errors.New("resolution error")
	ErrOther              = errors.New("error")
)

func wrap(class error, cause error) error {
	if cause == nil {
		return class
	}
	return fmt.Errorf("%w: %w", class, cause)
}
