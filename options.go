package uvc

import (
	"log"
	"time"
)

// Option configures a Device at open time.
type Option func(*Device)

// WithLogger directs the device's diagnostic output (transfer resubmission
// after a timeout, stall or overflow) to logger instead of the default,
// which discards it.
func WithLogger(logger *log.Logger) Option {
	return func(d *Device) { d.logger = logger }
}

// WithControlTimeout overrides the default timeout used for probe/commit
// and control-interface queries.
func WithControlTimeout(timeout time.Duration) Option {
	return func(d *Device) { d.controlTimeout = timeout }
}

// StreamOption configures a Stream at start time.
type StreamOption func(*streamConfig)

type streamConfig struct {
	numTransferBufs int
}

const defaultNumTransferBufs = 10

func newStreamConfig() *streamConfig {
	return &streamConfig{numTransferBufs: defaultNumTransferBufs}
}

// WithNumTransferBufs sets the depth of the isochronous/bulk transfer ring.
// The default matches libuvc's LIBUVC_NUM_TRANSFER_BUFS (10).
func WithNumTransferBufs(n int) StreamOption {
	return func(c *streamConfig) {
		if n > 0 {
			c.numTransferBufs = n
		}
	}
}
