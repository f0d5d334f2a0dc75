//go:build !linux

package capture

import (
	"context"
	"fmt"

	"github.com/dkeye/parley/internal/core"
)

type unavailableSource struct{}

// NewDeviceSource has no hardware drivers outside linux; every Open reports
// ErrMediaUnavailable.
func NewDeviceSource() (Source, error) { return unavailableSource{}, nil }

func (unavailableSource) Open(context.Context, bool) ([]DeviceTrack, error) {
	return nil, fmt.Errorf("%w: capture is not supported on this platform", core.ErrMediaUnavailable)
}
