//go:build linux

package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dkeye/parley/internal/core"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type deviceSource struct {
	selector *mediadevices.CodecSelector
}

// NewDeviceSource captures through V4L2 and malgo with VP8 and Opus encoders.
func NewDeviceSource() (Source, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 1_000_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	return &deviceSource{
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

func (d *deviceSource) Open(ctx context.Context, video bool) ([]DeviceTrack, error) {
	if len(mediadevices.EnumerateDevices()) == 0 {
		return nil, fmt.Errorf("%w: no devices", core.ErrMediaUnavailable)
	}

	constraints := mediadevices.MediaStreamConstraints{
		Codec: d.selector,
		Audio: func(_ *mediadevices.MediaTrackConstraints) {},
	}
	if video {
		constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
			c.FrameFormat = prop.FrameFormatOneOf{frame.FormatYUYV, frame.FormatI420}
			c.Width = prop.IntRanged{Max: 640}
			c.Height = prop.IntRanged{Max: 480}
		}
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, classify(err)
	}
	tracks := stream.GetTracks()
	if ctx.Err() != nil {
		for _, t := range tracks {
			_ = t.Close()
		}
		return nil, ctx.Err()
	}

	out := make([]DeviceTrack, 0, len(tracks))
	for _, t := range tracks {
		t.OnEnded(func(err error) {
			if err != nil {
				log.Warn().Err(err).Str("module", "capture").Str("track", t.ID()).Msg("track ended")
			}
		})
		out = append(out, deviceTrack{t: t})
	}
	return out, nil
}

func classify(err error) error {
	if errors.Is(err, os.ErrPermission) || strings.Contains(strings.ToLower(err.Error()), "permission") {
		return fmt.Errorf("%w: %v", core.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", core.ErrMediaUnavailable, err)
}

type deviceTrack struct {
	t mediadevices.Track
}

func (d deviceTrack) ID() string { return d.t.ID() }

func (d deviceTrack) Kind() core.TrackKind {
	if d.t.Kind() == webrtc.RTPCodecTypeVideo {
		return core.TrackVideo
	}
	return core.TrackAudio
}

func (d deviceTrack) Close() error { return d.t.Close() }

func (d deviceTrack) TrackLocal() webrtc.TrackLocal { return d.t }
