package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"gocv.io/x/gocv"

	"github.com/cjeanneret/ScopeGo/internal/vision"
)

// maxSnapshotBytes caps the body read from a snapshot server.
const maxSnapshotBytes = 16 << 20

// StreamTimeout bounds opening an RTSP stream and reading one frame from it.
const StreamTimeout = 2 * time.Second

// OpenCV CAP_PROP_OPEN_TIMEOUT_MSEC / CAP_PROP_READ_TIMEOUT_MSEC.
const (
	propOpenTimeoutMsec gocv.VideoCaptureProperties = 53
	propReadTimeoutMsec gocv.VideoCaptureProperties = 54
)

// SnapshotStrategy fetches a still image from an MJPEG server.
type SnapshotStrategy struct {
	client *http.Client
}

func NewSnapshotStrategy(c *http.Client) SnapshotStrategy {
	return SnapshotStrategy{client: c}
}

func (SnapshotStrategy) Name() string { return "snapshot" }

func (SnapshotStrategy) Applies(d *Device) bool {
	return d.Transport == TransportMJPEG && d.VideoPort > 0
}

func (s SnapshotStrategy) Grab(ctx context.Context, d *Device) (*vision.Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.SnapshotURL(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return vision.DecodeFrame(data)
}

// StreamStrategy opens the RTSP endpoint, reads one frame and closes it.
type StreamStrategy struct{}

func (StreamStrategy) Name() string { return "stream" }

func (StreamStrategy) Applies(d *Device) bool {
	return d.Transport == TransportRTSP && d.RTSPPort > 0
}

func (StreamStrategy) Grab(ctx context.Context, d *Device) (*vision.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ms := gocv.VideoCaptureProperties(StreamTimeout.Milliseconds())
	vc, err := gocv.OpenVideoCaptureWithAPIParams(d.StreamURL(), gocv.VideoCaptureFFmpeg,
		[]gocv.VideoCaptureProperties{propOpenTimeoutMsec, ms, propReadTimeoutMsec, ms})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.StreamURL(), err)
	}
	return readFrames(ctx, vc, d.StreamURL(), 0)
}

// DeviceStrategy reads the local device directly, dropping the first frames
// while auto-exposure settles.
type DeviceStrategy struct{}

func (DeviceStrategy) Name() string { return "device" }

func (DeviceStrategy) Applies(d *Device) bool {
	return d.DevicePath != ""
}

func (DeviceStrategy) Grab(ctx context.Context, d *Device) (*vision.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vc, err := gocv.OpenVideoCapture(d.DevicePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.DevicePath, err)
	}
	return readFrames(ctx, vc, d.DevicePath, d.WarmupFrames)
}

// readFrames discards skip frames of vc, returns the next one and closes vc.
func readFrames(ctx context.Context, vc *gocv.VideoCapture, src string, skip int) (*vision.Frame, error) {
	defer vc.Close()
	if !vc.IsOpened() {
		return nil, fmt.Errorf("open %s: not opened", src)
	}

	m := gocv.NewMat()
	for i := 0; i < skip; i++ {
		if err := ctx.Err(); err != nil {
			m.Close()
			return nil, err
		}
		vc.Read(&m)
	}
	if ok := vc.Read(&m); !ok || m.Empty() {
		m.Close()
		return nil, errors.New("read frame failed")
	}
	return vision.NewFrame(m)
}
