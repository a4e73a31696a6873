// Package camera acquires grayscale frames from the cameras attached to the
// mount. A camera is plain data (Device); Source tries the transports that
// apply to it until one yields a frame.
package camera

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cjeanneret/ScopeGo/internal/config"
)

// Transport is how a camera is reachable.
type Transport string

const (
	TransportMJPEG  Transport = "mjpeg"  // HTTP server with ?action=snapshot
	TransportRTSP   Transport = "rtsp"   // RTSP endpoint
	TransportDevice Transport = "device" // local V4L2 device only
)

// Device describes one physical camera and how to reach it.
type Device struct {
	Name           string
	Model          string
	Transport      Transport
	Host           string
	VideoPort      int
	RTSPPort       int
	RTSPPath       string
	DevicePath     string // e.g. /dev/video0; empty when unknown
	WarmupFrames   int
	GuideRotate180 bool
}

// FromConfig builds a Device from its configuration entry.
func FromConfig(c config.CameraConfig) Device {
	return Device{
		Name:           c.Name,
		Model:          c.Model,
		Transport:      Transport(c.Transport),
		Host:           c.Host,
		VideoPort:      c.VideoPort,
		RTSPPort:       c.RTSPPort,
		RTSPPath:       c.RTSPPath,
		DevicePath:     c.Device,
		WarmupFrames:   c.WarmupFrames,
		GuideRotate180: c.GuideRotate180,
	}
}

// SnapshotURL is the single-image URL of an MJPEG server.
func (d *Device) SnapshotURL() string {
	return fmt.Sprintf("http://%s:%d/?action=snapshot", d.Host, d.VideoPort)
}

// StreamURL is the RTSP URL of the camera.
func (d *Device) StreamURL() string {
	return fmt.Sprintf("rtsp://%s:%d/%s", d.Host, d.RTSPPort, strings.TrimPrefix(d.RTSPPath, "/"))
}

// DisplayName is what status reports show instead of the device itself.
func (d *Device) DisplayName() string {
	if d == nil {
		return ""
	}
	if d.Model != "" {
		return fmt.Sprintf("%s (%s)", d.Name, d.Model)
	}
	return d.Name
}

// Registry resolves configured cameras by name, ignoring case.
type Registry struct {
	byName map[string]*Device
}

func NewRegistry(devs ...Device) *Registry {
	r := &Registry{byName: make(map[string]*Device, len(devs))}
	for i := range devs {
		d := devs[i]
		r.byName[strings.ToLower(d.Name)] = &d
	}
	return r
}

// Lookup returns the camera called name.
func (r *Registry) Lookup(name string) (*Device, bool) {
	d, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// Names returns the configured camera names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for _, d := range r.byName {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return names
}
