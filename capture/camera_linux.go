//go:build linux

package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/blackjack/webcam"
)

func init() {
	RegisterCamera(listV4L2Cameras, openV4L2Camera)
}

func listV4L2Cameras() ([]DeviceInfo, error) {
	paths, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	var devices []DeviceInfo
	for _, p := range paths {
		devices = append(devices, DeviceInfo{
			ID:    p,
			Kind:  KindVideoInput,
			Label: v4l2CardName(p),
		})
	}
	return devices, nil
}

// v4l2CardName reads the kernel-reported card name; the label stays blank
// until the device grants access, matching platform behavior elsewhere.
func v4l2CardName(devPath string) string {
	name := filepath.Join("/sys/class/video4linux", filepath.Base(devPath), "name")
	data, err := os.ReadFile(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func openV4L2Camera(ctx context.Context, deviceID string, res Resolution) (VideoTrack, error) {
	if deviceID == "" {
		cams, err := listV4L2Cameras()
		if err != nil || len(cams) == 0 {
			return nil, ErrDeviceUnavailable
		}
		deviceID = cams[0].ID
	}

	cam, err := webcam.Open(deviceID)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, deviceID)
		}
		return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, deviceID)
	}

	var mjpeg webcam.PixelFormat
	for f, desc := range cam.GetSupportedFormats() {
		if strings.Contains(desc, "JPEG") || strings.Contains(desc, "MJPG") {
			mjpeg = f
			break
		}
	}
	if mjpeg == 0 {
		cam.Close()
		return nil, fmt.Errorf("%w: no MJPEG format on %s", ErrUnsupported, deviceID)
	}

	w, h := res.Size()
	_, gotW, gotH, err := cam.SetImageFormat(mjpeg, uint32(w), uint32(h))
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("%w: %dx%d on %s", ErrOverconstrained, w, h, deviceID)
	}
	if int(gotW) != w || int(gotH) != h {
		// The driver negotiated a different size; that is an
		// overconstrained request, not a silent downgrade.
		cam.Close()
		return nil, fmt.Errorf("%w: got %dx%d, wanted %dx%d", ErrOverconstrained, gotW, gotH, w, h)
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("camera streaming: %w", err)
	}

	stop := make(chan struct{})
	t := &cameraTrack{
		baseVideoTrack: baseVideoTrack{
			label: v4l2CardName(deviceID),
			stopFn: func() {
				close(stop)
			},
		},
	}
	go t.pump(cam, stop)
	return t, nil
}

type cameraTrack struct {
	baseVideoTrack
}

func (t *cameraTrack) pump(cam *webcam.Webcam, stop <-chan struct{}) {
	defer func() {
		cam.StopStreaming()
		cam.Close()
	}()

	misses := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		if err := cam.WaitForFrame(1); err != nil {
			if _, timeout := err.(*webcam.Timeout); timeout {
				continue
			}
			misses++
			if misses > 5 {
				t.end() // device gone
				return
			}
			continue
		}
		raw, err := cam.ReadFrame()
		if err != nil || len(raw) == 0 {
			continue
		}
		misses = 0
		img, err := jpeg.Decode(bytes.NewReader(raw))
		if err != nil {
			continue // torn frame, keep previous
		}
		rgba, ok := img.(*image.RGBA)
		if !ok {
			rgba = image.NewRGBA(img.Bounds())
			draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
		}
		t.publish(rgba, time.Now())
	}
}
