package capture

import (
	"fmt"

	config "helmetvision/internal/config"
)

func NewStreamer(t *config.Config) (VideoStreamer, error) {
	switch t.GetSource() {
	case config.SourceWebcam:
		device := t.GetDeviceID()
		if device == "" {
			devices, err := ListCameras()
			if err != nil {
				return nil, fmt.Errorf("list cameras: %w", err)
			}
			device = PickDevice(devices, t.GetFacing())
		}
		if device == "" {
			return nil, fmt.Errorf("no camera found")
		}
		return NewFFmpegWebcam(device, t.GetFPS(), t.GetWidth(), t.GetHeight()), nil
	case config.SourceLocal:
		return NewLocalStreamer(t.GetLocalPath(), t.GetFPS(), t.GetWidth(), t.GetHeight())
	default:
		return nil, fmt.Errorf("unknown source: %s", t.GetSource())
	}
}
