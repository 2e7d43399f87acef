package capture

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"helmetvision/internal/config"
)

// FFmpegWebcamStreamer captures a video-only camera stream. Frames are
// scaled to width x height, which is what the overlay treats as native.
type FFmpegWebcamStreamer struct {
	pipeSource

	deviceName string
	targetFPS  uint
}

func NewFFmpegWebcam(deviceName string, targetFps uint, width int, height int) *FFmpegWebcamStreamer {
	return &FFmpegWebcamStreamer{
		pipeSource: newPipeSource(width, height),
		deviceName: deviceName,
		targetFPS:  targetFps,
	}
}

func (ws *FFmpegWebcamStreamer) stream() *ffmpeg.Stream {
	inArgs := ffmpeg.KwArgs{"video_size": fmt.Sprintf("%dx%d", ws.width, ws.height)}
	input := ws.deviceName

	if runtime.GOOS == "windows" {
		inArgs["f"] = "dshow"
		input = "video=" + ws.deviceName
	} else {
		inArgs["f"] = "v4l2"
	}

	return ffmpeg.Input(input, inArgs).Output("pipe:", ffmpeg.KwArgs{
		"vf":      fmt.Sprintf("fps=%d,scale=%d:%d", ws.targetFPS, ws.width, ws.height),
		"f":       "rawvideo",
		"pix_fmt": "rgba",
		"an":      "",
	})
}

// Args exposes the ffmpeg command line, mostly for logging.
func (ws *FFmpegWebcamStreamer) Args() []string {
	return ws.stream().GetArgs()
}

func (ws *FFmpegWebcamStreamer) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	ws.cancel = cancel

	s := ws.stream()
	s.Context = ctx
	ws.cmd = s.Compile()

	var stderr bytes.Buffer
	ws.cmd.Stderr = &stderr

	stdout, err := ws.cmd.StdoutPipe()
	if err != nil {
		cancel()
		return err
	}

	if err := ws.cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("ffmpeg start error: %w. Details: %s", err, stderr.String())
	}

	go ws.readFrames(stdout, nil)

	return nil
}

var dshowDevice = regexp.MustCompile(`"([^"]+)"\s+\(video\)`)

func ListCameras() ([]string, error) {
	if runtime.GOOS == "windows" {
		cmd := ffmpeg.Input("dummy", ffmpeg.KwArgs{"f": "dshow", "list_devices": "true"}).
			Output("-", ffmpeg.KwArgs{"f": "null"}).Compile()
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		_ = cmd.Run()

		return parseDShowDevices(stderr.String()), nil
	}

	devices, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, err
	}
	sort.Strings(devices)
	return devices, nil
}

func parseDShowDevices(output string) []string {
	var cameras []string
	seen := make(map[string]bool)

	for _, m := range dshowDevice.FindAllStringSubmatch(output, -1) {
		name := m[1]
		if name != "dummy" && !seen[name] {
			cameras = append(cameras, name)
			seen[name] = true
		}
	}
	return cameras
}

var (
	rearHints  = []string{"back", "rear", "environment", "world"}
	frontHints = []string{"front", "user", "facetime", "integrated"}
)

// PickDevice resolves the device to open when none is configured: the first
// device whose name matches the facing, else the first device.
func PickDevice(devices []string, facing string) string {
	if len(devices) == 0 {
		return ""
	}

	var hints []string
	switch facing {
	case config.FacingEnvironment:
		hints = rearHints
	case config.FacingUser:
		hints = frontHints
	}

	for _, d := range devices {
		lower := strings.ToLower(d)
		for _, hint := range hints {
			if strings.Contains(lower, hint) {
				return d
			}
		}
	}
	return devices[0]
}
