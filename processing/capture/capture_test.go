package capture

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"helmetvision/internal/config"
)

func TestPickDevice(t *testing.T) {
	require.Equal(t, "", PickDevice(nil, "environment"))
	require.Equal(t, "/dev/video0", PickDevice([]string{"/dev/video0", "/dev/video1"}, "environment"))
	require.Equal(t, "Rear Camera", PickDevice([]string{"Front Camera", "Rear Camera"}, "environment"))
	require.Equal(t, "Front Camera", PickDevice([]string{"Front Camera", "Rear Camera"}, "user"))
	require.Equal(t, "Integrated Webcam", PickDevice([]string{"USB Capture", "Integrated Webcam"}, config.FacingUser))
	require.Equal(t, "USB Capture", PickDevice([]string{"USB Capture", "Rear Camera"}, config.FacingUser))
	require.Equal(t, "Rear Camera", PickDevice([]string{"Rear Camera", "Front Camera"}, ""), "unset facing keeps device order")
}

func TestParseDShowDevices(t *testing.T) {
	out := `[dshow @ 000001] "Integrated Webcam" (video)
[dshow @ 000001]   Alternative name "@device_pnp_\\?\usb"
[dshow @ 000001] "Microphone" (audio)
[dshow @ 000001] "Integrated Webcam" (video)
[dshow @ 000001] "OBS Virtual Camera" (video)`

	require.Equal(t, []string{"Integrated Webcam", "OBS Virtual Camera"}, parseDShowDevices(out))
}

func TestParseProbe(t *testing.T) {
	w, h, err := parseProbe(`{"streams":[{"width":1920,"height":1080}]}`)
	require.NoError(t, err)
	require.Equal(t, 1920, w)
	require.Equal(t, 1080, h)

	_, _, err = parseProbe(`{"streams":[]}`)
	require.Error(t, err)
}

func TestWebcamArgs(t *testing.T) {
	args := strings.Join(NewFFmpegWebcam("/dev/video0", 24, 1280, 720).Args(), " ")
	require.Contains(t, args, "-video_size 1280x720")
	require.Contains(t, args, "fps=24,scale=1280:720")
	require.Contains(t, args, "-pix_fmt rgba")
	require.Contains(t, args, "pipe:")
}

func TestNewStreamer_UnknownSource(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.SetSource("YouTube")
	_, err := NewStreamer(cfg)
	require.Error(t, err)
}

func TestNewStreamer_ConfiguredWebcam(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.SetDeviceID("/dev/video3")
	s, err := NewStreamer(cfg)
	require.NoError(t, err)
	require.Equal(t, "/dev/video3", s.(*FFmpegWebcamStreamer).deviceName)
}

func TestPipeSource_ReadFramesUntilEOF(t *testing.T) {
	src := newPipeSource(2, 2)
	frame := bytes.Repeat([]byte{1, 2, 3, 4}, 4)
	pace := make(chan time.Time)

	go src.readFrames(io.NopCloser(bytes.NewReader(append(frame, frame...))), pace)

	for i := 0; i < 2; i++ {
		pace <- time.Now()
		img := <-src.FrameChan()
		require.Equal(t, 2, img.Bounds().Dx())
		require.Equal(t, 2, img.Bounds().Dy())
	}

	pace <- time.Now()
	err, ok := <-src.ErrorChan()
	require.True(t, ok)
	require.ErrorIs(t, err, io.EOF)

	_, ok = <-src.FrameChan()
	require.False(t, ok)
}

func TestPipeSource_StopIsIdempotent(t *testing.T) {
	src := newPipeSource(2, 2)
	src.Stop()
	src.Stop()

	select {
	case <-src.stopChan:
	default:
		t.Fatal("stop channel not closed")
	}
}
