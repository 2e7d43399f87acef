package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

const standardFps uint = 30

// LocalFileStreamer replays a video file in a loop at targetFPS so the live
// tab can run without a physical camera.
type LocalFileStreamer struct {
	pipeSource

	path      string
	targetFPS uint
}

func NewLocalStreamer(path string, targetFPS uint, width int, height int) (*LocalFileStreamer, error) {
	// Fail before Start when the file has no decodable video stream.
	if _, _, err := probeVideoDimensions(path); err != nil {
		return nil, fmt.Errorf("failed to probe video: %w", err)
	}
	if targetFPS == 0 {
		targetFPS = standardFps
	}

	return &LocalFileStreamer{
		pipeSource: newPipeSource(width, height),
		path:       path,
		targetFPS:  targetFPS,
	}, nil
}

func (ls *LocalFileStreamer) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	ls.cancel = cancel

	s := ffmpeg.Input(ls.path, ffmpeg.KwArgs{"stream_loop": -1}).
		Output("pipe:", ffmpeg.KwArgs{
			"vf":      fmt.Sprintf("fps=%d,scale=%d:%d:flags=neighbor", ls.targetFPS, ls.width, ls.height),
			"f":       "rawvideo",
			"pix_fmt": "rgba",
			"an":      "",
		})
	s.Context = ctx
	ls.cmd = s.Compile()

	stdout, err := ls.cmd.StdoutPipe()
	if err != nil {
		cancel()
		return err
	}

	if err := ls.cmd.Start(); err != nil {
		cancel()
		return err
	}

	ticker := time.NewTicker(time.Second / time.Duration(ls.targetFPS))
	go func() {
		defer ticker.Stop()
		ls.readFrames(stdout, ticker.C)
	}()

	return nil
}

type probeData struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
}

func probeVideoDimensions(path string) (int, int, error) {
	out, err := ffmpeg.Probe(path, ffmpeg.KwArgs{
		"select_streams": "v:0",
		"show_entries":   "stream=width,height",
	})
	if err != nil {
		return 0, 0, err
	}
	return parseProbe(out)
}

func parseProbe(out string) (int, int, error) {
	var data probeData
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		return 0, 0, err
	}

	if len(data.Streams) == 0 {
		return 0, 0, fmt.Errorf("no video streams found")
	}

	return data.Streams[0].Width, data.Streams[0].Height, nil
}
