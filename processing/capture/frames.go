package capture

import (
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"
	"sync"
	"time"
)

const bytesPerPixel = 4

// pipeSource is the lifecycle shared by the ffmpeg backed streamers: one
// child process writing raw RGBA frames to stdout.
type pipeSource struct {
	stopOnce sync.Once

	width  int
	height int

	cancel    context.CancelFunc
	cmd       *exec.Cmd
	frameChan chan image.Image
	errChan   chan error
	stopChan  chan struct{}
}

func newPipeSource(width, height int) pipeSource {
	return pipeSource{
		width:     width,
		height:    height,
		frameChan: make(chan image.Image, 1),
		errChan:   make(chan error, 1),
		stopChan:  make(chan struct{}),
	}
}

// readFrames copies frames until stop or a read error. With a non-nil pace
// every frame waits for a tick; otherwise frames nobody picked up are dropped.
func (s *pipeSource) readFrames(stdout io.ReadCloser, pace <-chan time.Time) {
	defer close(s.frameChan)
	defer close(s.errChan)
	defer stdout.Close()
	defer s.stopCmdOut()

	frameSize := s.width * s.height * bytesPerPixel
	buffer := make([]byte, frameSize)

	for {
		if pace != nil {
			select {
			case <-s.stopChan:
				return
			case <-pace:
			}
		}

		if _, err := io.ReadFull(stdout, buffer); err != nil {
			select {
			case <-s.stopChan:
			default:
				s.errChan <- fmt.Errorf("read error: %w", err)
			}
			return
		}

		pixelData := make([]byte, len(buffer))
		copy(pixelData, buffer)

		img := &image.RGBA{
			Pix:    pixelData,
			Stride: s.width * bytesPerPixel,
			Rect:   image.Rect(0, 0, s.width, s.height),
		}

		if pace != nil {
			select {
			case s.frameChan <- img:
			case <-s.stopChan:
				return
			}
			continue
		}

		select {
		case s.frameChan <- img:
		case <-s.stopChan:
			return
		default:
		}
	}
}

func (s *pipeSource) stopCmdOut() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
}

func (s *pipeSource) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		if s.cancel != nil {
			s.cancel()
		}
	})
}

func (s *pipeSource) FrameChan() <-chan image.Image { return s.frameChan }
func (s *pipeSource) ErrorChan() <-chan error       { return s.errChan }
