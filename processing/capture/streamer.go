package capture

import (
	"image"
)

// VideoStreamer is an acquired video source. Frames are native-resolution
// RGBA images. Stop must release the device and is safe to call repeatedly.
type VideoStreamer interface {
	Start() error
	Stop()
	FrameChan() <-chan image.Image
	ErrorChan() <-chan error
}
