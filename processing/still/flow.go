package still

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync"

	"github.com/nfnt/resize"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"helmetvision/internal/models"
	"helmetvision/processing/detector"
)

type State int

const (
	Idle State = iota
	FileSelected
	Predicting
	Resulted
	Errored
)

var stateNames = map[State]string{
	Idle:         "idle",
	FileSelected: "file-selected",
	Predicting:   "predicting",
	Resulted:     "resulted",
	Errored:      "errored",
}

func (s State) String() string { return stateNames[s] }

// ErrNotReady is returned by Predict when no file is held or a prediction
// is still running, including one started for an earlier selection.
var ErrNotReady = errors.New("no image ready for prediction")

const previewMaxSide = 480

// File is an image picked by the user. MIMEType is the declared type.
type File struct {
	Name     string
	MIMEType string
	Size     int64
	Data     []byte
}

// Preview is the decoded thumbnail shown while a file is selected. Image is
// nil when the format could not be decoded locally.
type Preview struct {
	mu       sync.Mutex
	img      image.Image
	released bool
}

func newPreview(data []byte) *Preview {
	p := &Preview{}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		p.img = resize.Thumbnail(previewMaxSide, previewMaxSide, img, resize.Lanczos3)
	}
	return p
}

func (p *Preview) Image() image.Image {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.img
}

func (p *Preview) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.img = nil
	p.released = true
}

func (p *Preview) Released() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

// Snapshot is what the view renders. Err is the banner text, empty when
// there is none.
type Snapshot struct {
	State    State
	FileName string
	Preview  *Preview
	Result   *models.DetectionResult
	Err      string
	Loading  bool
}

// Flow is the still image state machine. The selected file, its preview and
// the last result are only changed through SelectFile, Predict and Clear.
type Flow struct {
	det detector.Predictor
	log *logrus.Entry

	OnChange func(Snapshot)

	mu      sync.Mutex
	state   State
	file    *File
	preview *Preview
	result  *models.DetectionResult
	err     string
	gen     uint64

	// inFlight outlives selection changes: a request keeps blocking new
	// predictions until it settles, even if its result will be dropped.
	inFlight bool
}

func NewFlow(det detector.Predictor, log *logrus.Entry) *Flow {
	return &Flow{det: det, log: log}
}

func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Flow) snapshotLocked() Snapshot {
	s := Snapshot{
		State:   f.state,
		Preview: f.preview,
		Result:  f.result,
		Err:     f.err,
		Loading: f.inFlight,
	}
	if f.file != nil {
		s.FileName = f.file.Name
	}
	return s
}

// SelectFile validates file and makes it the current selection. On a
// validation failure the selection is kept and the error is shown.
func (f *Flow) SelectFile(file File) error {
	if err := detector.ValidateImage(file.MIMEType, file.Size); err != nil {
		f.mu.Lock()
		f.err = err.Error()
		snap := f.snapshotLocked()
		f.mu.Unlock()

		f.log.WithField("file", file.Name).WithError(err).Info("file rejected")
		f.notify(snap)
		return err
	}

	preview := newPreview(file.Data)

	f.mu.Lock()
	if f.preview != nil {
		f.preview.Release()
	}
	f.file = &file
	f.preview = preview
	f.result = nil
	f.err = ""
	f.state = FileSelected
	f.gen++
	snap := f.snapshotLocked()
	f.mu.Unlock()

	f.notify(snap)
	return nil
}

func (f *Flow) CanPredict() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canPredictLocked()
}

// A result or error keeps the file selected, so detection can be rerun.
func (f *Flow) canPredictLocked() bool {
	if f.file == nil || f.inFlight {
		return false
	}
	switch f.state {
	case FileSelected, Resulted, Errored:
		return true
	}
	return false
}

// Predict sends the selected file and blocks until the answer. A result for
// a selection that changed meanwhile is dropped.
func (f *Flow) Predict(ctx context.Context) error {
	f.mu.Lock()
	if !f.canPredictLocked() {
		f.mu.Unlock()
		return ErrNotReady
	}
	file := f.file
	gen := f.gen
	f.state = Predicting
	f.inFlight = true
	f.err = ""
	f.result = nil
	snap := f.snapshotLocked()
	f.mu.Unlock()
	f.notify(snap)

	res, err := f.det.Predict(ctx, file.Data, file.Name)

	f.mu.Lock()
	f.inFlight = false
	if f.gen != gen {
		snap = f.snapshotLocked()
		f.mu.Unlock()
		f.log.WithField("file", file.Name).Debug("result for replaced selection dropped")
		f.notify(snap)
		return nil
	}
	if err != nil {
		f.state = Errored
		f.err = err.Error()
		f.log.WithField("file", file.Name).WithError(err).Warn("prediction failed")
	} else {
		f.state = Resulted
		f.result = res
	}
	snap = f.snapshotLocked()
	f.mu.Unlock()

	f.notify(snap)
	return err
}

// Clear drops the selection, releases the preview and returns to Idle.
func (f *Flow) Clear() {
	f.mu.Lock()
	if f.preview != nil {
		f.preview.Release()
	}
	f.file = nil
	f.preview = nil
	f.result = nil
	f.err = ""
	f.state = Idle
	f.gen++
	snap := f.snapshotLocked()
	f.mu.Unlock()

	f.notify(snap)
}

func (f *Flow) notify(s Snapshot) {
	if f.OnChange != nil {
		f.OnChange(s)
	}
}
