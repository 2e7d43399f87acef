package live

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"helmetvision/internal/logger"
	"helmetvision/internal/models"
	"helmetvision/processing/capture"
)

type fakeStreamer struct {
	startErr error
	frames   chan image.Image
	errs     chan error

	stopOnce sync.Once
	stopped  atomic.Int32
}

func newFakeStreamer() *fakeStreamer {
	return &fakeStreamer{
		frames: make(chan image.Image, 4),
		errs:   make(chan error, 1),
	}
}

func (f *fakeStreamer) Start() error { return f.startErr }
func (f *fakeStreamer) Stop() {
	f.stopOnce.Do(func() { f.stopped.Add(1) })
}
func (f *fakeStreamer) FrameChan() <-chan image.Image { return f.frames }
func (f *fakeStreamer) ErrorChan() <-chan error       { return f.errs }

type call struct {
	data  []byte
	reply chan reply
}

type reply struct {
	res *models.DetectionResult
	err error
}

// gatedPredictor hands every request to the test and blocks until answered.
type gatedPredictor struct {
	calls chan *call
	count atomic.Int32
}

func newGatedPredictor() *gatedPredictor {
	return &gatedPredictor{calls: make(chan *call, 16)}
}

func (g *gatedPredictor) Predict(ctx context.Context, img []byte, filename string) (*models.DetectionResult, error) {
	g.count.Add(1)
	c := &call{data: img, reply: make(chan reply, 1)}
	g.calls <- c
	r := <-c.reply
	return r.res, r.err
}

func (g *gatedPredictor) next(t *testing.T) *call {
	t.Helper()
	select {
	case c := <-g.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no prediction request")
		return nil
	}
}

func resultWith(class models.Class, conf float64) *models.DetectionResult {
	return &models.DetectionResult{
		Prediction: models.PredictionWearingHelmet,
		RawDetections: &models.RawDetections{
			TotalDetections: 1,
			AllDetections:   []models.Detection{{Class: class, Confidence: conf, BBox: []float64{10, 20, 110, 220}}},
		},
	}
}

type harness struct {
	proc     *Processor
	mock     *clock.Mock
	pred     *gatedPredictor
	streamer *fakeStreamer
	opened   atomic.Int32

	mu      sync.Mutex
	updates []Update
}

func newHarness(t *testing.T, discardStale bool) *harness {
	t.Helper()
	h := &harness{
		mock:     clock.NewMock(),
		pred:     newGatedPredictor(),
		streamer: newFakeStreamer(),
	}
	open := func() (capture.VideoStreamer, error) {
		h.opened.Add(1)
		return h.streamer, nil
	}
	h.proc = NewProcessor(h.pred, open, Options{
		Interval:     time.Second,
		DiscardStale: discardStale,
		Clock:        h.mock,
	}, logger.Discard())
	h.proc.OnUpdate = func(u Update) {
		h.mu.Lock()
		h.updates = append(h.updates, u)
		h.mu.Unlock()
	}
	t.Cleanup(h.proc.StopCamera)
	return h
}

func (h *harness) lastUpdate() Update {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.updates[len(h.updates)-1]
}

// startWithFrame turns the camera on and waits until a frame is playing.
func (h *harness) startWithFrame(t *testing.T) {
	t.Helper()
	require.NoError(t, h.proc.StartCamera())
	h.streamer.frames <- image.NewRGBA(image.Rect(0, 0, 64, 36))
	require.Eventually(t, func() bool { return h.proc.LatestFrame() != nil }, time.Second, 5*time.Millisecond)
}

func TestStartCamera_FailureStaysOff(t *testing.T) {
	streamer := newFakeStreamer()
	streamer.startErr = errors.New("permission denied")

	p := NewProcessor(newGatedPredictor(), func() (capture.VideoStreamer, error) { return streamer, nil }, Options{Clock: clock.NewMock()}, logger.Discard())

	var got Update
	p.OnUpdate = func(u Update) { got = u }

	err := p.StartCamera()
	var camErr *CameraError
	require.ErrorAs(t, err, &camErr)
	require.Equal(t, cameraErrorMessage, err.Error())
	require.Equal(t, CameraOff, p.State())
	require.Equal(t, int32(1), streamer.stopped.Load())
	require.ErrorAs(t, got.Err, &camErr)
}

func TestStartCamera_OpenFailure(t *testing.T) {
	p := NewProcessor(newGatedPredictor(), func() (capture.VideoStreamer, error) {
		return nil, errors.New("no camera found")
	}, Options{Clock: clock.NewMock()}, logger.Discard())

	var camErr *CameraError
	require.ErrorAs(t, p.StartCamera(), &camErr)
	require.Equal(t, CameraOff, p.State())
}

func TestStartCamera_TwiceOpensOneStream(t *testing.T) {
	h := newHarness(t, false)

	require.NoError(t, h.proc.StartCamera())
	require.NoError(t, h.proc.StartCamera())

	require.Equal(t, int32(1), h.opened.Load())
	require.Equal(t, CameraOn, h.proc.State())
}

func TestTick_SkipsWhenNotPlaying(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.proc.StartCamera())

	h.mock.Add(time.Second)
	h.mock.Add(time.Second)

	require.Never(t, func() bool { return h.pred.count.Load() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	require.Zero(t, h.proc.Stats().Captures)
}

func TestTick_OneCapturePerInterval(t *testing.T) {
	h := newHarness(t, false)
	h.startWithFrame(t)

	h.mock.Add(999 * time.Millisecond)
	require.Never(t, func() bool { return h.pred.count.Load() > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	h.mock.Add(time.Millisecond)
	c := h.pred.next(t)
	require.NotEmpty(t, c.data)
	c.reply <- reply{res: resultWith(models.ClassWithHelmet, 87.4)}

	require.Eventually(t, func() bool { return len(h.proc.Detections()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, int32(1), h.pred.count.Load())

	h.mock.Add(time.Second)
	h.pred.next(t).reply <- reply{res: resultWith(models.ClassWithHelmet, 90)}
	require.Eventually(t, func() bool { return h.proc.Stats().Captures == 2 }, time.Second, 5*time.Millisecond)
}

func TestTick_DoesNotWaitForInFlight(t *testing.T) {
	h := newHarness(t, false)
	h.startWithFrame(t)

	h.mock.Add(time.Second)
	first := h.pred.next(t)
	h.mock.Add(time.Second)
	second := h.pred.next(t)

	require.Equal(t, int32(2), h.proc.inFlight.Load())

	first.reply <- reply{res: resultWith(models.ClassWithHelmet, 50)}
	second.reply <- reply{res: resultWith(models.ClassWithHelmet, 60)}
	require.Eventually(t, func() bool { return h.proc.inFlight.Load() == 0 }, time.Second, 5*time.Millisecond)
}

func TestResults_LastToResolveWins(t *testing.T) {
	h := newHarness(t, false)
	h.startWithFrame(t)

	h.mock.Add(time.Second)
	older := h.pred.next(t)
	h.mock.Add(time.Second)
	newer := h.pred.next(t)

	newer.reply <- reply{res: resultWith(models.ClassWithoutHelmet, 70)}
	require.Eventually(t, func() bool {
		d := h.proc.Detections()
		return len(d) == 1 && d[0].Class == models.ClassWithoutHelmet
	}, time.Second, 5*time.Millisecond)

	older.reply <- reply{res: resultWith(models.ClassWithHelmet, 40)}
	require.Eventually(t, func() bool {
		d := h.proc.Detections()
		return len(d) == 1 && d[0].Class == models.ClassWithHelmet
	}, time.Second, 5*time.Millisecond)
}

func TestResults_DiscardStale(t *testing.T) {
	h := newHarness(t, true)
	h.startWithFrame(t)

	h.mock.Add(time.Second)
	older := h.pred.next(t)
	h.mock.Add(time.Second)
	newer := h.pred.next(t)

	newer.reply <- reply{res: resultWith(models.ClassWithoutHelmet, 70)}
	require.Eventually(t, func() bool { return len(h.proc.Detections()) == 1 }, time.Second, 5*time.Millisecond)

	older.reply <- reply{res: resultWith(models.ClassWithHelmet, 40)}
	require.Eventually(t, func() bool { return h.proc.inFlight.Load() == 0 }, time.Second, 5*time.Millisecond)
	require.Equal(t, models.ClassWithoutHelmet, h.proc.Detections()[0].Class)
}

func TestTickFailure_IsSwallowed(t *testing.T) {
	h := newHarness(t, false)
	h.startWithFrame(t)

	h.mock.Add(time.Second)
	h.pred.next(t).reply <- reply{err: errors.New("502 bad gateway")}

	require.Eventually(t, func() bool { return h.proc.Stats().Failures == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, CameraOn, h.proc.State())
	require.NoError(t, h.lastUpdate().Err)
}

func TestStopCamera_ReleasesAndStopsTicking(t *testing.T) {
	h := newHarness(t, false)
	h.startWithFrame(t)

	h.mock.Add(time.Second)
	h.pred.next(t).reply <- reply{res: resultWith(models.ClassWithHelmet, 87.4)}
	require.Eventually(t, func() bool { return len(h.lastUpdate().Detections) == 1 }, time.Second, 5*time.Millisecond)

	h.proc.StopCamera()
	require.Equal(t, CameraOff, h.proc.State())
	require.Empty(t, h.proc.Detections())
	require.Equal(t, int32(1), h.streamer.stopped.Load())

	last := h.lastUpdate()
	require.Equal(t, CameraOff, last.State)
	require.Empty(t, last.Detections)

	before := h.pred.count.Load()
	for i := 0; i < 3; i++ {
		h.mock.Add(time.Second)
	}
	require.Never(t, func() bool { return h.pred.count.Load() != before }, 50*time.Millisecond, 5*time.Millisecond)

	h.proc.StopCamera()
	require.Equal(t, int32(1), h.streamer.stopped.Load())
}

func TestStopCamera_InFlightResultDiscarded(t *testing.T) {
	h := newHarness(t, false)
	h.startWithFrame(t)

	h.mock.Add(time.Second)
	pending := h.pred.next(t)

	h.proc.StopCamera()
	pending.reply <- reply{res: resultWith(models.ClassWithHelmet, 99)}

	require.Eventually(t, func() bool { return h.proc.inFlight.Load() == 0 }, time.Second, 5*time.Millisecond)
	require.Empty(t, h.proc.Detections())
	require.Equal(t, CameraOff, h.proc.State())
}

func TestStreamError_EndsSession(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.proc.StartCamera())

	h.streamer.errs <- errors.New("read error: EOF")

	require.Eventually(t, func() bool { return h.proc.State() == CameraOff }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		var camErr *CameraError
		return errors.As(h.lastUpdate().Err, &camErr)
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, int32(1), h.streamer.stopped.Load())
}

func TestRestart_OpensNewStream(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.proc.StartCamera())
	require.NoError(t, h.proc.Restart())

	require.Equal(t, int32(2), h.opened.Load())
	require.Equal(t, CameraOn, h.proc.State())
}

func TestSetInterval_AppliesOnNextStart(t *testing.T) {
	h := newHarness(t, false)
	h.proc.SetInterval(2 * time.Second)
	h.startWithFrame(t)

	h.mock.Add(time.Second)
	require.Never(t, func() bool { return h.pred.count.Load() > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	h.mock.Add(time.Second)
	h.pred.next(t).reply <- reply{res: resultWith(models.ClassWithHelmet, 70)}
	require.Eventually(t, func() bool { return h.proc.Stats().Captures == 1 }, time.Second, 5*time.Millisecond)
}

// gateOpener makes the next open block until the returned channel closes.
func (h *harness) gateOpener() chan struct{} {
	gate := make(chan struct{})
	h.proc.open = func() (capture.VideoStreamer, error) {
		h.opened.Add(1)
		<-gate
		return h.streamer, nil
	}
	return gate
}

func TestStartCamera_OpenDoesNotBlockReaders(t *testing.T) {
	h := newHarness(t, false)
	gate := h.gateOpener()

	started := make(chan error, 1)
	go func() { started <- h.proc.StartCamera() }()
	require.Eventually(t, func() bool { return h.opened.Load() == 1 }, time.Second, 5*time.Millisecond)

	read := make(chan State, 1)
	go func() {
		_ = h.proc.Detections()
		_ = h.proc.LatestFrame()
		read <- h.proc.State()
	}()
	select {
	case st := <-read:
		require.Equal(t, CameraOff, st)
	case <-time.After(time.Second):
		t.Fatal("reader blocked while the source was opening")
	}

	require.NoError(t, h.proc.StartCamera())
	require.Equal(t, int32(1), h.opened.Load())

	close(gate)
	require.NoError(t, <-started)
	require.Equal(t, CameraOn, h.proc.State())
	require.Equal(t, int32(1), h.opened.Load())
}

func TestStopCamera_CancelsPendingStart(t *testing.T) {
	h := newHarness(t, false)
	gate := h.gateOpener()

	started := make(chan error, 1)
	go func() { started <- h.proc.StartCamera() }()
	require.Eventually(t, func() bool { return h.opened.Load() == 1 }, time.Second, 5*time.Millisecond)

	h.proc.StopCamera()
	close(gate)

	require.NoError(t, <-started)
	require.Equal(t, CameraOff, h.proc.State())
	require.Equal(t, int32(1), h.streamer.stopped.Load())
}
