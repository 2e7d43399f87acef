package live

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"helmetvision/internal/models"
	"helmetvision/processing/capture"
	"helmetvision/processing/detector"
)

type State int

const (
	CameraOff State = iota
	CameraOn
)

func (s State) String() string {
	if s == CameraOn {
		return "on"
	}
	return "off"
}

const liveFrameName = "live-frame.jpg"

const cameraErrorMessage = "No se pudo acceder a la cámara. Por favor, compruebe los permisos."

// CameraError is the only live failure shown to the user.
type CameraError struct {
	Err error
}

func (e *CameraError) Error() string { return cameraErrorMessage }
func (e *CameraError) Unwrap() error { return e.Err }

type Options struct {
	Interval       time.Duration
	JPEGQuality    int
	RequestTimeout time.Duration
	// DiscardStale drops a response older than one already applied.
	DiscardStale bool
	Clock        clock.Clock
}

type Update struct {
	State      State
	Detections []models.Detection
	InFlight   int
	Err        error
}

type Stats struct {
	FPS      uint
	Latency  time.Duration
	Captures int64
	Failures int64
}

type Opener func() (capture.VideoStreamer, error)

// Processor owns the camera session: the stream, the capture ticker and the
// current detections. Callbacks run on processor goroutines and must not
// block.
type Processor struct {
	opts  Options
	clock clock.Clock
	det   detector.Predictor
	open  Opener
	log   *logrus.Entry

	OnFrame  func(image.Image)
	OnUpdate func(Update)

	mu          sync.Mutex
	sess        *session
	starting    bool
	abortStart  bool
	detections  []models.Detection
	lastApplied uint64

	fps      atomic.Uint32
	latency  atomic.Int64
	captures atomic.Int64
	failures atomic.Int64
	inFlight atomic.Int32
}

type session struct {
	streamer capture.VideoStreamer
	ticker   *clock.Ticker
	stop     chan struct{}
	wg       sync.WaitGroup

	latest atomic.Value
	seq    atomic.Uint64
}

type frameBox struct{ img image.Image }

func NewProcessor(det detector.Predictor, open Opener, opts Options, log *logrus.Entry) *Processor {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = jpeg.DefaultQuality
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	return &Processor{
		opts:  opts,
		clock: opts.Clock,
		det:   det,
		open:  open,
		log:   log,
	}
}

func (p *Processor) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sess == nil {
		return CameraOff
	}
	return CameraOn
}

func (p *Processor) Detections() []models.Detection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Detection(nil), p.detections...)
}

// LatestFrame is the newest frame of the active session, nil when off or
// before the first frame.
func (p *Processor) LatestFrame() image.Image {
	p.mu.Lock()
	s := p.sess
	p.mu.Unlock()

	if s == nil {
		return nil
	}
	if v, ok := s.latest.Load().(frameBox); ok {
		return v.img
	}
	return nil
}

func (p *Processor) Stats() Stats {
	return Stats{
		FPS:      uint(p.fps.Load()),
		Latency:  time.Duration(p.latency.Load()),
		Captures: p.captures.Load(),
		Failures: p.failures.Load(),
	}
}

// SetInterval changes the capture period from the next StartCamera on.
func (p *Processor) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	p.opts.Interval = d
	p.mu.Unlock()
}

// StartCamera opens the configured source and begins periodic capture. It
// is a no-op while a session is active or another start is opening the
// source. The source is opened without holding the lock.
func (p *Processor) StartCamera() error {
	p.mu.Lock()
	if p.sess != nil || p.starting {
		p.mu.Unlock()
		return nil
	}
	p.starting = true
	p.abortStart = false
	p.mu.Unlock()

	streamer, err := p.open()
	if err == nil {
		if err = streamer.Start(); err != nil {
			streamer.Stop()
		}
	}

	p.mu.Lock()
	p.starting = false
	if err != nil {
		p.mu.Unlock()
		p.log.WithError(err).Error("camera unavailable")
		camErr := &CameraError{Err: err}
		p.emit(Update{State: CameraOff, Err: camErr})
		return camErr
	}
	if p.abortStart {
		p.mu.Unlock()
		streamer.Stop()
		p.log.Info("camera start cancelled")
		return nil
	}

	interval := p.opts.Interval
	s := &session{
		streamer: streamer,
		ticker:   p.clock.Ticker(interval),
		stop:     make(chan struct{}),
	}
	p.sess = s
	p.detections = nil
	p.lastApplied = 0
	p.fps.Store(0)

	s.wg.Add(2)
	go p.pump(s)
	go p.tick(s)

	upd := p.updateLocked()
	p.mu.Unlock()

	p.log.WithField("interval", interval).Info("camera started")
	p.emit(upd)
	return nil
}

// StopCamera releases the stream, cancels the ticker and clears the
// detections. Requests already sent are left to finish; their results are
// dropped. A start still opening the source is cancelled.
func (p *Processor) StopCamera() {
	p.mu.Lock()
	s := p.sess
	if s == nil && p.starting {
		p.abortStart = true
	}
	p.mu.Unlock()

	if s != nil {
		p.endSession(s, nil)
	}
}

// Restart reopens the source, picking up changed settings.
func (p *Processor) Restart() error {
	p.StopCamera()
	return p.StartCamera()
}

func (p *Processor) Close() error {
	p.StopCamera()
	return nil
}

func (p *Processor) endSession(s *session, cause error) {
	p.mu.Lock()
	if p.sess != s {
		p.mu.Unlock()
		return
	}
	p.sess = nil
	p.detections = nil

	close(s.stop)
	s.ticker.Stop()
	s.streamer.Stop()

	upd := p.updateLocked()
	upd.Err = cause
	p.mu.Unlock()

	s.wg.Wait()

	p.log.WithField("cause", cause).Info("camera stopped")
	p.emit(upd)
}

func (p *Processor) pump(s *session) {
	defer s.wg.Done()

	frames := s.streamer.FrameChan()
	errs := s.streamer.ErrorChan()

	var frameCount uint32
	lastFpsUpdate := p.clock.Now()

	for {
		select {
		case <-s.stop:
			return

		case frame, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			if frame == nil {
				continue
			}

			s.latest.Store(frameBox{frame})
			if p.OnFrame != nil {
				p.OnFrame(frame)
			}

			frameCount++
			if p.clock.Since(lastFpsUpdate) >= time.Second {
				p.fps.Store(frameCount)
				frameCount = 0
				lastFpsUpdate = p.clock.Now()
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			p.log.WithError(err).Error("camera stream failed")
			go p.endSession(s, &CameraError{Err: err})
			return
		}
	}
}

func (p *Processor) tick(s *session) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stop:
			return
		case <-s.ticker.C:
			select {
			case <-s.stop:
				return
			default:
			}
			p.capture(s)
		}
	}
}

// capture encodes the newest frame and sends it without waiting for the
// answer. Ticks before the first frame are skipped.
func (p *Processor) capture(s *session) {
	v, ok := s.latest.Load().(frameBox)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, v.img, &jpeg.Options{Quality: p.opts.JPEGQuality}); err != nil {
		p.log.WithError(err).Warn("frame encode failed")
		return
	}

	seq := s.seq.Add(1)
	p.captures.Add(1)
	p.inFlight.Add(1)
	p.emitCurrent()

	go p.predict(s, seq, buf.Bytes())
}

func (p *Processor) predict(s *session, seq uint64, data []byte) {
	ctx := context.Background()
	if p.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.RequestTimeout)
		defer cancel()
	}

	start := p.clock.Now()
	res, err := p.det.Predict(ctx, data, liveFrameName)
	p.inFlight.Add(-1)

	if err != nil {
		p.failures.Add(1)
		p.log.WithError(err).WithField("seq", seq).Warn("live prediction failed")
		p.emitCurrent()
		return
	}
	p.latency.Store(int64(p.clock.Since(start)))

	p.mu.Lock()
	if p.sess != s {
		p.mu.Unlock()
		p.log.WithField("seq", seq).Debug("result from closed session dropped")
		return
	}
	if p.opts.DiscardStale && seq < p.lastApplied {
		p.mu.Unlock()
		p.log.WithField("seq", seq).Debug("stale result dropped")
		return
	}
	p.lastApplied = seq
	p.detections = append([]models.Detection(nil), res.Detections()...)
	upd := p.updateLocked()
	p.mu.Unlock()

	p.emit(upd)
}

func (p *Processor) updateLocked() Update {
	st := CameraOff
	if p.sess != nil {
		st = CameraOn
	}
	return Update{
		State:      st,
		Detections: append([]models.Detection(nil), p.detections...),
		InFlight:   int(p.inFlight.Load()),
	}
}

func (p *Processor) emitCurrent() {
	p.mu.Lock()
	upd := p.updateLocked()
	p.mu.Unlock()
	p.emit(upd)
}

func (p *Processor) emit(u Update) {
	if p.OnUpdate != nil {
		p.OnUpdate(u)
	}
}
