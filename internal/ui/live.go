package ui

import (
	"fmt"
	"image"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"helmetvision/processing/live"
	"helmetvision/processing/overlay"
)

type liveTab struct {
	win  fyne.Window
	proc *live.Processor

	renderer       *overlay.Renderer
	videoRedraw    *overlay.Scheduler
	overlayRedraw  *overlay.Scheduler
	overlayDisplay overlay.Size
	overlayNative  overlay.Size

	videoCanvas   *canvas.Image
	overlayCanvas *canvas.Image
	prompt        *fyne.Container

	toggleBtn *widget.Button
	progress  *widget.ProgressBarInfinite

	errorText *widget.Label
	errorBox  *fyne.Container

	latencyLabel *widget.Label
	fpsLabel     *widget.Label
}

func newLiveTab(win fyne.Window, proc *live.Processor) *liveTab {
	t := &liveTab{
		win:      win,
		proc:     proc,
		renderer: overlay.NewRenderer(),
	}
	t.videoRedraw = overlay.NewScheduler(fyne.Do, t.drawVideo)
	t.overlayRedraw = overlay.NewScheduler(fyne.Do, t.drawOverlay)

	// The overlay is stretched over the video the same way, so boxes
	// scaled per axis stay aligned with the frame.
	t.videoCanvas = canvas.NewImageFromImage(nil)
	t.videoCanvas.FillMode = canvas.ImageFillStretch
	t.videoCanvas.SetMinSize(fyne.NewSize(640, 360))

	t.overlayCanvas = canvas.NewImageFromImage(nil)
	t.overlayCanvas.FillMode = canvas.ImageFillStretch

	t.prompt = container.NewCenter(container.NewVBox(
		widget.NewIcon(theme.MediaVideoIcon()),
		widget.NewLabel("Inicia la cámara para la detección en vivo"),
	))

	t.toggleBtn = widget.NewButtonWithIcon("", nil, t.toggle)
	t.progress = widget.NewProgressBarInfinite()

	t.errorText = widget.NewLabel("")
	t.errorText.Importance = widget.DangerImportance
	t.errorText.Wrapping = fyne.TextWrapWord
	t.errorBox = container.NewBorder(nil, nil, widget.NewIcon(theme.NewErrorThemedResource(theme.ErrorIcon())), nil, t.errorText)
	t.errorBox.Hide()

	t.latencyLabel = widget.NewLabel(formatLatency(0))
	t.fpsLabel = widget.NewLabel(formatFPS(0))

	proc.OnFrame = func(image.Image) { t.videoRedraw.Request() }
	proc.OnUpdate = func(u live.Update) {
		fyne.Do(func() { t.renderState(u) })
		t.videoRedraw.Request()
		t.overlayRedraw.Request()
	}

	return t
}

func (t *liveTab) content() fyne.CanvasObject {
	videoContainer := container.NewBorder(
		container.NewHBox(t.fpsLabel, widget.NewSeparator(), t.latencyLabel),
		container.NewVBox(
			container.NewHBox(t.toggleBtn),
			t.progress,
			t.errorBox,
		),
		nil, nil,
		container.NewStack(t.videoCanvas, t.overlayCanvas, t.prompt),
	)

	t.renderState(live.Update{State: t.proc.State()})

	return container.NewPadded(videoContainer)
}

func (t *liveTab) toggle() {
	if t.proc.State() == live.CameraOn {
		go t.proc.StopCamera()
		return
	}

	t.toggleBtn.Disable()
	go func() {
		// Failures arrive through OnUpdate as a camera error.
		_ = t.proc.StartCamera()
		fyne.Do(t.toggleBtn.Enable)
	}()
}

func (t *liveTab) renderState(u live.Update) {
	if u.State == live.CameraOn {
		t.toggleBtn.SetText("Detener")
		t.toggleBtn.SetIcon(theme.MediaStopIcon())
		t.toggleBtn.Importance = widget.DangerImportance
		t.prompt.Hide()
	} else {
		t.toggleBtn.SetText("Iniciar Cámara")
		t.toggleBtn.SetIcon(theme.MediaVideoIcon())
		t.toggleBtn.Importance = widget.HighImportance
		t.prompt.Show()
	}
	t.toggleBtn.Refresh()

	if u.State == live.CameraOn && u.InFlight > 0 {
		t.progress.Show()
		t.progress.Start()
	} else {
		t.progress.Stop()
		t.progress.Hide()
	}

	if u.Err != nil {
		t.errorText.SetText(u.Err.Error())
		t.errorBox.Show()
	} else if u.State == live.CameraOn {
		t.errorBox.Hide()
	}
}

// drawVideo shows the latest frame. The overlay is only re-rendered here
// when the displayed or native size moved since it was last drawn.
// Runs on the UI goroutine.
func (t *liveTab) drawVideo() {
	frame := t.proc.LatestFrame()
	t.videoCanvas.Image = frame
	t.videoCanvas.Refresh()

	displayed, native := t.overlaySizes(frame)
	if displayed != t.overlayDisplay || native != t.overlayNative {
		t.drawOverlay()
	}
}

// drawOverlay renders the current detections sized to the video widget in
// device pixels. Runs on the UI goroutine.
func (t *liveTab) drawOverlay() {
	displayed, native := t.overlaySizes(t.proc.LatestFrame())
	t.overlayDisplay, t.overlayNative = displayed, native

	t.overlayCanvas.Image = t.renderer.Render(displayed, native, t.proc.Detections())
	t.overlayCanvas.Refresh()
}

func (t *liveTab) overlaySizes(frame image.Image) (displayed, native overlay.Size) {
	if frame != nil {
		native = overlay.SizeOf(frame.Bounds())
	}
	size := t.videoCanvas.Size()
	scale := t.win.Canvas().Scale()
	displayed = overlay.Size{W: float64(size.Width * scale), H: float64(size.Height * scale)}
	return displayed, native
}

func (t *liveTab) runStatLoop(done <-chan struct{}) {
	uiTicker := time.NewTicker(200 * time.Millisecond)
	defer uiTicker.Stop()

	for {
		select {
		case <-uiTicker.C:
			stats := t.proc.Stats()
			fyne.Do(func() {
				t.latencyLabel.SetText(formatLatency(stats.Latency))
				t.fpsLabel.SetText(formatFPS(stats.FPS))
			})
		case <-done:
			return
		}
	}
}

func formatFPS(v uint) string {
	return fmt.Sprintf("FPS: %d", v)
}

func formatLatency(v time.Duration) string {
	return fmt.Sprintf("Latencia: %d ms", v.Milliseconds())
}
