package ui

import (
	"context"
	"fmt"
	"image"
	"io"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"helmetvision/internal/labels"
	"helmetvision/internal/models"
	"helmetvision/processing/detector"
	"helmetvision/processing/still"
)

const stillPrompt = "Arrastra una imagen o haz clic para elegir una"

type stillTab struct {
	win  fyne.Window
	flow *still.Flow

	fileLabel *widget.Label
	clearBtn  *widget.Button
	detectBtn *widget.Button
	preview   *canvas.Image
	progress  *widget.ProgressBarInfinite

	errorText *widget.Label
	errorBox  *fyne.Container

	results *fyne.Container
}

func newStillTab(win fyne.Window, flow *still.Flow) *stillTab {
	t := &stillTab{win: win, flow: flow}

	t.fileLabel = widget.NewLabelWithStyle(stillPrompt, fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	t.clearBtn = widget.NewButtonWithIcon("", theme.CancelIcon(), flow.Clear)

	t.detectBtn = widget.NewButton("Detectar Casco", t.predict)
	t.detectBtn.Importance = widget.HighImportance

	t.preview = canvas.NewImageFromImage(nil)
	t.preview.FillMode = canvas.ImageFillContain
	t.preview.SetMinSize(fyne.NewSize(360, 270))

	t.progress = widget.NewProgressBarInfinite()

	t.errorText = widget.NewLabel("")
	t.errorText.Importance = widget.DangerImportance
	t.errorText.Wrapping = fyne.TextWrapWord
	t.errorBox = container.NewBorder(nil, nil, widget.NewIcon(theme.NewErrorThemedResource(theme.ErrorIcon())), nil, t.errorText)

	t.results = container.NewVBox()

	flow.OnChange = func(s still.Snapshot) {
		fyne.Do(func() { t.render(s) })
	}

	return t
}

func (t *stillTab) content() fyne.CanvasObject {
	uploadBtn := widget.NewButtonWithIcon("Subir Imagen", theme.UploadIcon(), t.openDialog)

	header := container.NewBorder(nil, nil, nil, container.NewHBox(uploadBtn, t.clearBtn), t.fileLabel)

	body := container.NewVBox(
		header,
		widget.NewLabel("Soporte para JPG, PNG, GIF (máx. 10MB)"),
		t.preview,
		t.detectBtn,
		t.progress,
		t.errorBox,
		t.results,
	)

	t.render(t.flow.Snapshot())

	return container.NewVScroll(container.NewPadded(body))
}

func (t *stillTab) openDialog() {
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			dialog.ShowError(err, t.win)
			return
		}
		if reader == nil {
			return
		}
		go t.load(reader)
	}, t.win)
	fd.SetFilter(storage.NewMimeTypeFileFilter([]string{"image/*"}))
	fd.Show()
}

// openURI handles files dropped onto the window.
func (t *stillTab) openURI(uri fyne.URI) {
	go func() {
		reader, err := storage.Reader(uri)
		if err != nil {
			fyne.Do(func() { dialog.ShowError(err, t.win) })
			return
		}
		t.load(reader)
	}()
}

func (t *stillTab) load(reader fyne.URIReadCloser) {
	defer reader.Close()

	// One byte past the cap is enough to reject an oversize file.
	data, err := io.ReadAll(io.LimitReader(reader, detector.MaxImageBytes+1))
	if err != nil {
		fyne.Do(func() { dialog.ShowError(err, t.win) })
		return
	}

	mimeType := reader.URI().MimeType()
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = detector.SniffMIME(data)
	}

	_ = t.flow.SelectFile(still.File{
		Name:     reader.URI().Name(),
		MIMEType: mimeType,
		Size:     int64(len(data)),
		Data:     data,
	})
}

func (t *stillTab) predict() {
	if !t.flow.CanPredict() {
		return
	}
	go func() {
		_ = t.flow.Predict(context.Background())
	}()
}

func (t *stillTab) render(s still.Snapshot) {
	if s.FileName == "" {
		t.fileLabel.SetText(stillPrompt)
		t.clearBtn.Hide()
	} else {
		t.fileLabel.SetText(s.FileName)
		t.clearBtn.Show()
	}

	var img image.Image
	if s.Preview != nil {
		img = s.Preview.Image()
	}
	t.preview.Image = img
	t.preview.Refresh()

	if s.Loading {
		t.detectBtn.SetText("Analizando...")
		t.detectBtn.Disable()
		t.progress.Show()
		t.progress.Start()
	} else {
		t.detectBtn.SetText("Detectar Casco")
		t.progress.Stop()
		t.progress.Hide()
		if s.FileName != "" {
			t.detectBtn.Enable()
		} else {
			t.detectBtn.Disable()
		}
	}

	if s.Err != "" && !s.Loading {
		t.errorText.SetText(s.Err)
		t.errorBox.Show()
	} else {
		t.errorBox.Hide()
	}

	t.results.Objects = nil
	if s.Result != nil && !s.Loading {
		t.results.Objects = resultObjects(s.Result)
	}
	t.results.Refresh()
}

func iconResource(icon labels.Icon, tone labels.Tone) fyne.Resource {
	res := theme.WarningIcon()
	if icon == labels.IconCheck {
		res = theme.ConfirmIcon()
	}

	switch tone {
	case labels.ToneGreen:
		return theme.NewSuccessThemedResource(res)
	case labels.ToneRed:
		return theme.NewErrorThemedResource(res)
	case labels.ToneOrange:
		return theme.NewWarningThemedResource(res)
	case labels.ToneBlue:
		return theme.NewPrimaryThemedResource(res)
	default:
		return theme.NewDisabledResource(res)
	}
}

func coloredText(text string, tone labels.Tone, bold bool) *canvas.Text {
	t := canvas.NewText(text, tone.Color())
	t.TextStyle = fyne.TextStyle{Bold: bold}
	return t
}

func resultObjects(res *models.DetectionResult) []fyne.CanvasObject {
	icon, iconTone := labels.ResultIcon(res.Prediction, res.IsWearingHelmet)

	status := coloredText(labels.Prediction(res.Prediction), labels.StatusTone(res.Prediction), true)
	status.TextSize = theme.TextSubHeadingSize()

	wearingTone := labels.ToneRed
	if res.IsWearingHelmet != nil && *res.IsWearingHelmet {
		wearingTone = labels.ToneGreen
	}

	grid := container.NewGridWithColumns(3,
		container.NewVBox(widget.NewLabel("Confianza General"), widget.NewLabelWithStyle(labels.Confidence(res.Confidence), fyne.TextAlignLeading, fyne.TextStyle{Bold: true})),
		container.NewVBox(widget.NewLabel("Usando Casco"), coloredText(labels.Wearing(res.IsWearingHelmet), wearingTone, true)),
		container.NewVBox(widget.NewLabel("Total Detectado"), widget.NewLabel(fmt.Sprint(res.TotalDetections()))),
	)

	message := widget.NewLabel(res.Message)
	message.Wrapping = fyne.TextWrapWord

	objs := []fyne.CanvasObject{
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Resultados del Análisis", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		container.NewHBox(widget.NewIcon(iconResource(icon, iconTone)), status),
		grid,
		message,
	}

	dets := res.Detections()
	if len(dets) == 0 {
		return objs
	}

	objs = append(objs, widget.NewLabelWithStyle("Detecciones Detalladas", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}))
	for _, d := range dets {
		objs = append(objs, container.NewHBox(
			coloredText(labels.Class(d.Class), labels.ClassTone(d.Class), true),
			layout.NewSpacer(),
			widget.NewLabel("Confianza: "+labels.Confidence(d.Confidence)),
		))
	}
	return objs
}
