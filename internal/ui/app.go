package ui

import (
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"helmetvision/internal/config"
	"helmetvision/internal/ui/cwidget"
	"helmetvision/processing/capture"
	"helmetvision/processing/live"
	"helmetvision/processing/still"
)

const (
	cameraAuto    = "Automática"
	cameraLoading = "Buscando cámaras..."
	cameraNone    = "No se encontraron cámaras"
	cameraFailed  = "Error al listar cámaras"
)

type DetectApp struct {
	fyneApp fyne.App
	mainWin fyne.Window

	config    *config.Config
	flow      *still.Flow
	processor *live.Processor
	log       *logrus.Entry

	stillTab *stillTab
	liveTab  *liveTab
	tabs     *container.AppTabs

	dynamicSettings *fyne.Container
	staticSettings  *fyne.Container

	done     chan struct{}
	stopOnce sync.Once
}

func CreateApp(cfg *config.Config, flow *still.Flow, proc *live.Processor, log *logrus.Entry) *DetectApp {
	a := app.New()
	w := a.NewWindow("Detección de Personas con Cascos")

	w.Resize(fyne.NewSize(1200, 760))

	return &DetectApp{
		fyneApp:   a,
		mainWin:   w,
		config:    cfg,
		flow:      flow,
		processor: proc,
		log:       log,
		done:      make(chan struct{}),
	}
}

func (a *DetectApp) Run() {
	a.stillTab = newStillTab(a.mainWin, a.flow)
	a.liveTab = newLiveTab(a.mainWin, a.processor)

	a.tabs = container.NewAppTabs(
		container.NewTabItemWithIcon("Analizar Imagen", theme.UploadIcon(), a.stillTab.content()),
		container.NewTabItemWithIcon("Detección en Vivo", theme.MediaVideoIcon(), a.liveTab.content()),
	)

	a.dynamicSettings = container.NewVBox()

	sourceTypeSelect := widget.NewSelect(config.SourcesList[:], func(s string) {
		a.config.SetSource(config.SourceType(s))
		a.refreshSettingsUI(s)
	})
	sourceTypeSelect.SetSelected(string(a.config.GetSource()))

	settingsLabel := widget.NewLabelWithStyle("Configuración", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})

	a.setupConfigSettings()

	sidebar := container.NewVBox(
		settingsLabel,
		widget.NewSeparator(),
		widget.NewLabel("Fuente de video:"),
		sourceTypeSelect,
		widget.NewSeparator(),
		a.dynamicSettings,
		a.staticSettings,
	)

	split := container.NewHSplit(
		container.NewVScroll(container.NewPadded(sidebar)),
		a.tabs,
	)
	split.SetOffset(0.25)

	a.mainWin.SetContent(split)

	a.mainWin.SetOnDropped(func(_ fyne.Position, uris []fyne.URI) {
		if len(uris) == 0 {
			return
		}
		a.tabs.SelectIndex(0)
		a.stillTab.openURI(uris[0])
	})

	a.mainWin.SetCloseIntercept(func() {
		if err := a.Shutdown(); err != nil {
			a.log.WithError(err).Warn("shutdown incomplete")
		}
		a.mainWin.Close()
	})

	go a.liveTab.runStatLoop(a.done)

	a.mainWin.CenterOnScreen()
	a.mainWin.ShowAndRun()
}

// Shutdown stops the camera, drops the selected image and saves the config.
// Later calls return nil.
func (a *DetectApp) Shutdown() error {
	var err error
	a.stopOnce.Do(func() {
		close(a.done)
		a.flow.Clear()
		err = multierr.Combine(
			a.processor.Close(),
			a.config.SaveByDefault(),
		)
	})
	return err
}

func (a *DetectApp) applySettings() {
	if err := a.config.Validate(); err != nil {
		dialog.ShowError(err, a.mainWin)
		return
	}
	if err := a.config.SaveByDefault(); err != nil {
		dialog.ShowError(err, a.mainWin)
		return
	}

	a.processor.SetInterval(a.config.GetLiveInterval())
	if a.processor.State() != live.CameraOn {
		return
	}
	go func() {
		if err := a.processor.Restart(); err != nil {
			a.log.WithError(err).Warn("camera restart failed")
		}
	}()
}

func (a *DetectApp) setupConfigSettings() {
	a.staticSettings = container.NewVBox()

	intervalInput := cwidget.NewIntInput(
		"Intervalo de captura (ms)",
		"Número entero",
		int(a.config.GetLiveInterval().Milliseconds()),
		100,
		func(i int) {
			a.config.SetLiveInterval(i)
		},
	)

	fpsInput := cwidget.NewIntInput(
		"FPS",
		"Número entero",
		int(a.config.GetFPS()),
		1,
		func(i int) {
			a.config.SetFPS(uint(i))
		},
	)

	widthInput := cwidget.NewIntInput(
		"Ancho",
		"Número entero",
		a.config.GetWidth(),
		16,
		func(i int) {
			a.config.SetWidth(i)
		},
	)

	heightInput := cwidget.NewIntInput(
		"Alto",
		"Número entero",
		a.config.GetHeight(),
		16,
		func(i int) {
			a.config.SetHeight(i)
		},
	)

	applyCfg := widget.NewButtonWithIcon("Guardar configuración", theme.DocumentSaveIcon(), a.applySettings)

	a.staticSettings.Add(intervalInput)
	a.staticSettings.Add(fpsInput)
	a.staticSettings.Add(widthInput)
	a.staticSettings.Add(heightInput)

	a.staticSettings.Add(applyCfg)
}

func (a *DetectApp) refreshSettingsUI(sourceType string) {
	a.dynamicSettings.Objects = nil

	switch config.SourceType(sourceType) {
	case config.SourceLocal:
		pathEntry := widget.NewEntry()
		pathEntry.SetPlaceHolder("/path/to/video.mp4")
		pathEntry.SetText(a.config.GetLocalPath())

		pathEntry.OnChanged = func(s string) {
			a.config.SetLocalPath(s)
		}

		fileBtn := widget.NewButtonWithIcon("Abrir", theme.FolderOpenIcon(), func() {
			dialog.ShowFileOpen(func(reader fyne.URIReadCloser, err error) {
				if err == nil && reader != nil {
					pathEntry.SetText(reader.URI().Path())
					reader.Close()
				}
			}, a.mainWin)
		})

		a.dynamicSettings.Add(widget.NewLabel("Archivo de video:"))
		a.dynamicSettings.Add(container.NewBorder(nil, nil, nil, fileBtn, pathEntry))

	case config.SourceWebcam:
		deviceSelect := widget.NewSelect([]string{cameraLoading}, func(s string) {
			switch s {
			case cameraLoading, cameraNone, cameraFailed:
			case cameraAuto:
				a.config.SetDeviceID("")
			default:
				a.config.SetDeviceID(s)
			}
		})
		deviceSelect.SetSelected(cameraLoading)
		deviceSelect.Disable()

		a.dynamicSettings.Add(widget.NewLabel("Cámara:"))
		a.dynamicSettings.Add(deviceSelect)

		go func() {
			devices, err := capture.ListCameras()

			fyne.Do(func() {
				switch {
				case err != nil:
					a.log.WithError(err).Warn("camera listing failed")
					deviceSelect.Options = []string{cameraFailed}
					deviceSelect.SetSelected(cameraFailed)
				case len(devices) == 0:
					deviceSelect.Options = []string{cameraNone}
					deviceSelect.SetSelected(cameraNone)
				default:
					deviceSelect.Options = append([]string{cameraAuto}, devices...)
					deviceSelect.Enable()

					if id := a.config.GetDeviceID(); id != "" {
						deviceSelect.SetSelected(id)
					} else {
						deviceSelect.SetSelected(cameraAuto)
					}
				}
				deviceSelect.Refresh()
			})
		}()
	}

	a.dynamicSettings.Refresh()
}
