// Package overlay turns detections into box and label drawings sized for the
// widget the video is displayed in.
package overlay

import (
	"image"
	"image/color"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"helmetvision/internal/labels"
	"helmetvision/internal/models"
)

const (
	strokeWidth = 3
	chipHeight  = 20
	chipPadding = 10
	textInsetX  = 5
	textInsetY  = 5
	fontSize    = 16
)

type Size struct {
	W, H float64
}

func SizeOf(r image.Rectangle) Size {
	return Size{W: float64(r.Dx()), H: float64(r.Dy())}
}

type Rect struct {
	X, Y, W, H float64
}

// Command is everything needed to draw one detection.
type Command struct {
	Box   Rect
	Chip  Rect
	TextX float64
	TextY float64
	Label string
	Color color.RGBA
}

// Plan scales every box from native frame pixels to displayed pixels. The
// axes scale independently, so a stretched video still lines up. measure
// returns the rendered width of a label.
func Plan(dets []models.Detection, native, displayed Size, measure func(string) float64) []Command {
	if native.W <= 0 || native.H <= 0 || displayed.W <= 0 || displayed.H <= 0 {
		return nil
	}

	scaleX := displayed.W / native.W
	scaleY := displayed.H / native.H

	cmds := make([]Command, 0, len(dets))
	for _, det := range dets {
		x1, y1, x2, y2, ok := det.Corners()
		if !ok {
			continue
		}

		box := Rect{
			X: x1 * scaleX,
			Y: y1 * scaleY,
			W: (x2 - x1) * scaleX,
			H: (y2 - y1) * scaleY,
		}
		label := labels.OverlayLabel(det)

		cmds = append(cmds, Command{
			Box:   box,
			Chip:  Rect{X: box.X, Y: box.Y - chipHeight, W: measure(label) + chipPadding, H: chipHeight},
			TextX: box.X + textInsetX,
			TextY: box.Y - textInsetY,
			Label: label,
			Color: labels.ClassColor(det.Class),
		})
	}
	return cmds
}

var (
	fontOnce sync.Once
	ttf      *truetype.Font
)

func labelFace() font.Face {
	fontOnce.Do(func() {
		var err error
		ttf, err = truetype.Parse(goregular.TTF)
		if err != nil {
			panic(err)
		}
	})
	return truetype.NewFace(ttf, &truetype.Options{Size: fontSize})
}

// Renderer draws plans onto transparent RGBA images. It is not safe for
// concurrent use.
type Renderer struct {
	face font.Face
}

func NewRenderer() *Renderer {
	return &Renderer{face: labelFace()}
}

// Render redraws the whole overlay from scratch for the displayed size.
func (r *Renderer) Render(displayed, native Size, dets []models.Detection) *image.RGBA {
	w, h := int(displayed.W), int(displayed.H)
	if w <= 0 || h <= 0 {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}

	dc := gg.NewContext(w, h)
	dc.SetFontFace(r.face)
	dc.SetRGBA(0, 0, 0, 0)
	dc.Clear()

	measure := func(s string) float64 {
		tw, _ := dc.MeasureString(s)
		return tw
	}

	for _, c := range Plan(dets, native, displayed, measure) {
		dc.SetColor(c.Color)
		dc.SetLineWidth(strokeWidth)
		dc.DrawRectangle(c.Box.X, c.Box.Y, c.Box.W, c.Box.H)
		dc.Stroke()

		dc.DrawRectangle(c.Chip.X, c.Chip.Y, c.Chip.W, c.Chip.H)
		dc.Fill()

		dc.SetColor(color.White)
		dc.DrawString(c.Label, c.TextX, c.TextY)
	}

	return dc.Image().(*image.RGBA)
}
