// Package labels holds the display strings and colours shown for inference
// results. Values the tables do not know are shown as received.
package labels

import (
	"fmt"
	"image/color"
	"math"

	"helmetvision/internal/models"
)

var predictionLabels = map[models.Prediction]string{
	models.PredictionWearingHelmet:    "Usando Casco",
	models.PredictionNotWearingHelmet: "Sin Usar Casco",
	models.PredictionMixedDetection:   "Detección Mixta",
	models.PredictionNoDetection:      "Sin Detección",
}

var classLabels = map[models.Class]string{
	models.ClassWithHelmet:    "Con Casco",
	models.ClassWithoutHelmet: "Sin Casco",
}

func Prediction(p models.Prediction) string {
	if l, ok := predictionLabels[p]; ok {
		return l
	}
	return string(p)
}

func Class(c models.Class) string {
	if l, ok := classLabels[c]; ok {
		return l
	}
	return string(c)
}

type Tone string

const (
	ToneGreen  Tone = "green"
	ToneRed    Tone = "red"
	ToneOrange Tone = "orange"
	ToneGray   Tone = "gray"
	ToneBlue   Tone = "blue"
)

func StatusTone(p models.Prediction) Tone {
	switch p {
	case models.PredictionWearingHelmet:
		return ToneGreen
	case models.PredictionNotWearingHelmet:
		return ToneRed
	case models.PredictionMixedDetection:
		return ToneOrange
	case models.PredictionNoDetection:
		return ToneGray
	default:
		return ToneBlue
	}
}

var toneColors = map[Tone]color.RGBA{
	ToneGreen:  {0x28, 0xa7, 0x45, 0xff},
	ToneRed:    {0xdc, 0x35, 0x45, 0xff},
	ToneOrange: {0xfd, 0x7e, 0x14, 0xff},
	ToneGray:   {0x6c, 0x75, 0x7d, 0xff},
	ToneBlue:   {0x0d, 0x6e, 0xfd, 0xff},
}

func (t Tone) Color() color.RGBA {
	if c, ok := toneColors[t]; ok {
		return c
	}
	return toneColors[ToneBlue]
}

type Icon string

const (
	IconCheck Icon = "check"
	IconAlert Icon = "alert"
)

// ResultIcon picks the banner icon. Mixed and empty results always warn,
// the rest follow is_wearing_helmet.
func ResultIcon(p models.Prediction, wearing *bool) (Icon, Tone) {
	switch p {
	case models.PredictionNoDetection:
		return IconAlert, ToneGray
	case models.PredictionMixedDetection:
		return IconAlert, ToneOrange
	}
	if wearing != nil && *wearing {
		return IconCheck, ToneGreen
	}
	return IconAlert, ToneRed
}

// ClassColor is the stroke colour of a box in the overlay.
func ClassColor(c models.Class) color.RGBA {
	if c == models.ClassWithHelmet {
		return ToneGreen.Color()
	}
	return ToneRed.Color()
}

func ClassTone(c models.Class) Tone {
	if c == models.ClassWithHelmet {
		return ToneGreen
	}
	return ToneRed
}

func Confidence(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

func Wearing(v *bool) string {
	switch {
	case v == nil:
		return "N/A"
	case *v:
		return "Sí"
	default:
		return "No"
	}
}

// OverlayLabel renders "<class>: <n>%" with half-up rounding.
func OverlayLabel(d models.Detection) string {
	return fmt.Sprintf("%s: %d%%", Class(d.Class), int(math.Floor(d.Confidence+0.5)))
}
