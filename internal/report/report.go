// Package report prints a detection result for terminals.
package report

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"helmetvision/internal/labels"
	"helmetvision/internal/models"
)

var toneAttrs = map[labels.Tone]color.Attribute{
	labels.ToneGreen:  color.FgGreen,
	labels.ToneRed:    color.FgRed,
	labels.ToneOrange: color.FgYellow,
	labels.ToneGray:   color.FgHiBlack,
	labels.ToneBlue:   color.FgBlue,
}

func Write(w io.Writer, res *models.DetectionResult) error {
	status := color.New(toneAttrs[labels.StatusTone(res.Prediction)], color.Bold)
	if _, err := status.Fprintln(w, labels.Prediction(res.Prediction)); err != nil {
		return err
	}

	summary := table.NewWriter()
	summary.SetOutputMirror(w)
	summary.SetStyle(table.StyleLight)
	summary.AppendRows([]table.Row{
		{"Confianza General", labels.Confidence(res.Confidence)},
		{"Usando Casco", labels.Wearing(res.IsWearingHelmet)},
		{"Total Detectado", res.TotalDetections()},
	})
	summary.Render()

	if res.Message != "" {
		if _, err := fmt.Fprintln(w, res.Message); err != nil {
			return err
		}
	}

	dets := res.Detections()
	if len(dets) == 0 {
		return nil
	}

	detail := table.NewWriter()
	detail.SetOutputMirror(w)
	detail.SetStyle(table.StyleLight)
	detail.SetTitle("Detecciones Detalladas")
	detail.AppendHeader(table.Row{"#", "Clase", "Confianza", "Caja"})
	for i, d := range dets {
		detail.AppendRow(table.Row{i + 1, labels.Class(d.Class), labels.Confidence(d.Confidence), formatBox(d)})
	}
	detail.Render()
	return nil
}

func formatBox(d models.Detection) string {
	x1, y1, x2, y2, ok := d.Corners()
	if !ok {
		return "-"
	}
	return fmt.Sprintf("(%.0f, %.0f) - (%.0f, %.0f)", x1, y1, x2, y2)
}
