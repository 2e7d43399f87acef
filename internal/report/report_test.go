package report

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"helmetvision/internal/models"
)

func TestWrite(t *testing.T) {
	color.NoColor = true

	no := false
	res := &models.DetectionResult{
		Prediction:      models.PredictionMixedDetection,
		Message:         "Multiple riders detected: 1 with helmet, 1 without helmet",
		Confidence:      91.25,
		IsWearingHelmet: &no,
		RawDetections: &models.RawDetections{
			TotalDetections: 2,
			AllDetections: []models.Detection{
				{Class: models.ClassWithHelmet, Confidence: 91.25, BBox: []float64{10, 20, 110, 220}},
				{Class: models.ClassWithoutHelmet, Confidence: 60, BBox: []float64{1}},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, res))

	out := buf.String()
	require.Contains(t, out, "Detección Mixta")
	require.Contains(t, out, "91.2%")
	require.Contains(t, out, "Con Casco")
	require.Contains(t, out, "Sin Casco")
	require.Contains(t, out, "(10, 20) - (110, 220)")
	require.Contains(t, out, "Multiple riders detected")
}

func TestWrite_NoDetections(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, &models.DetectionResult{Prediction: models.PredictionNoDetection}))
	require.Contains(t, buf.String(), "Sin Detección")
	require.Contains(t, buf.String(), "N/A")
	require.NotContains(t, buf.String(), "Detecciones Detalladas")
}
