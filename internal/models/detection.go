package models

type Prediction string

const (
	PredictionWearingHelmet    Prediction = "Wearing Helmet"
	PredictionNotWearingHelmet Prediction = "Not Wearing Helmet"
	PredictionMixedDetection   Prediction = "Mixed Detection"
	PredictionNoDetection      Prediction = "No Detection"
)

type Class string

const (
	ClassWithHelmet    Class = "With_Helmet"
	ClassWithoutHelmet Class = "Without_Helmet"
)

// Detection is one classified box. BBox is x1,y1,x2,y2 in pixels of the
// frame that was sent, never of the widget it is shown in.
type Detection struct {
	Class      Class     `json:"class"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"`
}

// Corners returns the box corners; ok is false for a malformed bbox.
func (d Detection) Corners() (x1, y1, x2, y2 float64, ok bool) {
	if len(d.BBox) < 4 {
		return 0, 0, 0, 0, false
	}
	return d.BBox[0], d.BBox[1], d.BBox[2], d.BBox[3], true
}

type Details struct {
	WithHelmetCount            int     `json:"with_helmet_count,omitempty"`
	WithoutHelmetCount         int     `json:"without_helmet_count,omitempty"`
	TotalRiders                int     `json:"total_riders,omitempty"`
	MaxWithHelmetConfidence    float64 `json:"max_with_helmet_confidence,omitempty"`
	MaxWithoutHelmetConfidence float64 `json:"max_without_helmet_confidence,omitempty"`
}

type RawDetections struct {
	WithHelmetCount    int         `json:"with_helmet_count"`
	WithoutHelmetCount int         `json:"without_helmet_count"`
	TotalDetections    int         `json:"total_detections"`
	AllDetections      []Detection `json:"all_detections"`
}

type DetectionResult struct {
	Filename        string         `json:"filename,omitempty"`
	Prediction      Prediction     `json:"prediction"`
	Message         string         `json:"message"`
	Confidence      float64        `json:"confidence"`
	IsWearingHelmet *bool          `json:"is_wearing_helmet"`
	Details         *Details       `json:"details,omitempty"`
	RawDetections   *RawDetections `json:"raw_detections,omitempty"`
}

// Detections is nil-safe; live responses are allowed to omit raw_detections.
func (r *DetectionResult) Detections() []Detection {
	if r == nil || r.RawDetections == nil || r.RawDetections.AllDetections == nil {
		return []Detection{}
	}
	return r.RawDetections.AllDetections
}

func (r *DetectionResult) TotalDetections() int {
	if r == nil || r.RawDetections == nil {
		return 0
	}
	return r.RawDetections.TotalDetections
}
