package detector

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sirupsen/logrus"

	"helmetvision/internal/config"
	"helmetvision/internal/models"
)

// Predictor sends one image to the inference service.
type Predictor interface {
	Predict(ctx context.Context, image []byte, filename string) (*models.DetectionResult, error)
}

// New builds the predictor selected by the configured transport.
func New(cfg *config.Config, log *logrus.Entry) (Predictor, error) {
	base := cfg.GetAPIBaseURL()

	transport := cfg.GetTransport()
	switch transport {
	case config.TransportHTTP, "":
		return NewHTTPClient(base, cfg.GetRequestTimeout(), log), nil
	case config.TransportWS:
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse api base url: %w", err)
		}
		return NewRemoteDetector(u.Host, u.Scheme == "https", log), nil
	default:
		return nil, fmt.Errorf("unknown transport: %s", transport)
	}
}
