package detector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"helmetvision/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	predictPath = "/predict"
	formField   = "file"
)

type HTTPClient struct {
	baseURL string
	http    *http.Client
	log     *logrus.Entry
}

func NewHTTPClient(baseURL string, timeout time.Duration, log *logrus.Entry) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (c *HTTPClient) Predict(ctx context.Context, image []byte, filename string) (*models.DetectionResult, error) {
	mimeType := SniffMIME(image)
	if err := ValidateImage(mimeType, int64(len(image))); err != nil {
		return nil, err
	}

	body, contentType, err := encodeForm(image, filename, mimeType)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictPath, body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	reqID := uuid.NewString()
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	c.log.WithFields(logrus.Fields{
		"request_id": reqID,
		"status":     resp.StatusCode,
		"bytes":      len(image),
		"took":       time.Since(start),
	}).Debug("predict")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &ServerError{Status: resp.StatusCode, Message: detailMessage(raw)}
		c.log.WithFields(logrus.Fields{
			"request_id": reqID,
			"status":     se.StatusText(),
		}).Warn(se.Message)
		return nil, se
	}

	var result models.DetectionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &ParseError{Err: err}
	}
	return &result, nil
}

func encodeForm(image []byte, filename, mimeType string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, formField, escapeQuotes(filename)))
	h.Set("Content-Type", mimeType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }

// detailMessage pulls a string "detail" out of an error body. Validation
// errors from the service carry a list there, which is not shown.
func detailMessage(raw []byte) string {
	var body struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return GenericFailure
	}
	if s, ok := body.Detail.(string); ok && s != "" {
		return s
	}
	return GenericFailure
}
