package detector

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"helmetvision/internal/models"
)

const wsWriteTimeout = 5 * time.Second

// RemoteDetector is the websocket transport. Each call writes one binary
// message and reads one JSON reply on a shared connection, so calls are
// serialised. A failed connection is dropped and redialed by the next call.
type RemoteDetector struct {
	serverURL string
	log       *logrus.Entry

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewRemoteDetector(host string, secure bool, log *logrus.Entry) *RemoteDetector {
	scheme := "ws"
	if secure {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: host, Path: "/ws"}

	return &RemoteDetector{
		serverURL: u.String(),
		log:       log,
	}
}

func (d *RemoteDetector) Predict(ctx context.Context, image []byte, filename string) (*models.DetectionResult, error) {
	if err := ValidateImage(SniffMIME(image), int64(len(image))); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	conn, err := d.connect(ctx)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	deadline := time.Now().Add(wsWriteTimeout)
	if dl, ok := ctx.Deadline(); ok {
		deadline = dl
	}
	_ = conn.SetWriteDeadline(deadline)

	if err := conn.WriteMessage(websocket.BinaryMessage, image); err != nil {
		d.drop(err)
		return nil, &NetworkError{Err: err}
	}

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(dl)
	} else {
		_ = conn.SetReadDeadline(time.Time{})
	}

	_, message, err := conn.ReadMessage()
	if err != nil {
		d.drop(err)
		return nil, &NetworkError{Err: err}
	}

	var result models.DetectionResult
	if err := json.Unmarshal(message, &result); err != nil {
		return nil, &ParseError{Err: err}
	}
	if result.Filename == "" {
		result.Filename = filename
	}
	return &result, nil
}

func (d *RemoteDetector) connect(ctx context.Context) (*websocket.Conn, error) {
	if d.conn != nil {
		return d.conn, nil
	}

	d.log.WithField("url", d.serverURL).Info("connecting to detector server")
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.serverURL, nil)
	if err != nil {
		return nil, err
	}
	d.log.Info("connected to detector server")

	d.conn = conn
	return conn, nil
}

func (d *RemoteDetector) drop(cause error) {
	d.log.WithError(cause).Warn("connection lost")
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
}

// Close releases the connection; the detector redials if used again.
func (d *RemoteDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}
	err := d.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	d.conn.Close()
	d.conn = nil
	return err
}
