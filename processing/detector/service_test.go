package detector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"helmetvision/internal/config"
	"helmetvision/internal/logger"
	"helmetvision/internal/models"
)

func newWSServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ws", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			mt, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	}))
}

func TestRemoteDetector_PredictOverSharedConnection(t *testing.T) {
	srv := newWSServer(t, okBody)
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	d := NewRemoteDetector(u.Host, false, logger.Discard())
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < 2; i++ {
		res, err := d.Predict(ctx, testJPEG(t), "live-frame.jpg")
		require.NoError(t, err)
		require.Equal(t, models.PredictionWearingHelmet, res.Prediction)
	}
}

func TestRemoteDetector_MalformedReply(t *testing.T) {
	srv := newWSServer(t, "not json")
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	d := NewRemoteDetector(u.Host, false, logger.Discard())
	defer d.Close()

	_, err := d.Predict(context.Background(), testJPEG(t), "live-frame.jpg")
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
}

func TestRemoteDetector_DialFailure(t *testing.T) {
	d := NewRemoteDetector("127.0.0.1:1", false, logger.Discard())

	_, err := d.Predict(context.Background(), testJPEG(t), "live-frame.jpg")
	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
}

func TestNew_SelectsTransport(t *testing.T) {
	cfg := config.NewDefaultConfig()

	p, err := New(cfg, logger.Discard())
	require.NoError(t, err)
	require.IsType(t, &HTTPClient{}, p)

	cfg.Transport = config.TransportWS
	p, err = New(cfg, logger.Discard())
	require.NoError(t, err)
	require.IsType(t, &RemoteDetector{}, p)
	require.Equal(t, "ws://localhost:8080/ws", p.(*RemoteDetector).serverURL)

	cfg.Transport = "carrier-pigeon"
	_, err = New(cfg, logger.Discard())
	require.Error(t, err)
}
