package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/troikatech/voice-bridge/internal/relay"
	"github.com/troikatech/voice-bridge/pkg/elevenlabs"
	"github.com/troikatech/voice-bridge/pkg/env"
	"github.com/troikatech/voice-bridge/pkg/logger"
)

// createStreamUpgrader creates the WebSocket upgrader for the media stream.
// Twilio's media-stream clients send no Origin header, so an empty origin is
// always accepted; browser origins are only allowed in development.
func createStreamUpgrader(cfg *env.Config) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			if cfg.AppEnv == "development" {
				return true
			}

			if cfg.PublicBaseURL != "" && origin == cfg.PublicBaseURL {
				return true
			}

			logger.Log.Warn("Media stream connection rejected - invalid origin",
				zap.String("origin", origin),
				zap.String("remote_addr", r.RemoteAddr),
			)
			return false
		},
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
}

// wsTelephonyConn adapts a gorilla connection to the relay's telephony
// connection contract. Closing the underlying socket unblocks a pending read.
type wsTelephonyConn struct {
	conn *websocket.Conn
}

func (w *wsTelephonyConn) ReadMessage() ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	return data, err
}

func (w *wsTelephonyConn) WriteMessage(data []byte) error {
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsTelephonyConn) Close() error {
	return w.conn.Close()
}

// agentConnector adapts the concrete connector to the relay's interface.
type agentConnector struct {
	connector *elevenlabs.Connector
}

func (a agentConnector) Connect(ctx context.Context) (relay.AgentConn, error) {
	conn, err := a.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// MediaStream is the WebSocket endpoint Twilio connects to for a call's
// audio. The HTTP handler's job ends at the upgrade; the relay session owns
// the connection from there.
func (h *Handler) MediaStream(c *gin.Context) {
	upgrader := createStreamUpgrader(h.cfg)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade media stream",
			zap.Error(err),
			zap.String("remote_addr", c.Request.RemoteAddr),
		)
		return
	}

	h.logger.Info("Telephony connected to media stream",
		zap.String("remote_addr", c.Request.RemoteAddr),
	)

	session := relay.NewSession(
		&wsTelephonyConn{conn: conn},
		relay.Deps{
			Connector: agentConnector{connector: h.connector},
			Resolver:  h.twilioClient,
			Notifier:  h.notifier,
			Recorder:  &callRecorder{mongoClient: h.mongoClient, logger: h.logger},
			Registry:  h.registry,
		},
		relay.Config{
			TriggerKeywords: h.cfg.TriggerKeywords,
		},
	)

	session.Run(c.Request.Context())
}
