package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/seat-enrollment-api/internal/broadcast"
	"github.com/noah-isme/seat-enrollment-api/pkg/response"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

type subscriptionService interface {
	Subscribe(ctx context.Context, ref string) (*broadcast.Subscription, error)
}

// SubscriptionHandler streams seat feed updates over a websocket.
type SubscriptionHandler struct {
	service  subscriptionService
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewSubscriptionHandler builds a handler. allowedOrigins empty or "*"
// accepts any origin.
func NewSubscriptionHandler(service subscriptionService, allowedOrigins []string, logger *zap.Logger) *SubscriptionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := make(map[string]struct{}, len(allowedOrigins))
	allowAll := len(allowedOrigins) == 0
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		origins[origin] = struct{}{}
	}
	return &SubscriptionHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowAll {
					return true
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
		},
	}
}

// Stream godoc
// @Summary Subscribe to live seat counts
// @Description Upgrades to a websocket. The first message is a snapshot, later messages are deltas, and a closed message ends the stream.
// @Tags Sessions
// @Param id path string true "Session ID or name"
// @Success 101 {string} string "Switching Protocols"
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/ws [get]
func (h *SubscriptionHandler) Stream(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub, err := h.service.Subscribe(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("session_id", sub.SessionID()), zap.Error(err))
		return
	}
	defer conn.Close()

	go readPump(conn, cancel)

	updates := make(chan broadcast.Update)
	go func() {
		defer close(updates)
		for update := range sub.Updates(ctx) {
			select {
			case updates <- update:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				writeClose(conn)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(update); err != nil {
				h.logger.Debug("seat feed write failed", zap.String("session_id", sub.SessionID()), zap.Error(err))
				return
			}
			if update.Type == broadcast.UpdateClosed {
				writeClose(conn)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames and cancels the stream once the peer goes
// away or stops answering pings.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeClose(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
