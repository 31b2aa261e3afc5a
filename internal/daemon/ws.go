package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/runnerr0/sitetime/internal/message"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsWriteWait  = 10 * time.Second
)

// wsReply answers one WebSocket frame. RequestID echoes the client's
// "requestId" so replies can be matched to requests.
type wsReply struct {
	RequestID string `json:"requestId,omitempty"`
	Type      string `json:"type,omitempty"`
	Response  any    `json:"response,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) upgrader() *websocket.Upgrader {
	allowed := originMatcher(s.cfg.Daemon.AllowedOrigins)
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed(origin)
		},
	}
}

// handleWebSocket keeps a connection open for the extension's background
// page. Frames are handled in order; each gets a reply unless it is a
// fire-and-forget message sent without a requestId.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	logger := s.logger.With("conn", connID)
	logger.Info("websocket connected", "remote", c.Request.RemoteAddr)
	defer logger.Info("websocket disconnected")

	if s.cfg.Daemon.MaxRequestSize > 0 {
		conn.SetReadLimit(s.cfg.Daemon.MaxRequestSize)
	}
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	ctx := c.Request.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		reply := s.handleFrame(ctx, data)
		if reply == nil {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(reply); err != nil {
			logger.Warn("websocket write failed", "error", err)
			return
		}
	}
}

func (s *Server) handleFrame(ctx context.Context, data []byte) *wsReply {
	var envelope struct {
		RequestID string `json:"requestId"`
	}
	_ = json.Unmarshal(data, &envelope)
	reply := &wsReply{RequestID: envelope.RequestID}

	msg, err := message.Decode(data)
	if err != nil {
		reply.Error = err.Error()
		return reply
	}
	reply.Type = msg.Type()

	resp, err := s.dispatcher.Dispatch(ctx, msg)
	switch {
	case err != nil:
		if !errors.Is(err, message.ErrUnknownType) {
			s.logger.Error("websocket message failed", "type", msg.Type(), "error", err)
		}
		reply.Error = err.Error()
	case resp == nil && envelope.RequestID == "":
		return nil
	default:
		reply.Response = resp
	}
	return reply
}
