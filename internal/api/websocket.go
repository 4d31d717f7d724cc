package api

import (
	"net/http"

	"options-core/internal/events"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsEnvelope tags each pushed payload with its topic so one socket can carry
// every stream.
type wsEnvelope struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// websocket streams post-commit state changes to the client. All four topics
// are merged onto a single connection.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.L().Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	topics := []events.Event{
		events.EventBalanceUpdated,
		events.EventTradeSettled,
		events.EventWithdrawalUpdated,
		events.EventDepositUpdated,
	}

	merged := make(chan wsEnvelope, 256)
	done := make(chan struct{})
	defer close(done)

	for _, topic := range topics {
		stream, unsub := s.Bus.Subscribe(topic, 100)
		defer unsub()

		go func(topic events.Event, stream <-chan any) {
			for {
				select {
				case msg, ok := <-stream:
					if !ok {
						return
					}
					select {
					case merged <- wsEnvelope{Topic: string(topic), Payload: msg}:
					case <-done:
						return
					}
				case <-done:
					return
				}
			}
		}(topic, stream)
	}

	// Reader goroutine: its only job is detecting the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case env := <-merged:
			if err := conn.WriteJSON(env); err != nil {
				zap.L().Debug("ws write failed", zap.Error(err))
				return
			}
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
