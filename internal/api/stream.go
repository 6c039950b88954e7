package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/liao/chat-analyst/internal/query"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// streamEvent 服务端推送的事件：fragment / answer / error
type streamEvent struct {
	Event  string        `json:"event"`
	Text   string        `json:"text,omitempty"`
	Answer *query.Answer `json:"answer,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// stream 客户端每发一条 {content}，服务端先逐段推送 fragment，最后推送完整 answer
// 同一连接上的问题按顺序处理
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "session", sess.ID, "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	send := func(ev streamEvent) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(ev)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read failed", "session", sess.ID, "error", err)
			}
			return
		}

		var req messageRequest
		if err := json.Unmarshal(data, &req); err != nil || req.Content == "" {
			if send(streamEvent{Event: "error", Error: "expected {\"content\": \"...\"}"}) != nil {
				return
			}
			continue
		}

		// 客户端断开时停止补全
		ctx, cancel := context.WithCancel(r.Context())
		broken := false
		ans, err := s.answers.Answer(ctx, sess, req.Content, query.WithFragments(func(text string) {
			if broken {
				return
			}
			if send(streamEvent{Event: "fragment", Text: text}) != nil {
				broken = true
				cancel()
			}
		}))
		cancel()

		switch {
		case broken:
			slog.Info("client went away while streaming", "session", sess.ID)
			return
		case err != nil:
			err = send(streamEvent{Event: "error", Error: err.Error()})
		default:
			err = send(streamEvent{Event: "answer", Answer: &ans})
		}
		if err != nil {
			slog.Warn("websocket write failed", "session", sess.ID, "error", err)
			return
		}
	}
}
