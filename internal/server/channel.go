package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/config"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/logging"
)

// ChannelMessage is one outbound push over the chat channel socket.
type ChannelMessage struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Text   string `json:"text"`
	Total  int    `json:"total,omitempty"`
	Done   int    `json:"done,omitempty"`
	Failed int    `json:"failed,omitempty"`
}

// WSChannel pushes proactive messages (reminders, batch progress) to the chat
// channel over a websocket. It satisfies the reminder Notifier and the batch
// Progress interfaces. Send failures reconnect on the next attempt rather
// than buffering.
type WSChannel struct {
	cfg    config.ChannelConfig
	logger logging.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewWSChannel builds the channel client. Connections are lazy: the first
// Notify dials.
func NewWSChannel(cfg config.ChannelConfig, logger logging.Logger) *WSChannel {
	return &WSChannel{cfg: cfg, logger: logging.OrNop(logger)}
}

// Notify delivers a reminder text to the user.
func (w *WSChannel) Notify(userID, text string) error {
	return w.send(ChannelMessage{Type: "notify", UserID: userID, Text: text})
}

// Start announces the beginning of a batch commit.
func (w *WSChannel) Start(userID string, total int) {
	msg := ChannelMessage{
		Type:   "progress_start",
		UserID: userID,
		Text:   fmt.Sprintf("正在批量处理 %d 项，请稍候…", total),
		Total:  total,
	}
	if err := w.send(msg); err != nil {
		w.logger.Warn("progress start push failed: %v", err)
	}
}

// Complete announces the batch outcome.
func (w *WSChannel) Complete(userID string, succeeded, failed int) {
	msg := ChannelMessage{
		Type:   "progress_complete",
		UserID: userID,
		Done:   succeeded,
		Failed: failed,
	}
	if err := w.send(msg); err != nil {
		w.logger.Warn("progress complete push failed: %v", err)
	}
}

// Close tears the socket down. Further sends fail.
func (w *WSChannel) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	if w.conn != nil {
		err := w.conn.Close()
		w.conn = nil
		return err
	}
	return nil
}

func (w *WSChannel) send(msg ChannelMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("channel closed")
	}
	if err := w.ensureConnLocked(); err != nil {
		return err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode channel message: %w", err)
	}
	w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := w.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		// drop the connection; the next send redials
		w.conn.Close()
		w.conn = nil
		return fmt.Errorf("push channel message: %w", err)
	}
	return nil
}

func (w *WSChannel) ensureConnLocked() error {
	if w.conn != nil {
		return nil
	}
	if w.cfg.WebsocketURL == "" {
		return fmt.Errorf("channel websocket_url not configured")
	}

	header := http.Header{}
	if w.cfg.BotToken != "" {
		header.Set("Authorization", "Bearer "+w.cfg.BotToken)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(w.cfg.WebsocketURL, header)
	if err != nil {
		return fmt.Errorf("dial channel: %w", err)
	}
	w.conn = conn
	w.logger.Info("channel connected: %s", w.cfg.WebsocketURL)
	return nil
}
