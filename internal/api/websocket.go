package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/patrickmn/go-cache"

	"github.com/shouni/go-storyboard-kit/pkg/workflow"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
	// historyLimit は実行ごとに保持する進捗イベント数です。後から接続したクライアントに再送します。
	historyLimit = 64
	// historyIdleTTL を過ぎても終了イベントが来ない実行の履歴は破棄します。
	historyIdleTTL = 2 * time.Hour
	// historyGrace は終了後に履歴を残す時間です。
	historyGrace           = 5 * time.Minute
	historyCleanupInterval = 10 * time.Minute
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsClient は1つの WebSocket 接続です。
type wsClient struct {
	conn   *websocket.Conn
	runID  string
	send   chan []byte
	closed int32
}

func (c *wsClient) close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		close(c.send)
	}
}

// Hub は実行 ID ごとの購読者に進捗イベントを配信します。workflow.ProgressReporter を実装します。
// 再送用の履歴は実行の終了から一定時間で破棄します。
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*wsClient]struct{}
	history *cache.Cache
	idleTTL time.Duration
	grace   time.Duration
}

// NewHub は Hub を生成します。
func NewHub() *Hub {
	return newHub(historyIdleTTL, historyGrace)
}

func newHub(idleTTL, grace time.Duration) *Hub {
	return &Hub{
		clients: make(map[string]map[*wsClient]struct{}),
		history: cache.New(idleTTL, historyCleanupInterval),
		idleTTL: idleTTL,
		grace:   grace,
	}
}

func (h *Hub) historyLocked(runID string) []workflow.Event {
	if v, ok := h.history.Get(runID); ok {
		return v.([]workflow.Event)
	}
	return nil
}

// Report はイベントを履歴に積み、購読中のクライアントに送ります。送信キューが溢れたクライアントは切断します。
func (h *Hub) Report(ev workflow.Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("Failed to encode progress event", "run_id", ev.RunID, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.historyLocked(ev.RunID)
	hist := make([]workflow.Event, 0, min(len(prev)+1, historyLimit))
	if len(prev) >= historyLimit {
		prev = prev[len(prev)-historyLimit+1:]
	}
	hist = append(append(hist, prev...), ev)
	ttl := h.idleTTL
	if ev.Status == workflow.EventFinished {
		ttl = h.grace
	}
	h.history.Set(ev.RunID, hist, ttl)

	for c := range h.clients[ev.RunID] {
		select {
		case c.send <- msg:
		default:
			slog.Warn("WebSocket send queue full, dropping client", "run_id", ev.RunID)
			h.removeLocked(c)
		}
	}
}

// History は実行 ID の進捗イベントを古い順に返します。
func (h *Hub) History(runID string) []workflow.Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	hist := h.historyLocked(runID)
	out := make([]workflow.Event, len(hist))
	copy(out, hist)
	return out
}

// Subscribers は実行 ID の購読者数を返します。
func (h *Hub) Subscribers(runID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[runID])
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.runID] == nil {
		h.clients[c.runID] = make(map[*wsClient]struct{})
	}
	h.clients[c.runID][c] = struct{}{}

	// 接続前のイベントを再送
	for _, ev := range h.historyLocked(c.runID) {
		if msg, err := json.Marshal(ev); err == nil {
			select {
			case c.send <- msg:
			default:
			}
		}
	}
	slog.Info("WebSocket client connected", "run_id", c.runID)
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *wsClient) {
	if conns, ok := h.clients[c.runID]; ok {
		if _, ok := conns[c]; !ok {
			return
		}
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, c.runID)
		}
	}
	c.close()
	slog.Info("WebSocket client disconnected", "run_id", c.runID)
}

// ServeWS は接続をアップグレードして runID の進捗を購読させます。
func (h *Hub) ServeWS(c *gin.Context, runID string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "run_id", runID, "error", err)
		return
	}
	client := &wsClient{conn: conn, runID: runID, send: make(chan []byte, sendBufferSize)}
	h.register(client)

	go h.writePump(client)
	h.readPump(client)
}

// readPump はクライアントからのメッセージを読み捨て、切断を検知します。
func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ workflow.ProgressReporter = (*Hub)(nil)
