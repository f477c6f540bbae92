package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

// SnapshotFunc devolve a última notificação publicada, ou nil se não houver
type SnapshotFunc func(ctx context.Context) ([]byte, error)

// Hub mantém as conexões dos espectadores. Toda conexão recebe todas as
// notificações da rodada; não há assinatura por evento.
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger
	snapshot SnapshotFunc

	mu    sync.RWMutex
	conns map[*websocket.Conn]*sync.Mutex // lock de escrita por conexão
}

func NewHub(allowOrigin func(r *http.Request) bool, log *zap.Logger, snapshot SnapshotFunc) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		log:      log,
		snapshot: snapshot,
		conns:    make(map[*websocket.Conn]*sync.Mutex),
	}
}

// HandleWS envia o snapshot atual, registra a conexão e responde pings
// até o cliente desconectar
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	wmu := &sync.Mutex{}

	// snapshot antes de registrar: nada ao vivo chega antes dele
	wmu.Lock()
	h.mu.Lock()
	h.conns[conn] = wmu
	h.mu.Unlock()
	if h.snapshot != nil {
		if b, err := h.snapshot(r.Context()); err != nil {
			h.log.Warn("load relay snapshot", zap.Error(err))
		} else if b != nil {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.TextMessage, b)
		}
	}
	wmu.Unlock()

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		if msg.Type == "ping" {
			wmu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteJSON(map[string]string{"type": "pong"})
			wmu.Unlock()
		}
	}

	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

// Broadcast repassa a notificação já serializada para todos os espectadores
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c, wmu := range h.conns {
		wmu.Lock()
		_ = c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.log.Debug("ws write failed", zap.String("remote", c.RemoteAddr().String()), zap.Error(err))
		}
		wmu.Unlock()
	}
}

// Len informa quantos espectadores estão conectados
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
