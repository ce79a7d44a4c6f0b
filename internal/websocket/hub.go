package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dukerupert/gemloyalty/internal/model"
)

const TypeLedgerChanged = "ledger_changed"

var droppedMessages = promauto.NewCounter(prometheus.CounterOpts{
	Name: "loyalty_feed_dropped_messages_total",
	Help: "Feed messages dropped because a client's buffer was full",
})

// Message tells dashboard clients that an account's ledger changed. It
// carries no balances; clients refetch what they display.
type Message struct {
	Type      string                `json:"type"`
	AccountID string                `json:"account_id"`
	Kind      model.TransactionType `json:"kind"`
	At        time.Time             `json:"at"`
}

// Hub fans ledger change messages out to connected clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
	now     func() time.Time
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// LedgerChanged broadcasts a change for accountID. It never blocks the
// caller, which is the ledger engine right after a commit.
func (h *Hub) LedgerChanged(accountID string, kind model.TransactionType) {
	h.Broadcast(Message{
		Type:      TypeLedgerChanged,
		AccountID: accountID,
		Kind:      kind,
		At:        h.now(),
	})
}

// Broadcast sends msg to every client watching all accounts or msg's
// account.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.wants(msg.AccountID) {
			continue
		}
		select {
		case c.send <- data:
		default:
			droppedMessages.Inc()
			h.logger.Warn("feed client too slow, message dropped", "account_id", msg.AccountID)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
