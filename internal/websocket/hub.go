package websocket

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/casaflow-io/casaflowgo/internal/models"
)

// Hub maintains the set of connected dashboard clients and fans status
// updates out to all of them.
type Hub struct {
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		clients:    make(map[string]*Client),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.ID]; ok {
				close(old.send)
			}
			h.clients[client.ID] = client
			h.mu.Unlock()
			log.Printf("🖥️ Dashboard connected: %s", client.ID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.send)
				log.Printf("📴 Dashboard disconnected: %s", client.ID)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for id, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// slow consumer, drop the update rather than block the hub
					log.Printf("⚠️ Dropping update for slow dashboard %s", id)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// offerUpdate is the wire shape of a status push
type offerUpdate struct {
	Type    string `json:"type"`
	OfferID string `json:"offerId"`
	Status  string `json:"status"`
}

// BroadcastOfferUpdate pushes an offer status change to every connected
// dashboard. Satisfies the offers.Broadcaster interface.
func (h *Hub) BroadcastOfferUpdate(offerID string, status models.OfferStatus) {
	h.Broadcast(offerUpdate{Type: "OFFER_STATUS", OfferID: offerID, Status: string(status)})
}

// Broadcast sends any JSON-marshalable message to all clients
func (h *Hub) Broadcast(message interface{}) {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}
	h.broadcast <- jsonMsg
}
