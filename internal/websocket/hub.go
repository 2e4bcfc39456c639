package websocket

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type subscriptionRequest struct {
	userID         uuid.UUID
	conversationID uuid.UUID
	subscribe      bool
}

// Hub manages socket clients and their per-conversation broadcast channels.
// Channel membership changes flow through the event loop; broadcasts read
// the maps directly under RLock so the services can push synchronously.
type Hub struct {
	mu sync.RWMutex

	clients map[string]*Client
	// byUser keeps at most one client per user, last-registered wins.
	byUser        map[uuid.UUID]*Client
	conversations map[uuid.UUID]map[*Client]struct{}

	register     chan *Client
	unregister   chan *Client
	subscription chan subscriptionRequest
}

func NewHub() *Hub {
	return &Hub{
		clients:       make(map[string]*Client),
		byUser:        make(map[uuid.UUID]*Client),
		conversations: make(map[uuid.UUID]map[*Client]struct{}),
		register:      make(chan *Client, 256),
		unregister:    make(chan *Client, 256),
		subscription:  make(chan subscriptionRequest, 512),
	}
}

// Run starts the hub's event loop.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case req := <-h.subscription:
			if req.subscribe {
				h.subscribe(req.userID, req.conversationID)
			} else {
				h.unsubscribe(req.userID, req.conversationID)
			}
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// JoinConversation subscribes the user's live client, if any, to the
// conversation channel. A user with no connection is a no-op; they join on
// next connect.
func (h *Hub) JoinConversation(userID, conversationID uuid.UUID) {
	h.subscription <- subscriptionRequest{userID: userID, conversationID: conversationID, subscribe: true}
}

func (h *Hub) LeaveConversation(userID, conversationID uuid.UUID) {
	h.subscription <- subscriptionRequest{userID: userID, conversationID: conversationID, subscribe: false}
}

// JoinAll subscribes a freshly connected client to all its conversation
// channels synchronously, before the read loop starts.
func (h *Hub) JoinAll(client *Client, conversationIDs []uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range conversationIDs {
		h.subscribeLocked(client, id)
	}
}

// BroadcastToConversation sends to every live client in the channel, targets
// resolved at send time.
func (h *Hub) BroadcastToConversation(conversationID uuid.UUID, payload []byte) {
	h.mu.RLock()
	for client := range h.conversations[conversationID] {
		client.Send(payload)
	}
	h.mu.RUnlock()
}

// SendToUser sends to the user's live connection, if any.
func (h *Hub) SendToUser(userID uuid.UUID, payload []byte) bool {
	h.mu.RLock()
	client, ok := h.byUser[userID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return client.Send(payload)
}

// CloseConversation drops the channel after a permanent room deletion.
func (h *Hub) CloseConversation(conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.conversations[conversationID] {
		client.leaveConversation(conversationID)
	}
	delete(h.conversations, conversationID)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.byUser[client.UserID] = client
	h.mu.Unlock()
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, conversationID := range client.Conversations() {
		if subscribers, ok := h.conversations[conversationID]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.conversations, conversationID)
			}
		}
	}

	delete(h.clients, client.ID)
	// A reconnect may already own the user slot.
	if current, ok := h.byUser[client.UserID]; ok && current == client {
		delete(h.byUser, client.UserID)
	}
	client.closeSend()
}

func (h *Hub) subscribe(userID, conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client, ok := h.byUser[userID]
	if !ok {
		return
	}
	h.subscribeLocked(client, conversationID)
}

func (h *Hub) subscribeLocked(client *Client, conversationID uuid.UUID) {
	if _, ok := h.conversations[conversationID]; !ok {
		h.conversations[conversationID] = make(map[*Client]struct{})
	}
	h.conversations[conversationID][client] = struct{}{}
	client.joinConversation(conversationID)
}

func (h *Hub) unsubscribe(userID, conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client, ok := h.byUser[userID]
	if !ok {
		return
	}
	if subscribers, ok := h.conversations[conversationID]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.conversations, conversationID)
		}
	}
	client.leaveConversation(conversationID)
}
