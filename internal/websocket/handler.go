package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"relay-chat/internal/domain/conversation"
	"relay-chat/internal/events"
	"relay-chat/internal/registry"
	"relay-chat/internal/repository"
	"relay-chat/internal/services"
	"relay-chat/internal/transport/httpdto"
	relay_errors "relay-chat/pkg/errors"
	"relay-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// PresenceMarker is the subset of the presence store the socket layer sets.
type PresenceMarker interface {
	SetOnline(ctx context.Context, userID uuid.UUID) error
	SetOffline(ctx context.Context, userID uuid.UUID) error
	Refresh(ctx context.Context, userID uuid.UUID) error
}

type Handler struct {
	auth     *services.AuthService
	hub      *Hub
	registry *registry.Registry
	ingest   *services.IngestService
	convs    repository.ConversationRepository
	presence PresenceMarker
	log      *logger.Logger
}

func NewHandler(
	auth *services.AuthService,
	hub *Hub,
	reg *registry.Registry,
	ingest *services.IngestService,
	convs repository.ConversationRepository,
	presence PresenceMarker,
	log *logger.Logger,
) *Handler {
	return &Handler{
		auth:     auth,
		hub:      hub,
		registry: reg,
		ingest:   ingest,
		convs:    convs,
		presence: presence,
		log:      log,
	}
}

type sendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Kind           string `json:"kind"`
	Content        string `json:"content"`
	MediaKey       string `json:"media_key"`
	IdempotencyKey string `json:"idempotency_key"`
}

type syncRequest struct {
	ConversationID string `json:"conversation_id"`
	AfterSeq       int64  `json:"after_seq"`
	Limit          int    `json:"limit"`
}

type ackPayload struct {
	MessageID      string `json:"message_id"`
	Seq            int64  `json:"seq"`
	IdempotencyKey string `json:"idempotency_key"`
	Duplicate      bool   `json:"duplicate"`
}

type errorPayload struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// Connect upgrades the request, registers the connection and runs the read
// loop until the socket closes.
func (h *Handler) Connect(c *gin.Context) {
	token := c.Query("token")
	claims, err := h.auth.ParseAccessToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := NewClient(conn, userID)
	ctx, cancel := context.WithCancel(services.WithUserContext(context.Background(), userID))
	defer cancel()

	h.hub.Register(client)
	h.registry.Register(userID, client)

	// Join one broadcast channel per conversation the user belongs to.
	conversationIDs, err := h.convs.ConversationIDsForUser(ctx, userID)
	if err != nil {
		h.log.Errorf("resolve conversations for user %s: %v", userID, err)
	} else {
		h.hub.JoinAll(client, conversationIDs)
	}

	if h.presence != nil {
		if err := h.presence.SetOnline(ctx, userID); err != nil {
			h.log.Warnf("presence set online for %s: %v", userID, err)
		}
	}

	go client.WriteLoop(ctx)
	h.readLoop(ctx, client)

	h.hub.Unregister(client)
	if h.registry.UnregisterIfCurrent(userID, client) {
		// Only the current handle marks the user offline; a stale disconnect
		// racing a reconnect must not.
		if h.presence != nil {
			if err := h.presence.SetOffline(context.Background(), userID); err != nil {
				h.log.Warnf("presence set offline for %s: %v", userID, err)
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, client *Client) {
	conn := client.Conn
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		if h.presence != nil {
			_ = h.presence.Refresh(ctx, client.UserID)
		}
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))

		var env events.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			client.Send(events.Marshal("error", errorPayload{Code: "INVALID_INPUT", Error: "malformed envelope"}))
			continue
		}

		switch env.Event {
		case events.EventSendMessage:
			h.handleSend(ctx, client, env.Payload)
		case events.EventSync:
			h.handleSync(ctx, client, env.Payload)
		default:
			client.Send(events.Marshal("error", errorPayload{Code: "INVALID_INPUT", Error: "unknown event"}))
		}
	}
}

func (h *Handler) handleSend(ctx context.Context, client *Client, raw json.RawMessage) {
	var req sendMessageRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		client.Send(events.Marshal("error", errorPayload{Code: "INVALID_INPUT", Error: "malformed send-message"}))
		return
	}
	conversationID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		client.Send(events.Marshal("error", errorPayload{Code: "INVALID_INPUT", Error: "invalid conversation_id"}))
		return
	}

	res, err := h.ingest.Ingest(ctx, services.IngestInput{
		ConversationID: conversationID,
		Kind:           conversation.Kind(req.Kind),
		SenderID:       client.UserID,
		Content:        req.Content,
		MediaKey:       req.MediaKey,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		client.Send(events.Marshal("error", errorPayload{Code: relay_errors.Code(err), Error: err.Error()}))
		return
	}
	client.Send(events.Marshal("ack", ackPayload{
		MessageID:      res.Message.ID.String(),
		Seq:            res.Message.Seq,
		IdempotencyKey: res.Message.IdempotencyKey,
		Duplicate:      res.Duplicate,
	}))
}

func (h *Handler) handleSync(ctx context.Context, client *Client, raw json.RawMessage) {
	var req syncRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		client.Send(events.Marshal("error", errorPayload{Code: "INVALID_INPUT", Error: "malformed sync"}))
		return
	}
	conversationID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		client.Send(events.Marshal("error", errorPayload{Code: "INVALID_INPUT", Error: "invalid conversation_id"}))
		return
	}
	messages, err := h.ingest.MessagesSince(ctx, client.UserID, conversationID, req.AfterSeq, req.Limit)
	if err != nil {
		client.Send(events.Marshal("error", errorPayload{Code: relay_errors.Code(err), Error: err.Error()}))
		return
	}
	client.Send(events.Marshal("sync-result", httpdto.MessagesFromDomain(conversationID, messages)))
}
