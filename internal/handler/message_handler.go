package handler

import (
	"net/http"

	"relay-chat/internal/services"
	"relay-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	ingest *services.IngestService
}

func NewMessageHandler(ingest *services.IngestService) *MessageHandler {
	return &MessageHandler{ingest: ingest}
}

func (h *MessageHandler) Edit(c *gin.Context) {
	messageID, err := parseUUID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	var req httpdto.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_INPUT"))
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	msg, err := h.ingest.EditMessage(c.Request.Context(), userID, messageID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.MessageFromDomain(msg)))
}

func (h *MessageHandler) Delete(c *gin.Context) {
	messageID, err := parseUUID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.ingest.DeleteMessage(c.Request.Context(), userID, messageID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"deleted": true}))
}

// RepairSummary is the follow-up call after a last-message deletion; the
// client invokes it separately from the delete itself.
func (h *MessageHandler) RepairSummary(c *gin.Context) {
	conversationID, err := parseUUID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if _, ok := currentUser(c); !ok {
		return
	}
	if err := h.ingest.RepairSummary(c.Request.Context(), conversationID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"repaired": true}))
}
