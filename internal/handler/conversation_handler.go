package handler

import (
	"net/http"

	"relay-chat/internal/domain/conversation"
	"relay-chat/internal/services"
	"relay-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type ConversationHandler struct {
	membership *services.MembershipService
	chatList   *services.ChatListService
}

func NewConversationHandler(membership *services.MembershipService, chatList *services.ChatListService) *ConversationHandler {
	return &ConversationHandler{membership: membership, chatList: chatList}
}

func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	var req httpdto.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_INPUT"))
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	memberIDs, bad := parseUUIDs(req.Members)
	result, err := h.membership.CreateGroup(c.Request.Context(), userID, req.Name, memberIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	for _, v := range bad {
		result.Failed = append(result.Failed, services.MemberFailure{Reason: "invalid user id: " + v})
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(result))
}

func (h *ConversationHandler) AddMembers(c *gin.Context) {
	conversationID, err := parseUUID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	var req httpdto.AddMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_INPUT"))
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.membership.CanManage(c.Request.Context(), conversationID, userID); err != nil {
		respondError(c, err)
		return
	}

	memberIDs, bad := parseUUIDs(req.Members)
	result, err := h.membership.AddMembers(c.Request.Context(), conversationID, memberIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	for _, v := range bad {
		result.Failed = append(result.Failed, services.MemberFailure{Reason: "invalid user id: " + v})
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(result))
}

func (h *ConversationHandler) Leave(c *gin.Context) {
	conversationID, err := parseUUID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.membership.Leave(c.Request.Context(), conversationID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"left": true}))
}

func (h *ConversationHandler) Kick(c *gin.Context) {
	conversationID, err := parseUUID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	var req httpdto.KickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_INPUT"))
		return
	}
	targetID, err := parseUUID(req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.membership.Kick(c.Request.Context(), conversationID, userID, targetID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"kicked": req.UserID}))
}

func (h *ConversationHandler) UpdateRole(c *gin.Context) {
	conversationID, err := parseUUID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	targetID, err := parseUUID(c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}
	var req httpdto.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_INPUT"))
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.membership.CanManage(c.Request.Context(), conversationID, userID); err != nil {
		respondError(c, err)
		return
	}
	if err := h.membership.UpdateRole(c.Request.Context(), conversationID, targetID, conversation.Role(req.Role)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"role": req.Role}))
}

func (h *ConversationHandler) SetAvatar(c *gin.Context) {
	conversationID, err := parseUUID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	var req httpdto.SetAvatarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_INPUT"))
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.membership.CanManage(c.Request.Context(), conversationID, userID); err != nil {
		respondError(c, err)
		return
	}
	if err := h.membership.SetAvatar(c.Request.Context(), conversationID, req.AvatarKey); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"avatar_key": req.AvatarKey}))
}

func (h *ConversationHandler) DeleteGroup(c *gin.Context) {
	conversationID, err := parseUUID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.membership.CanManage(c.Request.Context(), conversationID, userID); err != nil {
		respondError(c, err)
		return
	}
	connected, err := h.membership.PermanentlyDelete(c.Request.Context(), conversationID)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := httpdto.DeleteGroupResponse{Notified: make([]string, 0, len(connected))}
	for _, id := range connected {
		resp.Notified = append(resp.Notified, id.String())
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(resp))
}

func (h *ConversationHandler) CreateDirect(c *gin.Context) {
	var req httpdto.CreateDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_INPUT"))
		return
	}
	peerID, err := parseUUID(req.PeerID)
	if err != nil {
		respondError(c, err)
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conv, err := h.membership.EnsureDirect(c.Request.Context(), userID, peerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(conv))
}

func (h *ConversationHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	summaries, err := h.chatList.ListFor(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"chats": summaries}))
}

func (h *ConversationHandler) MarkRead(c *gin.Context) {
	conversationID, err := parseUUID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	var req httpdto.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_INPUT"))
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.chatList.MarkRead(c.Request.Context(), userID, conversationID, req.Read); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"read": req.Read}))
}

func (h *ConversationHandler) Hide(c *gin.Context) {
	conversationID, err := parseUUID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.chatList.MarkDeleted(c.Request.Context(), userID, conversationID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"hidden": true}))
}
