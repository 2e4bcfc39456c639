package handler

import (
	"net/http"

	"relay-chat/internal/services"
	"relay-chat/internal/transport/httpdto"
	relay_errors "relay-chat/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func respondError(c *gin.Context, err error) {
	c.JSON(relay_errors.HTTPStatus(err), httpdto.NewErrorResponse(err.Error(), relay_errors.Code(err)))
}

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return uuid.Nil, false
	}
	return userID, true
}

func parseUUID(value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, relay_errors.ErrInvalidInput
	}
	return id, nil
}

func parseUUIDs(values []string) ([]uuid.UUID, []string) {
	ids := make([]uuid.UUID, 0, len(values))
	var bad []string
	for _, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			bad = append(bad, v)
			continue
		}
		ids = append(ids, id)
	}
	return ids, bad
}
