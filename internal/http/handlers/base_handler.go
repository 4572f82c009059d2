// README: Shared handler utilities: JSON helpers and domain error mapping.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"takeout/internal/modules/order"
)

// Upstream contract sentinels: domain results travel as bare JSON strings.
const (
	resultSuccess      = "Success"
	resultFailure      = "Failure"
	resultUnauthorized = "Unauthorized"
)

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

// writeDomainError maps the order-module sentinels onto the wire contract:
// 400 for authorization and validation failures, non-200 plus "Failure" for
// lifecycle conflicts.
func writeDomainError(c *gin.Context, err error) {
	switch err {
	case order.ErrUnauthorized:
		writeJSON(c, http.StatusBadRequest, resultUnauthorized)
	case order.ErrInvalidRequest:
		writeJSON(c, http.StatusBadRequest, resultFailure)
	case order.ErrNotFound:
		writeJSON(c, http.StatusNotFound, resultFailure)
	case order.ErrInvalidState, order.ErrConflict:
		writeJSON(c, http.StatusConflict, resultFailure)
	default:
		writeJSON(c, http.StatusInternalServerError, "internal error")
	}
}
