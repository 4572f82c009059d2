// README: Rider endpoint: status updates gated by the dispatch engine.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"takeout/internal/identity"
	"takeout/internal/modules/dispatch"
)

type RiderHandler struct {
	engine *dispatch.Engine
}

func NewRiderHandler(engine *dispatch.Engine) *RiderHandler {
	return &RiderHandler{engine: engine}
}

type updateRiderStatusReq struct {
	UserToken string `json:"userToken"`
	NewStatus string `json:"newStatus"`
}

func (h *RiderHandler) UpdateStatus(c *gin.Context) {
	var req updateRiderStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, resultFailure)
		return
	}
	err := h.engine.UpdateRiderStatus(c.Request.Context(), req.UserToken, identity.RiderStatus(req.NewStatus))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, resultSuccess)
}
