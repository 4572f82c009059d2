// README: Order endpoints: create, details, user queries, lifecycle updates.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"takeout/internal/modules/order"
	"takeout/internal/types"
)

type OrderHandler struct {
	order *order.Service
}

func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{order: svc}
}

type productRef struct {
	ProductID   string  `json:"productID"`
	MerchantID  string  `json:"merchantID"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
}

type createOrderReq struct {
	CustomerToken      string       `json:"customerToken"`
	MerchantID         string       `json:"merchantID"`
	ProductList        []productRef `json:"productList"`
	DestinationAddress string       `json:"destinationAddress"`
}

// Create builds the order from authoritative catalog data; only the product
// names are taken from the caller's list.
func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, resultFailure)
		return
	}
	refs := make([]order.ProductRef, len(req.ProductList))
	for i, p := range req.ProductList {
		refs[i] = order.ProductRef{Name: p.Name}
	}
	id, err := h.order.Create(c.Request.Context(), order.CreateCommand{
		CustomerToken:      req.CustomerToken,
		MerchantID:         types.ID(req.MerchantID),
		Products:           refs,
		DestinationAddress: req.DestinationAddress,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, id)
}

type orderIDReq struct {
	OrderID string `json:"orderID"`
}

func (h *OrderHandler) Details(c *gin.Context) {
	var req orderIDReq
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderID == "" {
		writeJSON(c, http.StatusBadRequest, resultFailure)
		return
	}
	o, err := h.order.Get(c.Request.Context(), types.ID(req.OrderID))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type userTokenReq struct {
	UserToken string `json:"userToken"`
}

func (h *OrderHandler) QueryByUser(c *gin.Context) {
	var req userTokenReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, resultFailure)
		return
	}
	orders, err := h.order.QueryByUser(c.Request.Context(), req.UserToken)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	writeJSON(c, http.StatusOK, orders)
}

func (h *OrderHandler) Unassigned(c *gin.Context) {
	orders, err := h.order.ListUnassigned(c.Request.Context())
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	writeJSON(c, http.StatusOK, orders)
}

type updateStatusReq struct {
	UserToken string `json:"userToken"`
	OrderID   string `json:"orderID"`
	NewStatus string `json:"newStatus"`
}

// UpdateStatus drives token-gated lifecycle transitions. Entering
// "delivering" is reserved for the dispatch engine and rejected here.
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderID == "" {
		writeJSON(c, http.StatusBadRequest, resultFailure)
		return
	}

	ctx := c.Request.Context()
	orderID := types.ID(req.OrderID)
	var err error
	switch order.Status(req.NewStatus) {
	case order.StatusAwaitingPickup:
		err = h.order.AdvancePreparation(ctx, req.UserToken, orderID)
	case order.StatusCompleted:
		err = h.order.CompleteDelivery(ctx, req.UserToken, orderID)
	case order.StatusCancelled:
		err = h.order.Cancel(ctx, req.UserToken, orderID)
	default:
		err = order.ErrInvalidRequest
	}
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, resultSuccess)
}
