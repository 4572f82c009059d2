// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"takeout/internal/http/handlers"
	"takeout/internal/http/middleware"
	"takeout/internal/modules/dispatch"
	"takeout/internal/modules/order"
)

// NewRouter wires the upstream contract's POST-body RPC surface. Tokens
// travel in request bodies, so resolution happens in the services rather
// than in middleware.
func NewRouter(orderService *order.Service, engine *dispatch.Engine, log zerolog.Logger) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Logging(log), middleware.Recovery(log))

	orderHandler := handlers.NewOrderHandler(orderService)
	riderHandler := handlers.NewRiderHandler(engine)

	api := r.Group("/api")
	api.POST("/CreateOrder", orderHandler.Create)
	api.POST("/GetOrderDetails", orderHandler.Details)
	api.POST("/QueryOrdersByUser", orderHandler.QueryByUser)
	api.POST("/GetUnassignedOrders", orderHandler.Unassigned)
	api.POST("/UpdateStatus", orderHandler.UpdateStatus)
	api.POST("/UpdateRiderStatus", riderHandler.UpdateStatus)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
