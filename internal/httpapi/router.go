// Package httpapi serves a read-only JSON view of the agenda for widgets
// and calendar clients.
package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hray3182/agenda/internal/agenda"
)

func NewRouter(svc *agenda.Service, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(GinZapMiddleware(logger), gin.Recovery())
	RegisterRoutes(r, NewHandler(svc, time.Now))
	return r
}

func RegisterRoutes(r *gin.Engine, h *Handler) {
	r.GET("/healthz", h.Health)

	api := r.Group("/api")
	{
		api.GET("/days/:date", h.Day)
		api.GET("/calendar/:month", h.Calendar)
		api.GET("/widget", h.Widget)
		api.GET("/patterns", h.Patterns)
	}
}
