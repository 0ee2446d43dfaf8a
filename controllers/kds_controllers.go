package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yeremiapane/cafe-orders/kds"
	"github.com/yeremiapane/cafe-orders/middlewares"
)

type KDSController struct {
	Hub      *kds.KDSHub
	upgrader websocket.Upgrader
}

// NewKDSController only upgrades requests whose Origin is in allowedOrigins.
// Requests without an Origin header (non-browser clients) are accepted.
func NewKDSController(hub *kds.KDSHub, allowedOrigins []string) *KDSController {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &KDSController{
		Hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// KDSHandler -> GET /ws/orders?token=...&topics=orders.new,orders.status
func (kc *KDSController) KDSHandler(c *gin.Context) {
	role := c.GetString(middlewares.ContextRole)

	var requested []string
	if q := c.Query("topics"); q != "" {
		requested = strings.Split(q, ",")
	}
	topics := kds.ParseTopics(requested)

	ws, err := kc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade sudah menulis response error
		return
	}

	kc.Hub.Serve(ws, role, topics)
}
