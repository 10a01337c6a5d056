package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yeremiapane/kitchen-display/kds"
	"github.com/yeremiapane/kitchen-display/middlewares"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // layar dapur dilayani dari origin lain
	},
}

type KDSController struct {
	Hub *kds.Hub
}

func NewKDSController(hub *kds.Hub) *KDSController {
	return &KDSController{Hub: hub}
}

// KDSHandler -> endpoint WebSocket feed, role dari token
func (kc *KDSController) KDSHandler(c *gin.Context) {
	role := c.GetString(middlewares.ContextRole)
	if role == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	kc.serve(c, role)
}

// DisplayStreamHandler -> endpoint WebSocket untuk UI layar dapur
func (kc *KDSController) DisplayStreamHandler(c *gin.Context) {
	kc.serve(c, "display")
}

func (kc *KDSController) serve(c *gin.Context, role string) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	kc.Hub.RegisterClient(ws, role)

	// Baca pesan sampai client putus, ping dibalas otomatis
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	kc.Hub.UnregisterClient(ws)
}
