package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yeremiapane/kitchen-display/controllers"
	"github.com/yeremiapane/kitchen-display/kds"
	"github.com/yeremiapane/kitchen-display/middlewares"
)

// FeedDeps -> dependency untuk server feed order
type FeedDeps struct {
	Orders      controllers.OrderStore
	Authorizer  *middlewares.Authorizer
	Hub         *kds.Hub
	RateLimiter *middlewares.RateLimiter
	AllowOrigin string
}

func newEngine(rl *middlewares.RateLimiter, allowOrigin string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.LoggerMiddleware())
	r.Use(middlewares.CORSMiddlewares(allowOrigin))
	r.Use(middlewares.SecurityHeaders())
	if rl != nil {
		r.Use(rl.RateLimit())
	}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	return r
}

func SetupFeedRouter(deps FeedDeps) *gin.Engine {
	r := newEngine(deps.RateLimiter, deps.AllowOrigin)
	az := deps.Authorizer

	orderCtrl := controllers.NewOrderController(deps.Orders, az)
	kdsCtrl := controllers.NewKDSController(deps.Hub)

	r.POST("/orders", middlewares.AuthMiddleware(), az.RoleCheck(middlewares.ObjOrders, "create"), orderCtrl.CreateOrder)

	admin := r.Group("/admin", middlewares.AuthMiddleware())
	{
		admin.GET("/kitchen/orders", az.RoleCheck(middlewares.ObjKitchenOrders, "read"), orderCtrl.GetKitchenOrders)
		admin.POST("/kitchen/refresh", az.RoleCheck(middlewares.ObjRefresh, "update"), orderCtrl.RequestRefresh)
		// izin per status tujuan dicek di controller
		admin.PATCH("/orders/:id/status", orderCtrl.UpdateOrderStatus)
		admin.PATCH("/orders/:id/priority", az.RoleCheck(middlewares.ObjOrderPriority, "update"), orderCtrl.UpdateOrderPriority)
	}

	r.GET("/ws/:role",
		middlewares.WebSocketAuthMiddleware(),
		az.StreamRoleCheck(),
		az.RoleCheck(middlewares.ObjKitchenStream, "read"),
		kdsCtrl.KDSHandler,
	)

	return r
}

// DisplayDeps -> dependency untuk layar dapur
type DisplayDeps struct {
	Engine      controllers.DisplayEngine
	Hub         *kds.Hub
	Gatherer    prometheus.Gatherer
	RateLimiter *middlewares.RateLimiter
	AllowOrigin string
}

func SetupDisplayRouter(deps DisplayDeps) *gin.Engine {
	r := newEngine(deps.RateLimiter, deps.AllowOrigin)

	displayCtrl := controllers.NewDisplayController(deps.Engine)
	kdsCtrl := controllers.NewKDSController(deps.Hub)

	display := r.Group("/display")
	{
		display.GET("/orders", displayCtrl.GetOrders)
		display.GET("/connection", displayCtrl.GetConnection)
		display.GET("/notifications", displayCtrl.GetNotifications)
		display.GET("/timers", displayCtrl.GetTimers)
		display.POST("/orders/:id/transition", displayCtrl.Transition)
		display.POST("/orders/:id/priority", displayCtrl.SetPriority)
		display.POST("/mute", displayCtrl.SetMute)
		display.POST("/filter", displayCtrl.SetFilter)
		display.GET("/ws", kdsCtrl.DisplayStreamHandler)
	}

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	return r
}
