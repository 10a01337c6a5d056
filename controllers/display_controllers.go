package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/kitchen-display/kds"
	"github.com/yeremiapane/kitchen-display/models"
	"github.com/yeremiapane/kitchen-display/utils"
)

// DisplayEngine is the part of *kds.Engine served to the kitchen screen.
type DisplayEngine interface {
	ProjectedOrders(mode models.FilterMode) ([]kds.OrderView, error)
	ProjectedOrdersForCurrentFilter() []kds.OrderView
	ConnectionState() models.ConnectionState
	Timers() []models.TimerState
	RecentNotifications() []models.Notification
	RequestTransition(ctx context.Context, id uint, next models.Status) error
	RequestPriorityChange(ctx context.Context, id uint, priority models.Priority) error
	Order(id uint) (kds.OrderView, bool)
	SetMute(muted bool)
	Muted() bool
	SetFilterMode(mode models.FilterMode) error
	FilterMode() models.FilterMode
}

type DisplayController struct {
	Engine DisplayEngine
}

func NewDisplayController(engine DisplayEngine) *DisplayController {
	return &DisplayController{Engine: engine}
}

// GetOrders -> ?filter= kosong berarti pakai filter layar saat ini
func (dc *DisplayController) GetOrders(c *gin.Context) {
	raw := c.Query("filter")
	if raw == "" {
		utils.RespondJSON(c, http.StatusOK, "Orders", gin.H{
			"filter": dc.Engine.FilterMode(),
			"orders": dc.Engine.ProjectedOrdersForCurrentFilter(),
		})
		return
	}

	mode, err := models.ParseFilterMode(raw)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	orders, err := dc.Engine.ProjectedOrders(mode)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Orders", gin.H{"filter": mode, "orders": orders})
}

func (dc *DisplayController) GetConnection(c *gin.Context) {
	state := dc.Engine.ConnectionState()
	utils.RespondJSON(c, http.StatusOK, "Connection state", gin.H{
		"connection": state,
		"degraded":   state.Degraded(),
	})
}

func (dc *DisplayController) GetTimers(c *gin.Context) {
	utils.RespondJSON(c, http.StatusOK, "Active timers", dc.Engine.Timers())
}

func (dc *DisplayController) GetNotifications(c *gin.Context) {
	utils.RespondJSON(c, http.StatusOK, "Recent notifications", gin.H{
		"muted":         dc.Engine.Muted(),
		"notifications": dc.Engine.RecentNotifications(),
	})
}

// Transition -> optimistic, dikonfirmasi ke feed server
func (dc *DisplayController) Transition(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	next, err := models.ParseStatus(body.Status)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	if err := dc.Engine.RequestTransition(c.Request.Context(), id, next); err != nil {
		respondDomainError(c, err)
		return
	}
	view, _ := dc.Engine.Order(id)
	utils.RespondJSON(c, http.StatusOK, "Status updated", view)
}

func (dc *DisplayController) SetPriority(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}
	var body struct {
		Priority string `json:"priority" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	if err := dc.Engine.RequestPriorityChange(c.Request.Context(), id, models.Priority(body.Priority)); err != nil {
		respondDomainError(c, err)
		return
	}
	view, _ := dc.Engine.Order(id)
	utils.RespondJSON(c, http.StatusOK, "Priority updated", view)
}

func (dc *DisplayController) SetMute(c *gin.Context) {
	var body struct {
		Muted *bool `json:"muted" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	dc.Engine.SetMute(*body.Muted)
	utils.RespondJSON(c, http.StatusOK, "Mute updated", gin.H{"muted": dc.Engine.Muted()})
}

func (dc *DisplayController) SetFilter(c *gin.Context) {
	var body struct {
		Filter string `json:"filter" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if err := dc.Engine.SetFilterMode(models.FilterMode(body.Filter)); err != nil {
		respondDomainError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Filter updated", gin.H{"filter": dc.Engine.FilterMode()})
}
