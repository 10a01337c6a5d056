package controllers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/kitchen-display/middlewares"
	"github.com/yeremiapane/kitchen-display/models"
	"github.com/yeremiapane/kitchen-display/services"
	"github.com/yeremiapane/kitchen-display/utils"
)

// OrderStore adalah bagian OrderService yang dipakai controller.
type OrderStore interface {
	Create(ctx context.Context, in services.CreateOrderInput) (*models.Order, error)
	KitchenSnapshot(ctx context.Context) ([]models.Order, error)
	UpdateStatus(ctx context.Context, id uint, next models.Status) (*models.Order, error)
	UpdatePriority(ctx context.Context, id uint, priority models.Priority) (*models.Order, error)
	RequestRefresh(ctx context.Context) error
}

type Authorizer interface {
	Allowed(role, obj, act string) (bool, error)
}

type OrderController struct {
	Orders OrderStore
	Auth   Authorizer
}

func NewOrderController(orders OrderStore, auth Authorizer) *OrderController {
	return &OrderController{Orders: orders, Auth: auth}
}

func parseOrderID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		utils.RespondError(c, http.StatusBadRequest, ErrInvalidID)
		return 0, false
	}
	return uint(id), true
}

// CreateOrder -> order baru masuk dapur dengan status pending
func (oc *OrderController) CreateOrder(c *gin.Context) {
	var body services.CreateOrderInput
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	order, err := oc.Orders.Create(c.Request.Context(), body)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Order created", order)
}

// GetKitchenOrders -> snapshot penuh untuk layar dapur
func (oc *OrderController) GetKitchenOrders(c *gin.Context) {
	orders, err := oc.Orders.KitchenSnapshot(c.Request.Context())
	if err != nil {
		respondDomainError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Kitchen orders", orders)
}

// UpdateOrderStatus -> izin dicek per status tujuan
func (oc *OrderController) UpdateOrderStatus(c *gin.Context) {
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

	role := c.GetString(middlewares.ContextRole)
	allowed, err := oc.Auth.Allowed(role, middlewares.ObjOrderStatus, string(next))
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	if !allowed {
		utils.RespondError(c, http.StatusForbidden, fmt.Errorf("%w: %s cannot set %s", ErrNoPermission, role, next))
		return
	}

	order, err := oc.Orders.UpdateStatus(c.Request.Context(), id, next)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	utils.InfoLogger.WithFields(logrus.Fields{"order_id": id, "status": next, "role": role}).Info("order status updated")
	utils.RespondJSON(c, http.StatusOK, "Order status updated", order)
}

func (oc *OrderController) UpdateOrderPriority(c *gin.Context) {
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
	priority, err := models.ParsePriority(body.Priority)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	order, err := oc.Orders.UpdatePriority(c.Request.Context(), id, priority)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order priority updated", order)
}

// RequestRefresh -> semua layar diminta tarik snapshot baru
func (oc *OrderController) RequestRefresh(c *gin.Context) {
	if err := oc.Orders.RequestRefresh(c.Request.Context()); err != nil {
		respondDomainError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusAccepted, "Refresh requested", nil)
}
