package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/cafe-orders/models"
	"github.com/yeremiapane/cafe-orders/services"
	"github.com/yeremiapane/cafe-orders/utils"
)

const paymentRetryHint = "Order placed but the payment could not be started. Retry via POST /api/orders/%s/payment"

type OrderController struct {
	Orders *services.OrderService
}

func NewOrderController(orders *services.OrderService) *OrderController {
	return &OrderController{Orders: orders}
}

type OrderLineRequest struct {
	MenuItemID         uint   `json:"menuItemId" binding:"required"`
	Quantity           int    `json:"quantity" binding:"required"`
	ExtraIngredientIDs []uint `json:"extraIngredientIds"`
}

type PlaceOrderRequest struct {
	CustomerName  string             `json:"customerName" binding:"required"`
	CustomerPhone string             `json:"customerPhone" binding:"required"`
	TableNo       string             `json:"tableNo"`
	PaymentMode   string             `json:"paymentMode" binding:"required"`
	Items         []OrderLineRequest `json:"items" binding:"required"`
}

type PlaceOrderResponse struct {
	OrderCode      string               `json:"orderCode"`
	Status         models.OrderStatus   `json:"status"`
	PaymentStatus  models.PaymentStatus `json:"paymentStatus"`
	TotalAmount    string               `json:"totalAmount"`
	GatewayOrderID string               `json:"gatewayOrderId,omitempty"`
	Message        string               `json:"message"`
}

type TrackItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type TrackOrderResponse struct {
	OrderCode     string               `json:"orderCode"`
	CustomerName  string               `json:"customerName"`
	Status        models.OrderStatus   `json:"status"`
	PaymentStatus models.PaymentStatus `json:"paymentStatus"`
	Items         []TrackItem          `json:"items"`
}

func newPlaceOrderResponse(result *services.PlaceOrderResult, message string) PlaceOrderResponse {
	return PlaceOrderResponse{
		OrderCode:      result.Order.OrderCode,
		Status:         result.Order.Status,
		PaymentStatus:  result.Order.PaymentStatus,
		TotalAmount:    result.Order.TotalAmount.StringFixed(2),
		GatewayOrderID: result.GatewayOrderID(),
		Message:        message,
	}
}

// PlaceOrder -> POST /api/orders
func (oc *OrderController) PlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	in := services.PlaceOrderInput{
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		TableNo:       req.TableNo,
		PaymentMode:   models.PaymentMode(strings.ToUpper(strings.TrimSpace(req.PaymentMode))),
		Items:         make([]services.OrderLineInput, 0, len(req.Items)),
	}
	for _, line := range req.Items {
		in.Items = append(in.Items, services.OrderLineInput{
			MenuItemID: line.MenuItemID,
			Quantity:   line.Quantity,
			ExtraIDs:   line.ExtraIngredientIDs,
		})
	}

	result, err := oc.Orders.PlaceOrder(c.Request.Context(), in)
	var initErr *services.PaymentInitiationError
	switch {
	case errors.As(err, &initErr):
		code := initErr.Result.Order.OrderCode
		c.JSON(http.StatusAccepted, newPlaceOrderResponse(initErr.Result, fmt.Sprintf(paymentRetryHint, code)))
	case err != nil:
		respondServiceError(c, err)
	default:
		c.JSON(http.StatusCreated, newPlaceOrderResponse(result, "Order placed successfully"))
	}
}

// InitiatePayment -> POST /api/orders/:orderCode/payment
func (oc *OrderController) InitiatePayment(c *gin.Context) {
	result, err := oc.Orders.InitiatePayment(c.Request.Context(), c.Param("orderCode"))
	var initErr *services.PaymentInitiationError
	switch {
	case errors.As(err, &initErr):
		c.JSON(http.StatusAccepted, newPlaceOrderResponse(initErr.Result, fmt.Sprintf(paymentRetryHint, initErr.Result.Order.OrderCode)))
	case err != nil:
		respondServiceError(c, err)
	default:
		c.JSON(http.StatusOK, newPlaceOrderResponse(result, "Payment session ready"))
	}
}

// TrackOrder -> GET /api/orders/track/:orderCode
func (oc *OrderController) TrackOrder(c *gin.Context) {
	order, err := oc.Orders.TrackOrder(c.Request.Context(), c.Param("orderCode"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	items := make([]TrackItem, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, TrackItem{Name: it.MenuItemName, Quantity: it.Quantity})
	}
	c.JSON(http.StatusOK, TrackOrderResponse{
		OrderCode:     order.OrderCode,
		CustomerName:  order.CustomerName,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		Items:         items,
	})
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus -> PUT /api/admin/orders/:orderId/status
func (oc *OrderController) UpdateStatus(c *gin.Context) {
	id, ok := orderIDParam(c)
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	target := models.OrderStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	order, err := oc.Orders.UpdateStatus(c.Request.Context(), id, target)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, order.Snapshot())
}

// CompleteOrder -> PUT /api/admin/orders/:orderId/complete
func (oc *OrderController) CompleteOrder(c *gin.Context) {
	id, ok := orderIDParam(c)
	if !ok {
		return
	}
	order, err := oc.Orders.CompleteOrder(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, order.Snapshot())
}

type PaymentView struct {
	PaymentMode      models.PaymentMode   `json:"paymentMode"`
	PaymentStatus    models.PaymentStatus `json:"paymentStatus"`
	Amount           string               `json:"amount"`
	GatewayOrderID   *string              `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID *string              `json:"gatewayPaymentId,omitempty"`
	Version          uint                 `json:"version"`
}

type ConflictView struct {
	GatewayPaymentID string               `json:"gatewayPaymentId"`
	CurrentStatus    models.PaymentStatus `json:"currentStatus"`
	IncomingStatus   models.PaymentStatus `json:"incomingStatus"`
	GatewayStatus    string               `json:"gatewayStatus"`
	ReceivedAt       string               `json:"receivedAt"`
}

type OrderDetailResponse struct {
	Order     models.OrderSnapshot `json:"order"`
	Payment   PaymentView          `json:"payment"`
	Conflicts []ConflictView       `json:"conflicts"`
}

// GetOrder -> GET /api/admin/orders/:orderId
func (oc *OrderController) GetOrder(c *gin.Context) {
	id, ok := orderIDParam(c)
	if !ok {
		return
	}
	detail, err := oc.Orders.GetOrderDetail(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	conflicts := make([]ConflictView, 0, len(detail.Conflicts))
	for _, cf := range detail.Conflicts {
		conflicts = append(conflicts, ConflictView{
			GatewayPaymentID: cf.GatewayPaymentID,
			CurrentStatus:    cf.CurrentStatus,
			IncomingStatus:   cf.IncomingStatus,
			GatewayStatus:    cf.GatewayStatus,
			ReceivedAt:       cf.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	c.JSON(http.StatusOK, OrderDetailResponse{
		Order: detail.Order.Snapshot(),
		Payment: PaymentView{
			PaymentMode:      detail.Payment.PaymentMode,
			PaymentStatus:    detail.Payment.PaymentStatus,
			Amount:           detail.Payment.Amount.StringFixed(2),
			GatewayOrderID:   detail.Payment.GatewayOrderID,
			GatewayPaymentID: detail.Payment.GatewayPaymentID,
			Version:          detail.Payment.Version,
		},
		Conflicts: conflicts,
	})
}

func orderIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("orderId"), 10, 64)
	if err != nil || id == 0 {
		utils.RespondErrorMessage(c, http.StatusBadRequest, "Invalid order id")
		return 0, false
	}
	return uint(id), true
}
