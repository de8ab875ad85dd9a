package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront-ledger/internal/checkout"
	"github.com/imrishuroy/go-storefront-ledger/internal/orders"
	"github.com/imrishuroy/go-storefront-ledger/internal/validation"
)

// IdempotencyHeader lets clients retry a checkout safely.
const IdempotencyHeader = "Idempotency-Key"

// ReplayedHeader is set on a response that returns an order created by an earlier request.
const ReplayedHeader = "Idempotent-Replayed"

func (a *api) placeOrder(c *gin.Context) {
	var req validation.PlaceOrderRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	p, err := a.cfg.Checkout.Place(c.Request.Context(), checkout.PlaceRequest{
		UserID:          userID(c),
		Items:           toItems(req.Items),
		DeliveryMethod:  req.DeliveryMethod,
		DeliveryAddress: req.DeliveryAddress,
		IdempotencyKey:  c.GetHeader(IdempotencyHeader),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Location", fmt.Sprintf("/orders/%s", p.Order.OrderID))
	if p.Replayed {
		c.Header(ReplayedHeader, "true")
		c.JSON(http.StatusOK, p.Order)
		return
	}
	c.JSON(http.StatusCreated, p.Order)
}

func (a *api) listOrders(c *gin.Context) {
	list, err := a.cfg.Checkout.OrdersForUser(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

func (a *api) getOrder(c *gin.Context) {
	o, err := a.cfg.Checkout.Order(c.Request.Context(), userID(c), c.Param("id"), false)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (a *api) adminListOrders(c *gin.Context) {
	list, err := a.cfg.Checkout.AllOrders(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

func (a *api) adminUpdateOrder(c *gin.Context) {
	var req validation.OrderPatchRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	patch := checkout.OrderPatch{
		DeliveryMethod:  req.DeliveryMethod,
		DeliveryAddress: req.DeliveryAddress,
		Items:           toItems(req.Items),
	}
	if req.Status != nil {
		st := orders.Status(*req.Status)
		patch.Status = &st
	}

	o, err := a.cfg.Checkout.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (a *api) adminAdvanceOrder(c *gin.Context) {
	o, err := a.cfg.Checkout.Advance(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (a *api) adminDeleteOrder(c *gin.Context) {
	o, err := a.cfg.Checkout.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": o.OrderID})
}
