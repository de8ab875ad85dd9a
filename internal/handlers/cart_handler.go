package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront-ledger/internal/apperr"
	"github.com/imrishuroy/go-storefront-ledger/internal/validation"
)

func (a *api) getCart(c *gin.Context) {
	view, err := a.cfg.Checkout.Cart(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (a *api) addCartItem(c *gin.Context) {
	var req validation.CartItemRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	view, err := a.cfg.Checkout.AddToCart(c.Request.Context(), userID(c), req.ProductID, req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (a *api) setCartItem(c *gin.Context) {
	var req validation.CartQuantityRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	view, err := a.cfg.Checkout.SetCartQuantity(c.Request.Context(), userID(c), c.Param("productId"), *req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (a *api) removeCartItem(c *gin.Context) {
	view, err := a.cfg.Checkout.RemoveFromCart(c.Request.Context(), userID(c), c.Param("productId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// applyCoupon answers an unknown code with applied=false rather than an error.
func (a *api) applyCoupon(c *gin.Context) {
	var req validation.CouponRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	code, view, err := a.cfg.Checkout.ApplyCoupon(c.Request.Context(), userID(c), req.Code)
	if apperr.KindOf(err) == apperr.NotFound {
		c.JSON(http.StatusOK, gin.H{"applied": false, "cart": view})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": true, "coupon": code, "cart": view})
}

func (a *api) removeCoupon(c *gin.Context) {
	view, err := a.cfg.Checkout.RemoveCoupon(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
