// Package handlers exposes the storefront over gin.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-storefront-ledger/internal/apperr"
	"github.com/imrishuroy/go-storefront-ledger/internal/catalog"
	"github.com/imrishuroy/go-storefront-ledger/internal/checkout"
	"github.com/imrishuroy/go-storefront-ledger/internal/inventory"
	"github.com/imrishuroy/go-storefront-ledger/internal/logging"
	"github.com/imrishuroy/go-storefront-ledger/internal/promo"
	"github.com/imrishuroy/go-storefront-ledger/internal/users"
	"github.com/imrishuroy/go-storefront-ledger/internal/validation"
)

// UserHeader carries the caller's identity, set by the upstream authorizer.
const UserHeader = "X-User-Id"

const userKey = "user_id"

// Directory resolves callers to check the admin flag and stores their phone.
type Directory interface {
	Get(ctx context.Context, userID string) (*users.User, error)
	SetPhone(ctx context.Context, userID, phone string) (*users.User, error)
}

// HandlerConfig groups dependencies for the HTTP handlers.
type HandlerConfig struct {
	Checkout *checkout.Service
	Products *catalog.Store
	Ledger   *inventory.Ledger
	Promos   *promo.Store
	Users    Directory
	Timeout  time.Duration // per-request deadline; zero disables it
}

type api struct {
	cfg HandlerConfig
	v   *validatorv10.Validate
}

// Register mounts every storefront route on r.
func Register(r *gin.Engine, cfg HandlerConfig) {
	a := &api{cfg: cfg, v: validation.New()}

	g := r.Group("/")
	if cfg.Timeout > 0 {
		g.Use(timeout(cfg.Timeout))
	}

	g.GET("/products", a.listProducts)
	g.GET("/products/:id", a.getProduct)
	g.GET("/categories", a.listCategories)

	u := g.Group("/", a.requireUser)
	u.GET("/cart", a.getCart)
	u.POST("/cart/items", a.addCartItem)
	u.PUT("/cart/items/:productId", a.setCartItem)
	u.DELETE("/cart/items/:productId", a.removeCartItem)
	u.POST("/coupon", a.applyCoupon)
	u.DELETE("/coupon", a.removeCoupon)
	u.POST("/orders", a.placeOrder)
	u.GET("/orders", a.listOrders)
	u.GET("/orders/:id", a.getOrder)
	u.PUT("/me/phone", a.setPhone)

	adm := u.Group("/admin", a.requireAdmin)
	adm.GET("/orders", a.adminListOrders)
	adm.PATCH("/orders/:id", a.adminUpdateOrder)
	adm.POST("/orders/:id/advance", a.adminAdvanceOrder)
	adm.DELETE("/orders/:id", a.adminDeleteOrder)
	adm.POST("/products", a.adminCreateProduct)
	adm.PATCH("/products/:id", a.adminUpdateProduct)
	adm.DELETE("/products/:id", a.adminDeleteProduct)
	adm.GET("/products/:id/reserved", a.adminReservedStock)
	adm.GET("/promo-codes", a.adminListPromos)
	adm.POST("/promo-codes", a.adminCreatePromo)
	adm.PUT("/promo-codes/:code", a.adminUpdatePromo)
	adm.POST("/promo-codes/:code/toggle", a.adminTogglePromo)
	adm.DELETE("/promo-codes/:code", a.adminDeletePromo)
}

func timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (a *api) requireUser(c *gin.Context) {
	id := c.GetHeader(UserHeader)
	if id == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "msg": "missing " + UserHeader})
		return
	}
	c.Set(userKey, id)
	c.Next()
}

func (a *api) requireAdmin(c *gin.Context) {
	u, err := a.cfg.Users.Get(c.Request.Context(), c.GetString(userKey))
	if err != nil {
		writeError(c, apperr.Persistence(err, "load user"))
		c.Abort()
		return
	}
	if u == nil || !u.IsAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "msg": "admin only"})
		return
	}
	c.Next()
}

func userID(c *gin.Context) string { return c.GetString(userKey) }

func (a *api) setPhone(c *gin.Context) {
	var req validation.PhoneRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	u, err := a.cfg.Users.SetPhone(c.Request.Context(), userID(c), req.Phone)
	if err != nil {
		if apperr.KindOf(err) == "" {
			err = apperr.Persistence(err, "update phone")
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.InvalidInput, apperr.InvalidAddress, apperr.InvalidDeliveryMethod,
		apperr.InvalidStatus, apperr.CouponMismatch:
		return http.StatusBadRequest
	case apperr.OutOfStock, apperr.InsufficientStock, apperr.StockBelowReserved,
		apperr.AlreadyTerminal, apperr.Conflict:
		return http.StatusConflict
	case apperr.CouponInactive, apperr.CouponExpired, apperr.CouponExhausted, apperr.NoPhoneOnFile:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		logging.From(c).Error("request failed", "err", err)
		if kind == "" {
			kind = apperr.PersistenceFailure
		}
		c.JSON(status, gin.H{"error": kind, "msg": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": kind, "msg": apperr.Message(err)})
}

func toItems(in []validation.Item) []inventory.Item {
	if in == nil {
		return nil
	}
	out := make([]inventory.Item, 0, len(in))
	for _, it := range in {
		out = append(out, inventory.Item{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}
