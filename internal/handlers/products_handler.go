package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront-ledger/internal/apperr"
	"github.com/imrishuroy/go-storefront-ledger/internal/catalog"
	"github.com/imrishuroy/go-storefront-ledger/internal/logging"
	"github.com/imrishuroy/go-storefront-ledger/internal/promo"
	"github.com/imrishuroy/go-storefront-ledger/internal/validation"
)

func (a *api) listProducts(c *gin.Context) {
	list, err := a.cfg.Products.List(c.Request.Context(), c.Query("category"))
	if err != nil {
		writeError(c, apperr.Persistence(err, "list products"))
		return
	}
	if list == nil {
		list = []catalog.Product{}
	}
	c.JSON(http.StatusOK, gin.H{"products": list})
}

func (a *api) loadProduct(c *gin.Context, id string) (*catalog.Product, bool) {
	p, err := a.cfg.Products.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, apperr.Persistence(err, "load product"))
		return nil, false
	}
	if p == nil {
		writeError(c, apperr.New(apperr.NotFound, "product %s not found", id))
		return nil, false
	}
	return p, true
}

func (a *api) getProduct(c *gin.Context) {
	if p, ok := a.loadProduct(c, c.Param("id")); ok {
		c.JSON(http.StatusOK, p)
	}
}

func (a *api) listCategories(c *gin.Context) {
	cats, err := a.cfg.Products.Categories(c.Request.Context())
	if err != nil {
		writeError(c, apperr.Persistence(err, "list categories"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": cats})
}

func (a *api) adminCreateProduct(c *gin.Context) {
	var req validation.ProductCreateRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	p, err := a.cfg.Products.Create(c.Request.Context(), catalog.Product{
		ProductID:   req.ID,
		Name:        req.Name,
		Price:       req.Price,
		Discount:    req.Discount,
		Stock:       req.Stock,
		Category:    req.Category,
		Description: req.Description,
		Image:       req.Image,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// adminUpdateProduct edits metadata. A stock change goes through the ledger so the
// reserved-stock guard applies; metadata and stock are then written together.
func (a *api) adminUpdateProduct(c *gin.Context) {
	var req validation.ProductUpdateRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	patch := catalog.Patch{
		Name:        req.Name,
		Price:       req.Price,
		Discount:    req.Discount,
		Category:    req.Category,
		Description: req.Description,
		Image:       req.Image,
	}

	var (
		p   *catalog.Product
		err error
	)
	if req.Stock != nil {
		p, err = a.cfg.Ledger.UpdateProduct(ctx, id, patch, *req.Stock)
	} else {
		p, err = a.cfg.Products.Update(ctx, id, patch)
	}
	if err != nil {
		if apperr.KindOf(err) == "" {
			err = apperr.Persistence(err, "update product")
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (a *api) adminDeleteProduct(c *gin.Context) {
	p, err := a.cfg.Products.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		if apperr.KindOf(err) == "" {
			err = apperr.Persistence(err, "delete product")
		}
		writeError(c, err)
		return
	}
	logging.From(c).Info("product deleted", "product_id", p.ProductID)
	c.Status(http.StatusNoContent)
}

func (a *api) adminReservedStock(c *gin.Context) {
	p, ok := a.loadProduct(c, c.Param("id"))
	if !ok {
		return
	}
	reserved, err := a.cfg.Ledger.ReservedQuantity(c.Request.Context(), p.ProductID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": p.ProductID, "stock": p.Stock, "reserved": reserved})
}

func (a *api) adminListPromos(c *gin.Context) {
	codes, err := a.cfg.Promos.List(c.Request.Context())
	if err != nil {
		writeError(c, apperr.Persistence(err, "list promo codes"))
		return
	}
	if codes == nil {
		codes = []promo.Code{}
	}
	c.JSON(http.StatusOK, gin.H{"promo_codes": codes})
}

func (a *api) adminCreatePromo(c *gin.Context) {
	var req validation.PromoCreateRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	code, err := a.cfg.Promos.Create(c.Request.Context(), promo.Code{
		Code:        req.Code,
		Discount:    req.Discount,
		MaxUses:     req.MaxUses,
		ExpiresAt:   req.ExpiresAt.UTC(),
		IsActive:    active,
		Description: req.Description,
	})
	if err != nil {
		if apperr.KindOf(err) == "" {
			err = apperr.Persistence(err, "create promo code")
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, code)
}

func (a *api) adminUpdatePromo(c *gin.Context) {
	var req validation.PromoUpdateRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	patch := promo.Patch{
		Discount:    req.Discount,
		MaxUses:     req.MaxUses,
		IsActive:    req.IsActive,
		Description: req.Description,
	}
	if req.ExpiresAt != nil {
		exp := req.ExpiresAt.UTC()
		patch.ExpiresAt = &exp
	}
	updated, err := a.cfg.Promos.Update(c.Request.Context(), c.Param("code"), patch)
	if err != nil {
		if apperr.KindOf(err) == "" {
			err = apperr.Persistence(err, "update promo code")
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (a *api) adminTogglePromo(c *gin.Context) {
	ctx := c.Request.Context()
	current, err := a.cfg.Promos.FindByCode(ctx, c.Param("code"))
	if err != nil {
		writeError(c, apperr.Persistence(err, "find promo code"))
		return
	}
	if current == nil {
		writeError(c, apperr.New(apperr.NotFound, "promo code %s not found", promo.Normalize(c.Param("code"))))
		return
	}
	updated, err := a.cfg.Promos.SetActive(ctx, current.Code, !current.IsActive)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (a *api) adminDeletePromo(c *gin.Context) {
	if err := a.cfg.Promos.Delete(c.Request.Context(), promo.Normalize(c.Param("code"))); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
