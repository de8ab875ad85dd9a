package validation

import (
	"reflect"
	"regexp"
	"strings"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
)

// phonePattern accepts an optional leading plus and 10 to 15 digits.
var phonePattern = regexp.MustCompile(`^\+?\d{10,15}$`)

// New returns a configured validator with the struct-level rules registered. Field errors
// are reported under their JSON names.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("phone", func(fl validatorv10.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})

	v.RegisterStructValidation(orderPatchStructValidation, OrderPatchRequest{})
	v.RegisterStructValidation(productUpdateStructValidation, ProductUpdateRequest{})
	v.RegisterStructValidation(promoCreateStructValidation, PromoCreateRequest{})
	v.RegisterStructValidation(promoUpdateStructValidation, PromoUpdateRequest{})
	return v
}

// orderPatchStructValidation rejects a patch that changes nothing.
func orderPatchStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(OrderPatchRequest)
	if req.DeliveryMethod == nil && req.DeliveryAddress == nil && req.Items == nil && req.Status == nil {
		sl.ReportError(req, "order", "OrderPatchRequest", "non_empty_patch", "")
	}
}

func productUpdateStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(ProductUpdateRequest)
	if req.Name == nil && req.Price == nil && req.Discount == nil && req.Stock == nil &&
		req.Category == nil && req.Description == nil && req.Image == nil {
		sl.ReportError(req, "product", "ProductUpdateRequest", "non_empty_patch", "")
	}
}

// promoCreateStructValidation requires the expiry to lie in the future.
func promoCreateStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(PromoCreateRequest)
	if !req.ExpiresAt.IsZero() && !req.ExpiresAt.After(time.Now()) {
		sl.ReportError(req.ExpiresAt, "expires_at", "ExpiresAt", "future", "")
	}
}

func promoUpdateStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(PromoUpdateRequest)
	if req.Discount == nil && req.MaxUses == nil && req.ExpiresAt == nil && req.IsActive == nil && req.Description == nil {
		sl.ReportError(req, "promo", "PromoUpdateRequest", "non_empty_patch", "")
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		sl.ReportError(*req.ExpiresAt, "expires_at", "ExpiresAt", "future", "")
	}
}
