package validation

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

// BindAndValidate binds JSON body into `out` and runs validation.
// If validation fails, it writes a 400 response and returns an error for the handler to short-circuit.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid_request_body",
			"msg":   err.Error(),
		})
		return err
	}

	if err := v.Struct(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation_failed",
			"fields": validationErrorsToMap(err),
		})
		return err
	}
	return nil
}

// validationErrorsToMap keys each failure by its JSON path, e.g. "items[0].quantity".
func validationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		out["error"] = err.Error()
		return out
	}
	for _, fe := range ve {
		key := fe.Namespace()
		if i := indexAfterRoot(key); i >= 0 {
			key = key[i:]
		}
		if fe.Param() != "" {
			out[key] = fe.Tag() + "=" + fe.Param()
		} else {
			out[key] = fe.Tag()
		}
	}
	return out
}

// indexAfterRoot skips the struct name that prefixes every namespace.
func indexAfterRoot(ns string) int {
	for i := 0; i < len(ns); i++ {
		if ns[i] == '.' {
			return i + 1
		}
	}
	return -1
}
