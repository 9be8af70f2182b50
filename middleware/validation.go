package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/joshu-sajeev/hookqueue/common"
)

var validate = validator.New()

func Bind[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.Error(common.APIError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_json",
			Message: "invalid json: " + err.Error(),
		})
		return false
	}
	return validateInto(c, dest)
}

// BindQuery binds and validates URL query parameters.
func BindQuery[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindQuery(dest); err != nil {
		c.Error(common.APIError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_query",
			Message: "invalid query: " + err.Error(),
		})
		return false
	}
	return validateInto(c, dest)
}

func validateInto[T any](c *gin.Context, dest *T) bool {
	if err := validate.Struct(dest); err != nil {
		c.Error(common.APIError{
			Status:  http.StatusBadRequest,
			Code:    "validation_failed",
			Message: "validation failed",
			Fields:  FormatValidationErrors(err),
		})
		return false
	}
	return true
}

func FormatValidationErrors(err error) map[string]any {
	errs := map[string]any{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs["_"] = err.Error()
		return errs
	}
	for _, e := range verrs {
		errs[e.Field()] = "failed " + e.Tag()
	}
	return errs
}
