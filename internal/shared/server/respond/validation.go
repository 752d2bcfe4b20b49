package respond

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// FieldError names a request field that failed a binding rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// Invalid answers a ShouldBindJSON error with 400. Rule violations are listed in details;
// malformed bodies get the message alone.
func Invalid(c *gin.Context, err error, message string) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		Error(c, http.StatusBadRequest, "validation_error", message, nil)
		return
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: jsonName(fe.Field()), Rule: fe.Tag(), Param: fe.Param()})
	}
	Error(c, http.StatusBadRequest, "validation_error", message, out)
}

// jsonName lowers the leading letter so SenderAddress reads as senderAddress.
func jsonName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}
