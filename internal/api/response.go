package api

import (
	"errors"
	"net/http"

	"storefront-api/internal/service"
	"storefront-api/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// envelope wraps every JSON response.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

var kindStatus = map[service.Kind]int{
	service.KindProductNotFound:   http.StatusNotFound,
	service.KindOrderNotFound:     http.StatusNotFound,
	service.KindInsufficientStock: http.StatusBadRequest,
	service.KindInvalidTransition: http.StatusBadRequest,
	service.KindInvalidInput:      http.StatusBadRequest,
	service.KindUnauthorized:      http.StatusForbidden,
}

// statusFor maps a service error kind to its HTTP status.
func statusFor(kind service.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

func abort(c *gin.Context, status int, message, code string) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Message: message, Error: code})
}

// respondError writes err as an error envelope. Unclassified errors are logged
// and reported without detail.
func respondError(c *gin.Context, err error) {
	kind := service.KindOf(err)
	status := statusFor(kind)

	if status == http.StatusInternalServerError {
		util.GetLogger().Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		abort(c, status, "Internal server error", "internal_error")
		return
	}

	var svcErr *service.Error
	errors.As(err, &svcErr)
	abort(c, status, svcErr.Message, string(kind))
}

func badRequest(c *gin.Context, message string) {
	abort(c, http.StatusBadRequest, message, string(service.KindInvalidInput))
}
