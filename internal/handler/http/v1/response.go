package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shenikar/emergency_dispatch/internal/apperror"
	"github.com/sirupsen/logrus"
)

func respondOK(c *gin.Context, status int, message string, data any) {
	c.JSON(status, SuccessResponse{Success: true, Message: message, Data: data})
}

// respondError выбирает HTTP-код по классу ошибки и скрывает внутренние детали
func respondError(c *gin.Context, log *logrus.Entry, err error) {
	kind := apperror.KindOf(err)
	status := kind.HTTPStatus()
	if status >= 500 {
		log.WithError(err).Error("Request failed")
	} else {
		log.WithError(err).Warn("Request rejected")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Success: false,
		Message: apperror.PublicMessage(err),
		Error:   kind.String(),
	})
}

func respondBadRequest(c *gin.Context, log *logrus.Entry, message string, err error) {
	log.WithError(err).Warn(message)
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Success: false, Message: message, Error: err.Error()})
}
